package query

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"cdctrl/internal/models"
)

// ErrInvalidPattern is reported when a regex query does not compile.
var ErrInvalidPattern = errors.New("invalid filter pattern")

// TimeLayout is how arrival times are rendered for display and time filtering.
const TimeLayout = "2006-01-02 15:04:05"

// Field selects which part of a record a query is matched against.
type Field int

const (
	FieldMessage Field = iota
	FieldTime
	FieldFileName
	FieldAddress
	FieldLineNumber
)

// String returns the display name of a Field
func (f Field) String() string {
	switch f {
	case FieldMessage:
		return "Message"
	case FieldTime:
		return "Time"
	case FieldFileName:
		return "File name"
	case FieldAddress:
		return "Address"
	case FieldLineNumber:
		return "Line number"
	default:
		return "Unknown"
	}
}

// ParseField converts a query-string value such as "file_name" into a Field.
func ParseField(s string) (Field, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "message":
		return FieldMessage, nil
	case "time", "timestamp":
		return FieldTime, nil
	case "file", "file_name", "filename":
		return FieldFileName, nil
	case "address", "host":
		return FieldAddress, nil
	case "line", "line_number":
		return FieldLineNumber, nil
	default:
		return FieldMessage, fmt.Errorf("unknown filter field %q", s)
	}
}

// Filter is the operator's current filter configuration
type Filter struct {
	Field         Field
	Query         string
	CaseSensitive bool
	Regex         bool
}

// Matcher is a Filter prepared for repeated matching.
type Matcher struct {
	filter     Filter
	pattern    *regexp.Regexp
	patternErr error
	lowerQuery string
	line       uint32
}

// Compile prepares f. It never fails: a bad regex makes the matcher reject every
// record and is reported through Err. Case-insensitive regex uses (?i), which folds
// Unicode as well as ASCII (the pattern "k" also matches the Kelvin sign U+212A).
func (f Filter) Compile() *Matcher {
	m := &Matcher{filter: f, lowerQuery: strings.ToLower(f.Query)}

	if f.Regex && f.Query != "" && (f.Field == FieldMessage || f.Field == FieldFileName) {
		expr := f.Query
		if !f.CaseSensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			m.patternErr = fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		} else {
			m.pattern = re
		}
	}

	if f.Field == FieldLineNumber {
		// unparsable or zero means wildcard
		if n, err := strconv.ParseUint(f.Query, 10, 32); err == nil {
			m.line = uint32(n)
		}
	}
	return m
}

// Err returns the pattern compile error, if any.
func (m *Matcher) Err() error {
	return m.patternErr
}

// Match reports whether entry passes the filter.
func (m *Matcher) Match(entry models.Entry) bool {
	if m.filter.Query == "" {
		return true
	}

	switch m.filter.Field {
	case FieldMessage:
		return m.matchText(entry.Log.Message)
	case FieldFileName:
		return m.matchText(entry.Log.FileName)
	case FieldTime:
		return strings.Contains(entry.Received.Format(TimeLayout), m.filter.Query)
	case FieldAddress:
		// Address matching is reserved; a non-empty query never matches.
		return false
	case FieldLineNumber:
		return m.line == 0 || entry.Log.LineNumber == m.line
	default:
		return false
	}
}

func (m *Matcher) matchText(text string) bool {
	if m.filter.Regex {
		if m.pattern == nil {
			return false
		}
		return m.pattern.MatchString(text)
	}
	if m.filter.CaseSensitive {
		return strings.Contains(text, m.filter.Query)
	}
	return strings.Contains(strings.ToLower(text), m.lowerQuery)
}

// Result is the outcome of filtering a snapshot.
type Result struct {
	Entries        []models.Entry
	InvalidPattern bool
	PatternErr     error
}

// FilterEntries returns the entries of snapshot that match f, in snapshot order.
func FilterEntries(snapshot []models.Entry, f Filter) Result {
	m := f.Compile()
	if err := m.Err(); err != nil {
		return Result{Entries: []models.Entry{}, InvalidPattern: true, PatternErr: err}
	}

	out := make([]models.Entry, 0, len(snapshot))
	for _, e := range snapshot {
		if m.Match(e) {
			out = append(out, e)
		}
	}
	return Result{Entries: out}
}

// Summary returns a human-readable summary of the filter
func (f Filter) Summary() string {
	if f.Query == "" {
		return "all"
	}
	var opts []string
	if f.CaseSensitive {
		opts = append(opts, "case")
	}
	if f.Regex {
		opts = append(opts, "regex")
	}
	s := fmt.Sprintf("%s: %q", f.Field, f.Query)
	if len(opts) > 0 {
		s += " (" + strings.Join(opts, ", ") + ")"
	}
	return s
}
