package query

import (
	"sort"
	"strings"
	"unicode/utf8"

	"cdctrl/internal/models"
)

const (
	previewLimit = 100
	previewKeep  = 97
)

// Sort returns a copy of entries ordered by arrival time. Equal timestamps keep
// their relative order, so sorting twice with the same flag is a no-op.
func Sort(entries []models.Entry, newestFirst bool) []models.Entry {
	out := make([]models.Entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		if newestFirst {
			return out[i].Received.After(out[j].Received)
		}
		return out[i].Received.Before(out[j].Received)
	})
	return out
}

// Row is one displayed record.
type Row struct {
	Entry    models.Entry `json:"entry"`
	Preview  string       `json:"preview"`
	Time     string       `json:"time"`
	Selected bool         `json:"selected"`
}

// View is what a front end renders for one query cycle.
type View struct {
	Rows             []Row  `json:"rows"`
	Total            int    `json:"total"`
	SelectedID       string `json:"selected_id,omitempty"`
	SelectionVisible bool   `json:"selection_visible"`
	InvalidPattern   bool   `json:"invalid_pattern"`
	PatternError     string `json:"pattern_error,omitempty"`
	Filter           string `json:"filter"`
}

// Build filters and sorts snapshot and marks the selected record by identity.
// selectedID must already be validated against the store; a selection hidden by the
// filter is kept but reported as not visible.
func Build(snapshot []models.Entry, f Filter, newestFirst bool, selectedID string) View {
	res := FilterEntries(snapshot, f)
	sorted := Sort(res.Entries, newestFirst)

	v := View{
		Rows:           make([]Row, len(sorted)),
		Total:          len(snapshot),
		SelectedID:     selectedID,
		InvalidPattern: res.InvalidPattern,
		Filter:         f.Summary(),
	}
	if res.PatternErr != nil {
		v.PatternError = res.PatternErr.Error()
	}

	for i, e := range sorted {
		selected := selectedID != "" && e.ID() == selectedID
		if selected {
			v.SelectionVisible = true
		}
		v.Rows[i] = Row{
			Entry:    e,
			Preview:  Preview(e.Log.Message),
			Time:     e.Received.Format(TimeLayout),
			Selected: selected,
		}
	}
	return v
}

// Preview returns message with double quotes removed, truncated for list display.
func Preview(message string) string {
	out := strings.ReplaceAll(message, "\"", "")
	if len(message) > previewLimit {
		out = truncate(out, previewKeep) + "..."
	}
	return out
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

