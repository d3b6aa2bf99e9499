package query

import (
	"strings"
	"testing"
	"time"

	"cdctrl/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 15, 10, 20, 30, 0, time.Local)

func entry(id, msg, file string, line uint32, offset time.Duration) models.Entry {
	return models.Entry{
		Log: models.LogRecord{
			UUID:       id,
			Message:    msg,
			FileName:   file,
			LineNumber: line,
			Address:    "127.0.0.1",
		},
		Received: base.Add(offset),
	}
}

func sample() []models.Entry {
	return []models.Entry{
		entry("1", "Boom", "main.go", 10, 0),
		entry("2", "boom boom", "lib/util.go", 20, time.Second),
	}
}

func idsOf(entries []models.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID()
	}
	return out
}

func TestFilterEntries_Message(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"case insensitive substring", Filter{Field: FieldMessage, Query: "boom"}, []string{"1", "2"}},
		{"case sensitive substring", Filter{Field: FieldMessage, Query: "boom", CaseSensitive: true}, []string{"2"}},
		{"regex case insensitive", Filter{Field: FieldMessage, Query: "^boom$", Regex: true}, []string{"1"}},
		{"regex case sensitive", Filter{Field: FieldMessage, Query: "^b.*m$", Regex: true, CaseSensitive: true}, []string{"2"}},
		{"empty query", Filter{Field: FieldMessage}, []string{"1", "2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := FilterEntries(sample(), tt.filter)
			assert.False(t, res.InvalidPattern)
			assert.Equal(t, tt.want, idsOf(res.Entries))
		})
	}
}

func TestFilterEntries_RegexFoldsUnicode(t *testing.T) {
	snap := []models.Entry{entry("1", "273 \u212A", "main.go", 1, 0)}

	res := FilterEntries(snap, Filter{Field: FieldMessage, Query: "k$", Regex: true})
	assert.Equal(t, []string{"1"}, idsOf(res.Entries))

	res = FilterEntries(snap, Filter{Field: FieldMessage, Query: "k$", Regex: true, CaseSensitive: true})
	assert.Empty(t, res.Entries)
}

func TestFilterEntries_FileName(t *testing.T) {
	res := FilterEntries(sample(), Filter{Field: FieldFileName, Query: "LIB/"})
	assert.Equal(t, []string{"2"}, idsOf(res.Entries))

	res = FilterEntries(sample(), Filter{Field: FieldFileName, Query: "LIB/", CaseSensitive: true})
	assert.Empty(t, res.Entries)

	res = FilterEntries(sample(), Filter{Field: FieldFileName, Query: `\.go$`, Regex: true})
	assert.Equal(t, []string{"1", "2"}, idsOf(res.Entries))
}

func TestFilterEntries_LineNumber(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"0", []string{"1", "2"}},
		{"not a number", []string{"1", "2"}},
		{"10", []string{"1"}},
		{" 20 ", []string{"1", "2"}},
		{"30", []string{}},
	}
	for _, tt := range tests {
		res := FilterEntries(sample(), Filter{Field: FieldLineNumber, Query: tt.query})
		assert.Equal(t, tt.want, idsOf(res.Entries), "query %q", tt.query)
	}
}

func TestFilterEntries_AddressNeverMatches(t *testing.T) {
	res := FilterEntries(sample(), Filter{Field: FieldAddress, Query: "anything"})
	assert.Empty(t, res.Entries)

	res = FilterEntries(sample(), Filter{Field: FieldAddress, Query: "127.0.0.1"})
	assert.Empty(t, res.Entries)

	res = FilterEntries(sample(), Filter{Field: FieldAddress})
	assert.Len(t, res.Entries, 2)
}

func TestFilterEntries_Time(t *testing.T) {
	res := FilterEntries(sample(), Filter{Field: FieldTime, Query: "2024-03-15 10:20:31"})
	assert.Equal(t, []string{"2"}, idsOf(res.Entries))

	res = FilterEntries(sample(), Filter{Field: FieldTime, Query: "10:20"})
	assert.Len(t, res.Entries, 2)
}

func TestFilterEntries_InvalidPattern(t *testing.T) {
	res := FilterEntries(sample(), Filter{Field: FieldMessage, Query: "([", Regex: true})
	assert.True(t, res.InvalidPattern)
	assert.ErrorIs(t, res.PatternErr, ErrInvalidPattern)
	assert.Empty(t, res.Entries)
}

func TestSort_IdempotentAndToggle(t *testing.T) {
	entries := []models.Entry{
		entry("a", "m", "f", 1, 2*time.Second),
		entry("b", "m", "f", 1, time.Second),
		entry("c", "m", "f", 1, time.Second), // tie with b
		entry("d", "m", "f", 1, 0),
	}

	newest := Sort(entries, true)
	assert.Equal(t, []string{"a", "b", "c", "d"}, idsOf(newest))
	assert.Equal(t, newest, Sort(newest, true))

	oldest := Sort(newest, false)
	assert.Equal(t, []string{"d", "b", "c", "a"}, idsOf(oldest))
	assert.Equal(t, oldest, Sort(oldest, false))

	assert.Equal(t, newest, Sort(oldest, true))
}

func TestSort_DoesNotModifyInput(t *testing.T) {
	entries := sample()
	_ = Sort(entries, true)
	assert.Equal(t, []string{"1", "2"}, idsOf(entries))
}

func TestBuild_SelectionSurvivesFiltering(t *testing.T) {
	snap := sample()

	v := Build(snap, Filter{}, true, "1")
	require.Len(t, v.Rows, 2)
	assert.True(t, v.SelectionVisible)
	assert.Equal(t, "2", v.Rows[0].Entry.ID())
	assert.True(t, v.Rows[1].Selected)

	v = Build(snap, Filter{Field: FieldLineNumber, Query: "20"}, true, "1")
	assert.False(t, v.SelectionVisible)
	assert.Equal(t, "1", v.SelectedID)
	for _, r := range v.Rows {
		assert.False(t, r.Selected)
	}

	v = Build(snap, Filter{}, false, "1")
	assert.True(t, v.SelectionVisible)
	assert.True(t, v.Rows[0].Selected)
	assert.Equal(t, 2, v.Total)
}

func TestBuild_ReportsInvalidPattern(t *testing.T) {
	v := Build(sample(), Filter{Query: "*", Regex: true}, true, "")
	assert.True(t, v.InvalidPattern)
	assert.NotEmpty(t, v.PatternError)
	assert.Empty(t, v.Rows)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, `say hi`, Preview(`say "hi"`))

	long := strings.Repeat("x", 120)
	p := Preview(long)
	assert.Len(t, p, 100)
	assert.True(t, strings.HasSuffix(p, "..."))

	assert.Equal(t, strings.Repeat("y", 100), Preview(strings.Repeat("y", 100)))
}

func TestParseField(t *testing.T) {
	f, err := ParseField("file_name")
	require.NoError(t, err)
	assert.Equal(t, FieldFileName, f)

	f, err = ParseField("")
	require.NoError(t, err)
	assert.Equal(t, FieldMessage, f)

	_, err = ParseField("colour")
	assert.Error(t, err)
}
