package models

import (
	"time"

	"github.com/google/uuid"
)

// BacktraceFrame is one frame of the stack captured by the instrumented application.
type BacktraceFrame struct {
	Name         string `json:"name"`
	FilePath     string `json:"file_path"`
	LineNumber   uint32 `json:"line_number"`
	ColumnNumber uint32 `json:"column_number"`
	Code         string `json:"code"`
}

// LogRecord is a decoded diagnostic record as produced by a transport.
// It is never modified after decoding.
type LogRecord struct {
	UUID        string            `json:"uuid"`
	Message     string            `json:"message"`
	Address     string            `json:"address"`
	FileName    string            `json:"file_name"`
	LineNumber  uint32            `json:"line_number"`
	Warnings    []string          `json:"warnings"`
	Stack       []BacktraceFrame  `json:"stack,omitempty"`
	CodeSnippet map[uint32]string `json:"code_snippet,omitempty"`
	Language    string            `json:"language,omitempty"`
}

// AssignIdentity gives the record an identity token unless the sender already supplied one.
// Transports call it exactly once, while decoding.
func (r *LogRecord) AssignIdentity() {
	if r.UUID == "" {
		r.UUID = uuid.NewString()
	}
}

// HasWarnings reports whether the logger attached any warnings to the record.
func (r *LogRecord) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// Entry pairs a record with the local time it arrived at the inspector.
type Entry struct {
	Log      LogRecord `json:"log"`
	Received time.Time `json:"received"`
}

// ID returns the identity token of the wrapped record.
func (e Entry) ID() string {
	return e.Log.UUID
}
