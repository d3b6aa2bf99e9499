package session

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"cdctrl/internal/models"
	"cdctrl/internal/store"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/lestrrat-go/strftime"
)

// Failure kinds. Use errors.Is against these.
var (
	ErrIO     = errors.New("session i/o failure")
	ErrDecode = errors.New("session decode failure")
	ErrEncode = errors.New("session encode failure")
)

// Error describes a failed save or load.
type Error struct {
	Kind   error  // one of ErrIO, ErrDecode, ErrEncode
	Source string // file path, or "memory"
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v (%s): %v", e.Kind, e.Source, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func newError(kind error, source string, err error) *Error {
	return &Error{Kind: kind, Source: source, Err: err}
}

const (
	formatVersion = 1
	sourceMemory  = "memory"
)

var magic = []byte("CDCTRL")

// DefaultPattern is the strftime pattern used for session timestamps.
const DefaultPattern = "%Y-%m-%d_%H-%M-%S"

// Session is the persisted form of a LogStore.
type Session struct {
	Timestamp    string
	Entries      []models.Entry // newest first
	Acknowledged []string
}

// on-disk document; every field is a pointer so a missing key is detectable
type document struct {
	Format       *int        `cbor:"format"`
	Timestamp    *string     `cbor:"session_timestamp"`
	Records      *[]entryDoc `cbor:"records"`
	Acknowledged *[]string   `cbor:"acknowledged_messages"`
}

type entryDoc struct {
	UUID        *string           `cbor:"uuid"`
	Message     *string           `cbor:"message"`
	Address     string            `cbor:"address"`
	FileName    string            `cbor:"file_name"`
	LineNumber  uint32            `cbor:"line_number"`
	Warnings    []string          `cbor:"warnings"`
	Stack       []frameDoc        `cbor:"stack,omitempty"`
	CodeSnippet map[uint32]string `cbor:"code_snippet"`
	Language    string            `cbor:"language,omitempty"`
	Received    *string           `cbor:"timestamp"`
}

type frameDoc struct {
	Name         string `cbor:"name"`
	FilePath     string `cbor:"file_path"`
	LineNumber   uint32 `cbor:"line_number"`
	ColumnNumber uint32 `cbor:"column_number"`
	Code         string `cbor:"code"`
}

// Timestamp formats now with a strftime pattern such as "%F %X".
func Timestamp(pattern string, now time.Time) (string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	ts, err := strftime.Format(pattern, now)
	if err != nil {
		return "", fmt.Errorf("invalid session timestamp pattern %q: %w", pattern, err)
	}
	return ts, nil
}

// Save captures the store and encodes it. The session timestamp is evaluated now
// with pattern and also recorded on the store.
func Save(s *store.LogStore, pattern string) ([]byte, string, error) {
	ts, err := Timestamp(pattern, time.Now())
	if err != nil {
		return nil, "", newError(ErrEncode, sourceMemory, err)
	}

	exported, err := s.Export()
	if err != nil {
		return nil, "", newError(ErrIO, sourceMemory, err)
	}

	data, err := Encode(Session{
		Timestamp:    ts,
		Entries:      exported.Entries,
		Acknowledged: exported.Acknowledged,
	})
	if err != nil {
		return nil, "", err
	}

	if err := s.SetSessionTimestamp(ts); err != nil {
		return nil, "", newError(ErrIO, sourceMemory, err)
	}
	return data, ts, nil
}

// Encode serialises a Session into one self-describing blob.
func Encode(sess Session) ([]byte, error) {
	records := make([]entryDoc, len(sess.Entries))
	for i, e := range sess.Entries {
		records[i] = toEntryDoc(e)
	}
	acknowledged := sess.Acknowledged
	if acknowledged == nil {
		acknowledged = []string{}
	}
	version := formatVersion
	doc := document{
		Format:       &version,
		Timestamp:    &sess.Timestamp,
		Records:      &records,
		Acknowledged: &acknowledged,
	}

	body, err := cbor.Marshal(doc)
	if err != nil {
		return nil, newError(ErrEncode, sourceMemory, err)
	}

	var buf bytes.Buffer
	buf.Write(magic)
	buf.WriteByte(formatVersion)
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, newError(ErrEncode, sourceMemory, err)
	}
	if _, err := zw.Write(body); err != nil {
		zw.Close()
		return nil, newError(ErrEncode, sourceMemory, err)
	}
	if err := zw.Close(); err != nil {
		return nil, newError(ErrEncode, sourceMemory, err)
	}
	return buf.Bytes(), nil
}

// Decode parses and validates a blob produced by Encode. source names where the
// bytes came from and is only used in errors.
func Decode(data []byte, source string) (Session, error) {
	if source == "" {
		source = sourceMemory
	}
	if len(data) < len(magic)+1 || !bytes.Equal(data[:len(magic)], magic) {
		return Session{}, newError(ErrDecode, source, errors.New("not a session file"))
	}
	if v := data[len(magic)]; v != formatVersion {
		return Session{}, newError(ErrDecode, source, fmt.Errorf("unsupported session format version %d", v))
	}

	zr, err := zstd.NewReader(nil)
	if err != nil {
		return Session{}, newError(ErrDecode, source, err)
	}
	defer zr.Close()
	body, err := zr.DecodeAll(data[len(magic)+1:], nil)
	if err != nil {
		return Session{}, newError(ErrDecode, source, fmt.Errorf("decompress: %w", err))
	}

	var doc document
	if err := cbor.Unmarshal(body, &doc); err != nil {
		return Session{}, newError(ErrDecode, source, err)
	}
	if err := doc.validate(); err != nil {
		return Session{}, newError(ErrDecode, source, err)
	}

	sess := Session{
		Timestamp:    *doc.Timestamp,
		Entries:      make([]models.Entry, len(*doc.Records)),
		Acknowledged: *doc.Acknowledged,
	}
	for i, rec := range *doc.Records {
		e, err := rec.toEntry()
		if err != nil {
			return Session{}, newError(ErrDecode, source, fmt.Errorf("record %d: %w", i, err))
		}
		sess.Entries[i] = e
	}
	return sess, nil
}

func (d *document) validate() error {
	switch {
	case d.Format == nil:
		return errors.New("missing field \"format\"")
	case *d.Format != formatVersion:
		return fmt.Errorf("unsupported document format %d", *d.Format)
	case d.Timestamp == nil:
		return errors.New("missing field \"session_timestamp\"")
	case d.Records == nil:
		return errors.New("missing field \"records\"")
	case d.Acknowledged == nil:
		return errors.New("missing field \"acknowledged_messages\"")
	}
	return nil
}

// Store converts the session into the value accepted by LogStore.Replace.
func (s Session) Store() store.Session {
	return store.Session{
		Timestamp:    s.Timestamp,
		Entries:      s.Entries,
		Acknowledged: s.Acknowledged,
	}
}

func toEntryDoc(e models.Entry) entryDoc {
	received := e.Received.Format(time.RFC3339Nano)
	id := e.Log.UUID
	msg := e.Log.Message
	doc := entryDoc{
		UUID:        &id,
		Message:     &msg,
		Address:     e.Log.Address,
		FileName:    e.Log.FileName,
		LineNumber:  e.Log.LineNumber,
		Warnings:    e.Log.Warnings,
		CodeSnippet: e.Log.CodeSnippet,
		Language:    e.Log.Language,
		Received:    &received,
	}
	for _, f := range e.Log.Stack {
		doc.Stack = append(doc.Stack, frameDoc(f))
	}
	return doc
}

func (d entryDoc) toEntry() (models.Entry, error) {
	switch {
	case d.UUID == nil || *d.UUID == "":
		return models.Entry{}, errors.New("missing field \"uuid\"")
	case d.Message == nil:
		return models.Entry{}, errors.New("missing field \"message\"")
	case d.Received == nil:
		return models.Entry{}, errors.New("missing field \"timestamp\"")
	}
	received, err := time.Parse(time.RFC3339Nano, *d.Received)
	if err != nil {
		return models.Entry{}, fmt.Errorf("bad timestamp: %w", err)
	}

	rec := models.LogRecord{
		UUID:        *d.UUID,
		Message:     *d.Message,
		Address:     d.Address,
		FileName:    d.FileName,
		LineNumber:  d.LineNumber,
		Warnings:    d.Warnings,
		CodeSnippet: d.CodeSnippet,
		Language:    d.Language,
	}
	for _, f := range d.Stack {
		rec.Stack = append(rec.Stack, models.BacktraceFrame(f))
	}
	return models.Entry{Log: rec, Received: received}, nil
}
