package grpc

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"cdctrl/internal/models"

	"google.golang.org/protobuf/types/known/structpb"
)

// ErrMalformedRecord is returned when a Struct payload has a field of the wrong type.
var ErrMalformedRecord = errors.New("malformed log record")

// DecodeRecord converts a Struct payload into a LogRecord and assigns its identity.
// Unknown keys are ignored; missing keys keep their zero value.
func DecodeRecord(s *structpb.Struct) (models.LogRecord, error) {
	var rec models.LogRecord
	if s == nil {
		return rec, fmt.Errorf("%w: empty payload", ErrMalformedRecord)
	}
	f := s.GetFields()

	var err error
	if rec.UUID, err = stringField(f, "uuid"); err != nil {
		return rec, err
	}
	if rec.Message, err = stringField(f, "message"); err != nil {
		return rec, err
	}
	if rec.Address, err = stringField(f, "address"); err != nil {
		return rec, err
	}
	if rec.FileName, err = stringField(f, "file_name"); err != nil {
		return rec, err
	}
	if rec.Language, err = stringField(f, "language"); err != nil {
		return rec, err
	}
	if rec.LineNumber, err = uint32Field(f, "line_number"); err != nil {
		return rec, err
	}
	if rec.Warnings, err = stringList(f, "warnings"); err != nil {
		return rec, err
	}
	if rec.Stack, err = frames(f["stack"]); err != nil {
		return rec, err
	}
	if rec.CodeSnippet, err = snippet(f["code_snippet"]); err != nil {
		return rec, err
	}

	rec.AssignIdentity()
	return rec, nil
}

// EncodeRecord is the inverse of DecodeRecord, used by clients.
func EncodeRecord(rec models.LogRecord) (*structpb.Struct, error) {
	m := map[string]interface{}{
		"message":     rec.Message,
		"address":     rec.Address,
		"file_name":   rec.FileName,
		"line_number": float64(rec.LineNumber),
	}
	if rec.UUID != "" {
		m["uuid"] = rec.UUID
	}
	if rec.Language != "" {
		m["language"] = rec.Language
	}
	if len(rec.Warnings) > 0 {
		ws := make([]interface{}, len(rec.Warnings))
		for i, w := range rec.Warnings {
			ws[i] = w
		}
		m["warnings"] = ws
	}
	if len(rec.Stack) > 0 {
		st := make([]interface{}, len(rec.Stack))
		for i, fr := range rec.Stack {
			st[i] = map[string]interface{}{
				"name":          fr.Name,
				"file_path":     fr.FilePath,
				"line_number":   float64(fr.LineNumber),
				"column_number": float64(fr.ColumnNumber),
				"code":          fr.Code,
			}
		}
		m["stack"] = st
	}
	if len(rec.CodeSnippet) > 0 {
		lines := make([]uint32, 0, len(rec.CodeSnippet))
		for n := range rec.CodeSnippet {
			lines = append(lines, n)
		}
		sort.Slice(lines, func(i, j int) bool { return lines[i] < lines[j] })
		cs := make(map[string]interface{}, len(lines))
		for _, n := range lines {
			cs[strconv.FormatUint(uint64(n), 10)] = rec.CodeSnippet[n]
		}
		m["code_snippet"] = cs
	}
	return structpb.NewStruct(m)
}

func stringField(f map[string]*structpb.Value, key string) (string, error) {
	v, ok := f[key]
	if !ok || isNull(v) {
		return "", nil
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrMalformedRecord, key)
	}
	return s.StringValue, nil
}

func uint32Field(f map[string]*structpb.Value, key string) (uint32, error) {
	v, ok := f[key]
	if !ok || isNull(v) {
		return 0, nil
	}
	return toUint32(v, key)
}

func toUint32(v *structpb.Value, key string) (uint32, error) {
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be a number", ErrMalformedRecord, key)
	}
	x := n.NumberValue
	if x < 0 || x > math.MaxUint32 || x != math.Trunc(x) {
		return 0, fmt.Errorf("%w: %s out of range: %v", ErrMalformedRecord, key, x)
	}
	return uint32(x), nil
}

func stringList(f map[string]*structpb.Value, key string) ([]string, error) {
	v, ok := f[key]
	if !ok || isNull(v) {
		return nil, nil
	}
	l, ok := v.GetKind().(*structpb.Value_ListValue)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a list", ErrMalformedRecord, key)
	}
	out := make([]string, 0, len(l.ListValue.GetValues()))
	for i, item := range l.ListValue.GetValues() {
		s, ok := item.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("%w: %s[%d] must be a string", ErrMalformedRecord, key, i)
		}
		out = append(out, s.StringValue)
	}
	return out, nil
}

func frames(v *structpb.Value) ([]models.BacktraceFrame, error) {
	if v == nil || isNull(v) {
		return nil, nil
	}
	l, ok := v.GetKind().(*structpb.Value_ListValue)
	if !ok {
		return nil, fmt.Errorf("%w: stack must be a list", ErrMalformedRecord)
	}
	out := make([]models.BacktraceFrame, 0, len(l.ListValue.GetValues()))
	for i, item := range l.ListValue.GetValues() {
		sv, ok := item.GetKind().(*structpb.Value_StructValue)
		if !ok {
			return nil, fmt.Errorf("%w: stack[%d] must be an object", ErrMalformedRecord, i)
		}
		f := sv.StructValue.GetFields()
		var fr models.BacktraceFrame
		var err error
		if fr.Name, err = stringField(f, "name"); err != nil {
			return nil, err
		}
		if fr.FilePath, err = stringField(f, "file_path"); err != nil {
			return nil, err
		}
		if fr.Code, err = stringField(f, "code"); err != nil {
			return nil, err
		}
		if fr.LineNumber, err = uint32Field(f, "line_number"); err != nil {
			return nil, err
		}
		if fr.ColumnNumber, err = uint32Field(f, "column_number"); err != nil {
			return nil, err
		}
		out = append(out, fr)
	}
	return out, nil
}

func snippet(v *structpb.Value) (map[uint32]string, error) {
	if v == nil || isNull(v) {
		return nil, nil
	}
	sv, ok := v.GetKind().(*structpb.Value_StructValue)
	if !ok {
		return nil, fmt.Errorf("%w: code_snippet must be an object", ErrMalformedRecord)
	}
	out := make(map[uint32]string, len(sv.StructValue.GetFields()))
	for k, line := range sv.StructValue.GetFields() {
		n, err := strconv.ParseUint(k, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: code_snippet key %q is not a line number", ErrMalformedRecord, k)
		}
		s, ok := line.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("%w: code_snippet[%s] must be a string", ErrMalformedRecord, k)
		}
		out[uint32(n)] = s.StringValue
	}
	return out, nil
}

func isNull(v *structpb.Value) bool {
	_, ok := v.GetKind().(*structpb.Value_NullValue)
	return ok
}
