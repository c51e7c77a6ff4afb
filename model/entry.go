package model

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// Entry is an element of a resource list. Besides its links it keeps every
// other field untyped, so summary labels can reference arbitrary fields.
type Entry struct {
	Links  Links
	fields map[string]any
}

// NewEntry builds an entry from a self href and additional fields.
func NewEntry(self string, fields map[string]any) Entry {
	e := Entry{Links: SelfLinks(self), fields: make(map[string]any, len(fields))}
	for k, v := range fields {
		e.fields[k] = v
	}
	return e
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if raw, ok := fields["links"]; ok {
		encoded, err := json.Marshal(raw)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(encoded, &e.Links); err != nil {
			return fmt.Errorf("decode links: %w", err)
		}
		delete(fields, "links")
	}
	e.fields = fields
	return nil
}

// MarshalJSON implements json.Marshaler.
func (e Entry) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.fields)+1)
	for k, v := range e.fields {
		out[k] = v
	}
	out["links"] = e.Links
	return json.Marshal(out)
}

// SelfURL returns the self href of the entry.
func (e Entry) SelfURL() (string, error) {
	return e.Links.Self()
}

// Disassociated reports the "hasBeenDisassociated" flag.
func (e Entry) Disassociated() bool {
	return e.Bool("hasBeenDisassociated")
}

// Processing reports the "isBeingProcessed" flag.
func (e Entry) Processing() bool {
	return e.Bool("isBeingProcessed")
}

// Fields returns a copy of the untyped fields.
func (e Entry) Fields() map[string]any {
	out := make(map[string]any, len(e.fields))
	for k, v := range e.fields {
		out[k] = v
	}
	return out
}

// Value returns the raw field called name.
func (e Entry) Value(name string) (any, bool) {
	v, ok := e.fields[name]
	return v, ok
}

// String returns the field called name as text. Numbers are rendered without
// exponent.
func (e Entry) String(name string) string {
	v, ok := e.fields[name]
	if !ok || v == nil {
		return ""
	}
	switch typed := v.(type) {
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	default:
		return fmt.Sprint(typed)
	}
}

// Int returns the field called name as integer.
func (e Entry) Int(name string) (int64, bool) {
	switch typed := e.fields[name].(type) {
	case float64:
		return int64(typed), true
	case string:
		n, err := strconv.ParseInt(typed, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// Bool returns the field called name as boolean; anything but true is false.
func (e Entry) Bool(name string) bool {
	switch typed := e.fields[name].(type) {
	case bool:
		return typed
	case float64:
		return typed != 0
	case string:
		b, _ := strconv.ParseBool(typed)
		return b
	default:
		return false
	}
}
