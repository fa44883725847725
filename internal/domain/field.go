package domain

import (
	"bytes"
	"encoding/json"
)

type fieldState uint8

const (
	fieldAbsent fieldState = iota
	fieldSet
	fieldCleared
)

// Field is a tri-state patch value: absent (leave unchanged), set to a
// value, or explicitly cleared. When decoded from JSON, a missing key is
// absent and a null is a clear.
type Field[T any] struct {
	state fieldState
	value T
}

// Set returns a Field holding v.
func Set[T any](v T) Field[T] { return Field[T]{state: fieldSet, value: v} }

// Clear returns a Field that clears the target.
func Clear[T any]() Field[T] { return Field[T]{state: fieldCleared} }

// Present reports whether the field was sent at all.
func (f Field[T]) Present() bool { return f.state != fieldAbsent }

// IsSet reports whether the field carries a value.
func (f Field[T]) IsSet() bool { return f.state == fieldSet }

// IsClear reports whether the field was sent as an explicit clear.
func (f Field[T]) IsClear() bool { return f.state == fieldCleared }

// Value returns the carried value; the zero value unless IsSet.
func (f Field[T]) Value() T { return f.value }

// Apply merges f into dst: set overwrites, clear nils, absent leaves dst.
func (f Field[T]) Apply(dst **T) {
	switch f.state {
	case fieldSet:
		v := f.value
		*dst = &v
	case fieldCleared:
		*dst = nil
	}
}

// Raw returns the JSON-compatible patch value: the value when set, nil when
// cleared. ok is false when absent.
func (f Field[T]) Raw() (v any, ok bool) {
	switch f.state {
	case fieldSet:
		return f.value, true
	case fieldCleared:
		return nil, true
	}
	return nil, false
}

// UnmarshalJSON implements json.Unmarshaler. It is only invoked for keys
// that are present in the document.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		f.state, f.value = fieldCleared, zero
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	f.state, f.value = fieldSet, v
	return nil
}

// MarshalJSON implements json.Marshaler. Absent fields marshal as null;
// use Raw when the distinction matters.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if f.state != fieldSet {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}
