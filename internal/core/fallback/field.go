package fallback

import (
	"bytes"
	"strings"

	"github.com/goccy/go-json"
)

// Field is an optional value that remembers whether it has been filled.
// Multi-part values such as coordinate pairs are stored as one Field so
// they are merged as a unit.
type Field[T any] struct {
	value T
	set   bool
}

// Some returns a filled field.
func Some[T any](v T) Field[T] {
	return Field[T]{value: v, set: true}
}

// None returns an empty field.
func None[T any]() Field[T] {
	return Field[T]{}
}

// Text returns a filled field for non-blank strings and an empty one otherwise.
func Text(s string) Field[string] {
	s = strings.TrimSpace(s)
	if s == "" {
		return Field[string]{}
	}
	return Some(s)
}

// Get returns the value and whether it is set.
func (f Field[T]) Get() (T, bool) {
	return f.value, f.set
}

// Value returns the value, or the zero value when unset.
func (f Field[T]) Value() T {
	return f.value
}

// IsSet reports whether the field holds a value.
func (f Field[T]) IsSet() bool {
	return f.set
}

// Or returns f when it is set and next otherwise. A filled field is never
// replaced, and an empty next never clears anything.
func (f Field[T]) Or(next Field[T]) Field[T] {
	if f.set {
		return f
	}
	return next
}

// MarshalJSON encodes unset fields as null.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.set {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}

// UnmarshalJSON treats null as unset.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = Field[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Some(v)
	return nil
}
