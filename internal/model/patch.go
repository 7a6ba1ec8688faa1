package model

import "encoding/json"

// Field is an optional value in a partial update. Set is true only when the
// key was present in the decoded payload, so a zero Value can still be written.
type Field[T any] struct {
	Value T
	Set   bool
}

// Some returns a Field that is present with value v.
func Some[T any](v T) Field[T] {
	return Field[T]{Value: v, Set: true}
}

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Set = true
	if string(data) == "null" {
		var zero T
		f.Value = zero
		return nil
	}
	return json.Unmarshal(data, &f.Value)
}

func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.Set {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// put adds column=value to cols when f is present.
func put[T any](cols map[string]any, column string, f Field[T]) {
	if f.Set {
		cols[column] = f.Value
	}
}
