// Package types holds wire-level helper types shared by the api and services.
package types

import (
	"bytes"
	"encoding/json"
)

// Nullable tells a PATCH field that was left out (Valid false) apart from
// one sent as null (Valid true, Value nil).
type Nullable[T any] struct {
	Valid bool
	Value *T
}

// Set returns a Nullable carrying v.
func Set[T any](v T) Nullable[T] {
	return Nullable[T]{Valid: true, Value: &v}
}

// Null returns an explicit null.
func Null[T any]() Nullable[T] {
	return Nullable[T]{Valid: true}
}

func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	n.Valid = true
	n.Value = nil
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	v := new(T)
	if err := json.Unmarshal(data, v); err != nil {
		return err
	}
	n.Value = v
	return nil
}

// Or applies the patch to current: an omitted field keeps current.
func (n Nullable[T]) Or(current *T) *T {
	if !n.Valid {
		return current
	}
	return n.Value
}
