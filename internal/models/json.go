package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

// JSONDocument is an opaque JSON column that may be NULL. A nil document
// persists as SQL NULL and marshals as JSON null.
type JSONDocument []byte

// Value returns the raw JSON for persistence, or NULL when empty.
func (d JSONDocument) Value() (driver.Value, error) {
	if len(d) == 0 {
		return nil, nil
	}
	return []byte(d), nil
}

// Scan loads a JSON column, treating NULL as an absent document.
func (d *JSONDocument) Scan(value interface{}) error {
	if value == nil {
		*d = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*d = append((*d)[:0], v...)
	case string:
		*d = JSONDocument(v)
	default:
		return fmt.Errorf("unsupported type %T for JSONDocument", value)
	}
	return nil
}

// MarshalJSON emits the document verbatim, or null when absent.
func (d JSONDocument) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("null"), nil
	}
	return d, nil
}

// UnmarshalJSON stores the raw payload without inspecting it.
func (d *JSONDocument) UnmarshalJSON(data []byte) error {
	if d == nil {
		return errors.New("models.JSONDocument: UnmarshalJSON on nil pointer")
	}
	if string(data) == "null" {
		*d = nil
		return nil
	}
	*d = append((*d)[:0], data...)
	return nil
}
