package dataframe

import (
	"fmt"

	"github.com/eau2/eau2/kv"
)

// Schema is an ordered sequence of column type tags (SPEC_FULL.md §3),
// grounded on the original's Schema (an IntVector of type chars) in
// CompSci_Projects/p2p_kvstore/src/schema.h.
type Schema struct {
	types []kv.CellType
}

// NewSchema returns an empty schema.
func NewSchema() *Schema { return &Schema{} }

// NewSchemaFromString builds a schema from a string of type characters
// (each one of I, B, F, S); any other character is rejected.
func NewSchemaFromString(types string) (*Schema, error) {
	s := &Schema{types: make([]kv.CellType, 0, len(types))}
	for _, c := range []byte(types) {
		t := kv.CellType(c)
		if !validColumnType(t) {
			return nil, fmt.Errorf("dataframe: %w: invalid schema type character %q", ErrAssertion, c)
		}
		s.types = append(s.types, t)
	}
	return s, nil
}

func validColumnType(t kv.CellType) bool {
	switch t {
	case kv.TypeInt, kv.TypeBool, kv.TypeFloat, kv.TypeString:
		return true
	default:
		return false
	}
}

// Add appends a column type to the schema.
func (s *Schema) Add(t kv.CellType) error {
	if !validColumnType(t) {
		return fmt.Errorf("dataframe: %w: invalid schema type %q", ErrAssertion, t)
	}
	s.types = append(s.types, t)
	return nil
}

// Width returns the number of columns described by the schema.
func (s *Schema) Width() int { return len(s.types) }

// Type returns the type tag of column idx.
func (s *Schema) Type(idx int) (kv.CellType, error) {
	if idx < 0 || idx >= len(s.types) {
		return 0, fmt.Errorf("dataframe: %w: schema column index %d out of range [0,%d)", ErrAssertion, idx, len(s.types))
	}
	return s.types[idx], nil
}

// Equals reports sequence equality of the two schemas' types.
func (s *Schema) Equals(o *Schema) bool {
	if o == nil || len(s.types) != len(o.types) {
		return false
	}
	for i := range s.types {
		if s.types[i] != o.types[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the schema.
func (s *Schema) Clone() *Schema {
	c := &Schema{types: make([]kv.CellType, len(s.types))}
	copy(c.types, s.types)
	return c
}

// String renders the schema as its type-character string, e.g. "IBFS".
func (s *Schema) String() string {
	b := make([]byte, len(s.types))
	for i, t := range s.types {
		b[i] = byte(t)
	}
	return string(b)
}
