package dataframe

import (
	"context"
	"fmt"

	"github.com/eau2/eau2/codec"
	"github.com/eau2/eau2/kv"
)

// Column is a typed, dataframe-level column: a type tag plus the
// DistributedColumn holding its cells. Grounded on Column in
// Personal Projects/CompSci_Projects/p2p_kvstore/src/column.h, which wraps
// a DistributedVector the same way.
//
// Unlike the original's push_back family (which checks the type tag with
// `=` instead of `==`, silently disabling the guard), every PushX here
// compares with `==` and rejects a mismatched push with ErrTypeMismatch
// (SPEC_FULL.md §9, first open question).
type Column struct {
	typ kv.CellType
	dc  *DistributedColumn
}

// NewColumn returns an empty column of the given type, rooted at key.
func NewColumn(typ kv.CellType, store Store, root kv.Key, chunkSize int) (*Column, error) {
	if !validColumnType(typ) {
		return nil, fmt.Errorf("dataframe: %w: invalid column type %q", ErrAssertion, typ)
	}
	return &Column{typ: typ, dc: NewDistributedColumn(store, root, chunkSize)}, nil
}

// Type returns the column's type tag.
func (c *Column) Type() kv.CellType { return c.typ }

// Size returns the number of rows appended so far.
func (c *Column) Size() uint64 { return c.dc.Size() }

// State returns the column's Open/Sealed state.
func (c *Column) State() ColumnState { return c.dc.State() }

func (c *Column) typeMismatch(want kv.CellType) error {
	return fmt.Errorf("dataframe: %w: column type is %s, not %s", ErrTypeMismatch, c.typ, want)
}

// PushInt appends val. c's type must be Int.
func (c *Column) PushInt(ctx context.Context, val int32) error {
	if c.typ != kv.TypeInt {
		return c.typeMismatch(kv.TypeInt)
	}
	return c.dc.Append(ctx, kv.IntCell(val))
}

// PushBool appends val. c's type must be Bool.
func (c *Column) PushBool(ctx context.Context, val bool) error {
	if c.typ != kv.TypeBool {
		return c.typeMismatch(kv.TypeBool)
	}
	return c.dc.Append(ctx, kv.BoolCell(val))
}

// PushFloat appends val. c's type must be Float.
func (c *Column) PushFloat(ctx context.Context, val float32) error {
	if c.typ != kv.TypeFloat {
		return c.typeMismatch(kv.TypeFloat)
	}
	return c.dc.Append(ctx, kv.FloatCell(val))
}

// PushString appends val. c's type must be Str.
func (c *Column) PushString(ctx context.Context, val string) error {
	if c.typ != kv.TypeString {
		return c.typeMismatch(kv.TypeString)
	}
	return c.dc.Append(ctx, kv.StringCell(val))
}

// AppendMissing appends a Missing cell, used by dataframe padding
// regardless of c's type.
func (c *Column) AppendMissing(ctx context.Context) error {
	return c.dc.Append(ctx, kv.MissingCell())
}

// GetInt returns the value at row idx. c's type must be Int.
func (c *Column) GetInt(ctx context.Context, idx uint64) (int32, error) {
	if c.typ != kv.TypeInt {
		return 0, c.typeMismatch(kv.TypeInt)
	}
	cell, err := c.dc.Get(ctx, idx)
	if err != nil {
		return 0, err
	}
	return cell.Int()
}

// GetBool returns the value at row idx. c's type must be Bool.
func (c *Column) GetBool(ctx context.Context, idx uint64) (bool, error) {
	if c.typ != kv.TypeBool {
		return false, c.typeMismatch(kv.TypeBool)
	}
	cell, err := c.dc.Get(ctx, idx)
	if err != nil {
		return false, err
	}
	return cell.Bool()
}

// GetFloat returns the value at row idx. c's type must be Float.
func (c *Column) GetFloat(ctx context.Context, idx uint64) (float32, error) {
	if c.typ != kv.TypeFloat {
		return 0, c.typeMismatch(kv.TypeFloat)
	}
	cell, err := c.dc.Get(ctx, idx)
	if err != nil {
		return 0, err
	}
	return cell.Float()
}

// GetString returns the value at row idx. c's type must be Str.
func (c *Column) GetString(ctx context.Context, idx uint64) (string, error) {
	if c.typ != kv.TypeString {
		return "", c.typeMismatch(kv.TypeString)
	}
	cell, err := c.dc.Get(ctx, idx)
	if err != nil {
		return "", err
	}
	return cell.Str()
}

// HomeOf returns the home node of the chunk containing row idx.
func (c *Column) HomeOf(idx uint64) (int, error) { return c.dc.HomeOf(idx) }

// Lock seals the column, flushing any buffered cells.
func (c *Column) Lock(ctx context.Context) error { return c.dc.Lock(ctx) }

// Unlock reopens a sealed column for further appends.
func (c *Column) Unlock(ctx context.Context) error { return c.dc.Unlock(ctx) }

// Encode writes the type byte followed by the underlying DistributedColumn
// encoding (the `column` grammar production).
func (c *Column) Encode(w *codec.Writer) error {
	w.PutRaw([]byte{byte(c.typ)})
	return c.dc.Encode(w)
}

// DecodeColumn decodes a Column encoded by Encode.
func DecodeColumn(r *codec.Reader, store Store, chunkSize int) (*Column, error) {
	tb, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("dataframe: decoding column type byte: %w", err)
	}
	typ := kv.CellType(tb)
	if !validColumnType(typ) {
		return nil, fmt.Errorf("dataframe: %w: unknown column type byte %q", ErrAssertion, tb)
	}
	dc, err := DecodeDistributedColumn(r, store, chunkSize)
	if err != nil {
		return nil, fmt.Errorf("dataframe: decoding column %s: %w", typ, err)
	}
	return &Column{typ: typ, dc: dc}, nil
}
