package dataframe

import (
	"context"
	"fmt"

	"github.com/eau2/eau2/codec"
	"github.com/eau2/eau2/kv"
)

// Dataframe is a typed columnar table: a schema plus one Column per
// declared type, all of equal length once sealed, plus the back-references
// (root key, kv Store) needed to synthesize each column's chunk keys
// (SPEC_FULL.md §3). Grounded on DataFrame in
// CS_Projects/p2p_kvstore/src/dataframe.h.
type Dataframe struct {
	schema    *Schema
	columns   []*Column
	nrows     uint64
	store     Store
	root      kv.Key
	chunkSize int
}

// NewDataframe returns a dataframe with the given schema, all columns
// empty and Open, rooted at key. Each column's own key is synthesized from
// key the way the original's constructor builds `kbuf.c("-c"); kbuf.c(i)`
// per column.
func NewDataframe(schema *Schema, store Store, key kv.Key, chunkSize int) (*Dataframe, error) {
	df := &Dataframe{schema: schema.Clone(), store: store, root: key, chunkSize: chunkSize}
	kb := kv.NewKeyBuilder(key)
	for i := 0; i < schema.Width(); i++ {
		typ, err := schema.Type(i)
		if err != nil {
			return nil, err
		}
		colKey := kb.AppendString("-c").AppendInt(i).Build(store.Index())
		col, err := NewColumn(typ, store, colKey, chunkSize)
		if err != nil {
			return nil, err
		}
		df.columns = append(df.columns, col)
	}
	return df, nil
}

// NewEmptyDataframe returns a dataframe with an empty schema and no
// columns, the way the original's constructor overload supports
// AddColumn-driven table building.
func NewEmptyDataframe(store Store, key kv.Key, chunkSize int) *Dataframe {
	return &Dataframe{schema: NewSchema(), store: store, root: key, chunkSize: chunkSize}
}

// Schema returns the dataframe's schema. Mutating it after construction is
// undefined; callers should treat it as read-only.
func (df *Dataframe) Schema() *Schema { return df.schema }

// NRows is the number of rows in the dataframe.
func (df *Dataframe) NRows() uint64 { return df.nrows }

// NCols is the number of columns in the dataframe.
func (df *Dataframe) NCols() int { return len(df.columns) }

// Key returns the root key this dataframe is (or will be) published under.
func (df *Dataframe) Key() kv.Key { return df.root }

// GetInt returns the value at (col, row). Column col must be typed Int.
func (df *Dataframe) GetInt(ctx context.Context, col int, row uint64) (int32, error) {
	c, err := df.column(col)
	if err != nil {
		return 0, err
	}
	return c.GetInt(ctx, row)
}

// GetBool returns the value at (col, row). Column col must be typed Bool.
func (df *Dataframe) GetBool(ctx context.Context, col int, row uint64) (bool, error) {
	c, err := df.column(col)
	if err != nil {
		return false, err
	}
	return c.GetBool(ctx, row)
}

// GetFloat returns the value at (col, row). Column col must be typed Float.
func (df *Dataframe) GetFloat(ctx context.Context, col int, row uint64) (float32, error) {
	c, err := df.column(col)
	if err != nil {
		return 0, err
	}
	return c.GetFloat(ctx, row)
}

// GetString returns the value at (col, row). Column col must be typed Str.
func (df *Dataframe) GetString(ctx context.Context, col int, row uint64) (string, error) {
	c, err := df.column(col)
	if err != nil {
		return "", err
	}
	return c.GetString(ctx, row)
}

func (df *Dataframe) column(col int) (*Column, error) {
	if col < 0 || col >= len(df.columns) {
		return nil, fmt.Errorf("dataframe: %w: column index %d out of range [0,%d)", ErrAssertion, col, len(df.columns))
	}
	return df.columns[col], nil
}

// HomeOfRow returns the home node of row r, delegating to column 0
// (every column in a sealed dataframe shares the same chunk placement).
func (df *Dataframe) HomeOfRow(r uint64) (int, error) {
	c, err := df.column(0)
	if err != nil {
		return 0, err
	}
	return c.HomeOf(r)
}

// FillRow sets row's fields from columns[*][idx]. row must be bound to a
// schema equal to the dataframe's.
func (df *Dataframe) FillRow(ctx context.Context, idx uint64, row *Row) error {
	if !df.schema.Equals(row.schema) {
		return fmt.Errorf("dataframe: %w: row's schema does not match the dataframe's", ErrAssertion)
	}
	for j, col := range df.columns {
		switch col.Type() {
		case kv.TypeInt:
			v, err := col.GetInt(ctx, idx)
			if err != nil {
				return err
			}
			if err := row.SetInt(j, v); err != nil {
				return err
			}
		case kv.TypeBool:
			v, err := col.GetBool(ctx, idx)
			if err != nil {
				return err
			}
			if err := row.SetBool(j, v); err != nil {
				return err
			}
		case kv.TypeFloat:
			v, err := col.GetFloat(ctx, idx)
			if err != nil {
				return err
			}
			if err := row.SetFloat(j, v); err != nil {
				return err
			}
		case kv.TypeString:
			v, err := col.GetString(ctx, idx)
			if err != nil {
				return err
			}
			if err := row.SetString(j, v); err != nil {
				return err
			}
		}
	}
	row.SetIdx(int(idx))
	return nil
}

// AddRow appends row's fields to the matching columns. If last is true,
// every column is sealed afterward.
func (df *Dataframe) AddRow(ctx context.Context, row *Row, last bool) error {
	if !df.schema.Equals(row.schema) {
		return fmt.Errorf("dataframe: %w: row's schema does not match the dataframe's", ErrAssertion)
	}
	for j, col := range df.columns {
		var err error
		switch col.Type() {
		case kv.TypeInt:
			var v int32
			if v, err = row.GetInt(j); err == nil {
				err = col.PushInt(ctx, v)
			}
		case kv.TypeBool:
			var v bool
			if v, err = row.GetBool(j); err == nil {
				err = col.PushBool(ctx, v)
			}
		case kv.TypeFloat:
			var v float32
			if v, err = row.GetFloat(j); err == nil {
				err = col.PushFloat(ctx, v)
			}
		case kv.TypeString:
			var v string
			if v, err = row.GetString(j); err == nil {
				err = col.PushString(ctx, v)
			}
		}
		if err != nil {
			return err
		}
		if last {
			if err := col.Lock(ctx); err != nil {
				return err
			}
		}
	}
	df.nrows++
	return nil
}

// AddColumn appends col as the dataframe's last column, updating the
// schema. If col is shorter than the current row count it is padded with
// Missing cells; if it is longer, every existing column is padded up to
// match (SPEC_FULL.md §4.5).
func (df *Dataframe) AddColumn(ctx context.Context, col *Column) error {
	if col == nil {
		return fmt.Errorf("dataframe: %w: nil column", ErrAssertion)
	}
	if col.Size() < df.nrows {
		if err := df.padColumn(ctx, col); err != nil {
			return err
		}
	} else if col.Size() > df.nrows {
		df.nrows = col.Size()
		for _, c := range df.columns {
			if err := df.padColumn(ctx, c); err != nil {
				return err
			}
		}
	}
	df.columns = append(df.columns, col)
	if len(df.columns) > df.schema.Width() {
		if err := df.schema.Add(col.Type()); err != nil {
			return err
		}
	}
	return nil
}

// padColumn appends Missing cells to col until its length matches the
// dataframe's row count, unlocking and re-sealing it around the appends.
func (df *Dataframe) padColumn(ctx context.Context, col *Column) error {
	if err := col.Unlock(ctx); err != nil {
		return err
	}
	for col.Size() < df.nrows {
		if err := col.AppendMissing(ctx); err != nil {
			return err
		}
	}
	return col.Lock(ctx)
}

// Map visits every row in order, calling r.Accept(row).
func (df *Dataframe) Map(ctx context.Context, r Rower) error {
	row := NewRow(df.schema)
	for i := uint64(0); i < df.nrows; i++ {
		if err := df.FillRow(ctx, i, row); err != nil {
			return err
		}
		r.Accept(row)
	}
	return nil
}

// LocalMap visits only the rows whose home node is this dataframe's node,
// the affinity primitive that lets applications compute where data lives.
func (df *Dataframe) LocalMap(ctx context.Context, r Rower) error {
	row := NewRow(df.schema)
	for i := uint64(0); i < df.nrows; i++ {
		home, err := df.HomeOfRow(i)
		if err != nil {
			return err
		}
		if home != df.store.Index() {
			continue
		}
		if err := df.FillRow(ctx, i, row); err != nil {
			return err
		}
		r.Accept(row)
	}
	return nil
}

// Filter streams rows accepted by r into a new, sealed dataframe with the
// same schema, published under destKey. Go requires an explicit
// destination key here: the original reuses the source dataframe's own
// key for the filtered copy, which silently overwrites the source's
// per-column chunk keys in the KV map the next time either is flushed; this
// implementation treats that reuse as a defect rather than reproducing it.
func (df *Dataframe) Filter(ctx context.Context, r Rower, destKey kv.Key) (*Dataframe, error) {
	out, err := NewDataframe(df.schema, df.store, destKey, df.chunkSize)
	if err != nil {
		return nil, err
	}
	row := NewRow(df.schema)
	for i := uint64(0); i < df.nrows; i++ {
		if err := df.FillRow(ctx, i, row); err != nil {
			return nil, err
		}
		if r.Accept(row) {
			if err := out.AddRow(ctx, row, false); err != nil {
				return nil, err
			}
		}
	}
	if err := out.lockAllColumns(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (df *Dataframe) lockAllColumns(ctx context.Context) error {
	for _, c := range df.columns {
		if c.State() == StateOpen {
			if err := c.Lock(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// put serializes and stores df under its own root key.
func (df *Dataframe) put(ctx context.Context) error {
	w := codec.NewWriter()
	if err := df.Encode(w); err != nil {
		return err
	}
	return df.store.Put(ctx, df.root, w.Bytes())
}

// Encode writes "[" · columns... · "]" with no element count, matching
// the `df` grammar production and the original's peek-terminated
// deserialize_dataframe.
func (df *Dataframe) Encode(w *codec.Writer) error {
	w.PutOpenBracket()
	for _, c := range df.columns {
		if err := c.Encode(w); err != nil {
			return err
		}
	}
	w.CloseSeq()
	return nil
}

// DecodeDataframe decodes a Dataframe encoded by Encode, bound to key and
// served by store.
func DecodeDataframe(r *codec.Reader, store Store, key kv.Key, chunkSize int) (*Dataframe, error) {
	if err := r.ExpectOpen(); err != nil {
		return nil, fmt.Errorf("dataframe: decoding dataframe: %w", err)
	}
	df := &Dataframe{schema: NewSchema(), store: store, root: key, chunkSize: chunkSize}
	for !r.AtClose() {
		col, err := DecodeColumn(r, store, chunkSize)
		if err != nil {
			return nil, fmt.Errorf("dataframe: decoding column %d: %w", len(df.columns), err)
		}
		if err := df.AddColumn(context.Background(), col); err != nil {
			return nil, err
		}
	}
	if err := r.CloseSeq(); err != nil {
		return nil, err
	}
	return df, nil
}
