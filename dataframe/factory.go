package dataframe

import (
	"context"

	"github.com/eau2/eau2/kv"
)

// FromIntArray builds a one-column Int dataframe from vals, publishes it
// under key, and returns it (SPEC_FULL.md §4.5).
func FromIntArray(ctx context.Context, key kv.Key, store Store, chunkSize int, vals []int32) (*Dataframe, error) {
	schema, err := NewSchemaFromString("I")
	if err != nil {
		return nil, err
	}
	df, err := NewDataframe(schema, store, key, chunkSize)
	if err != nil {
		return nil, err
	}
	col := df.columns[0]
	for _, v := range vals {
		if err := col.PushInt(ctx, v); err != nil {
			return nil, err
		}
	}
	df.nrows = uint64(len(vals))
	if err := col.Lock(ctx); err != nil {
		return nil, err
	}
	if err := df.put(ctx); err != nil {
		return nil, err
	}
	return df, nil
}

// FromBoolArray builds a one-column Bool dataframe from vals.
func FromBoolArray(ctx context.Context, key kv.Key, store Store, chunkSize int, vals []bool) (*Dataframe, error) {
	schema, err := NewSchemaFromString("B")
	if err != nil {
		return nil, err
	}
	df, err := NewDataframe(schema, store, key, chunkSize)
	if err != nil {
		return nil, err
	}
	col := df.columns[0]
	for _, v := range vals {
		if err := col.PushBool(ctx, v); err != nil {
			return nil, err
		}
	}
	df.nrows = uint64(len(vals))
	if err := col.Lock(ctx); err != nil {
		return nil, err
	}
	if err := df.put(ctx); err != nil {
		return nil, err
	}
	return df, nil
}

// FromFloatArray builds a one-column Float dataframe from vals.
func FromFloatArray(ctx context.Context, key kv.Key, store Store, chunkSize int, vals []float32) (*Dataframe, error) {
	schema, err := NewSchemaFromString("F")
	if err != nil {
		return nil, err
	}
	df, err := NewDataframe(schema, store, key, chunkSize)
	if err != nil {
		return nil, err
	}
	col := df.columns[0]
	for _, v := range vals {
		if err := col.PushFloat(ctx, v); err != nil {
			return nil, err
		}
	}
	df.nrows = uint64(len(vals))
	if err := col.Lock(ctx); err != nil {
		return nil, err
	}
	if err := df.put(ctx); err != nil {
		return nil, err
	}
	return df, nil
}

// FromStringArray builds a one-column Str dataframe from vals.
func FromStringArray(ctx context.Context, key kv.Key, store Store, chunkSize int, vals []string) (*Dataframe, error) {
	schema, err := NewSchemaFromString("S")
	if err != nil {
		return nil, err
	}
	df, err := NewDataframe(schema, store, key, chunkSize)
	if err != nil {
		return nil, err
	}
	col := df.columns[0]
	for _, v := range vals {
		if err := col.PushString(ctx, v); err != nil {
			return nil, err
		}
	}
	df.nrows = uint64(len(vals))
	if err := col.Lock(ctx); err != nil {
		return nil, err
	}
	if err := df.put(ctx); err != nil {
		return nil, err
	}
	return df, nil
}

// FromIntScalar builds a one-row, one-column Int dataframe holding val.
func FromIntScalar(ctx context.Context, key kv.Key, store Store, chunkSize int, val int32) (*Dataframe, error) {
	return FromIntArray(ctx, key, store, chunkSize, []int32{val})
}

// FromBoolScalar builds a one-row, one-column Bool dataframe holding val.
func FromBoolScalar(ctx context.Context, key kv.Key, store Store, chunkSize int, val bool) (*Dataframe, error) {
	return FromBoolArray(ctx, key, store, chunkSize, []bool{val})
}

// FromFloatScalar builds a one-row, one-column Float dataframe holding val.
func FromFloatScalar(ctx context.Context, key kv.Key, store Store, chunkSize int, val float32) (*Dataframe, error) {
	return FromFloatArray(ctx, key, store, chunkSize, []float32{val})
}

// FromStringScalar builds a one-row, one-column Str dataframe holding val.
func FromStringScalar(ctx context.Context, key kv.Key, store Store, chunkSize int, val string) (*Dataframe, error) {
	return FromStringArray(ctx, key, store, chunkSize, []string{val})
}

// FromVisitor pulls rows from w until w.Done() returns true, building a
// dataframe with the schema described by schemaStr, publishing it under
// key, and returning it (SPEC_FULL.md §4.5, §9's writer-driven note).
func FromVisitor(ctx context.Context, key kv.Key, store Store, chunkSize int, schemaStr string, w Writer) (*Dataframe, error) {
	schema, err := NewSchemaFromString(schemaStr)
	if err != nil {
		return nil, err
	}
	df, err := NewDataframe(schema, store, key, chunkSize)
	if err != nil {
		return nil, err
	}
	row := NewRow(schema)
	for !w.Done() {
		if err := w.Visit(row); err != nil {
			return nil, err
		}
		if err := df.AddRow(ctx, row, false); err != nil {
			return nil, err
		}
	}
	if err := df.lockAllColumns(ctx); err != nil {
		return nil, err
	}
	if err := df.put(ctx); err != nil {
		return nil, err
	}
	return df, nil
}
