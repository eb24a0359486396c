package dataframe

import (
	"context"
	"fmt"

	"github.com/eau2/eau2/codec"
	"github.com/eau2/eau2/kv"
	"github.com/eau2/eau2/metrics"
)

// ColumnState is the Open/Sealed state of a DistributedColumn
// (SPEC_FULL.md §3).
type ColumnState int

const (
	// StateOpen accepts Append calls.
	StateOpen ColumnState = iota
	// StateSealed forbids Append and permits Get.
	StateSealed
)

func (s ColumnState) String() string {
	if s == StateSealed {
		return "Sealed"
	}
	return "Open"
}

// DistributedColumn is an append-only sequence of value cells sharded into
// fixed-size Chunks, each put under a synthesized key and round-robin
// placed across the cluster (SPEC_FULL.md §4.4). It holds exactly one
// chunk in memory at a time: the in-progress "current" chunk while Open, a
// single-slot LRU "cache" while Sealed.
//
// Grounded on DistributedVector in
// Personal Projects/CompSci_Projects/p2p_kvstore/src/dist_vector.h; "type
// byte" in the encoding is carried one level up by Column (SPEC_FULL.md §6
// grammar: `column := ("I"|"B"|"F"|"S") dvec`, `dvec := uint "[" key* "]"`),
// not duplicated here.
type DistributedColumn struct {
	store     Store
	kb        *kv.KeyBuilder
	chunkSize int

	size  uint64
	keys  []kv.Key
	state ColumnState

	current *Chunk
	cache   *Chunk
}

// NewDistributedColumn returns an empty, Open DistributedColumn whose
// chunk keys are synthesized from root via a KeyBuilder.
func NewDistributedColumn(store Store, root kv.Key, chunkSize int) *DistributedColumn {
	return &DistributedColumn{
		store:     store,
		kb:        kv.NewKeyBuilder(root),
		chunkSize: chunkSize,
		state:     StateOpen,
	}
}

// Size returns the number of cells appended so far.
func (dc *DistributedColumn) Size() uint64 { return dc.size }

// State returns Open or Sealed.
func (dc *DistributedColumn) State() ColumnState { return dc.state }

// Keys returns the column's chunk keys. Only meaningful once Sealed at
// least once; callers must not mutate the returned slice.
func (dc *DistributedColumn) Keys() []kv.Key { return dc.keys }

// Append adds cell to the column. Requires State() == StateOpen.
func (dc *DistributedColumn) Append(ctx context.Context, cell kv.Cell) error {
	if dc.state != StateOpen {
		return fmt.Errorf("dataframe: %w: append on a sealed column", ErrAssertion)
	}
	if dc.current == nil {
		dc.current = NewChunk(uint64(len(dc.keys)), dc.chunkSize)
	}
	if dc.current.Full() {
		idx := dc.current.Index
		if err := dc.flushCurrent(ctx); err != nil {
			return err
		}
		dc.current = NewChunk(idx+1, dc.chunkSize)
	}
	if err := dc.current.Append(cell); err != nil {
		return err
	}
	dc.size++
	return nil
}

// flushCurrent serializes dc.current, puts it under a synthesized key, and
// drops it from memory. The key is written at its chunk index rather than
// always appended, so a chunk re-published after Unlock overwrites its old
// key's blob instead of growing the key list (mirrors the original's
// `keys_->set(k, idx)` in store_chunk_).
func (dc *DistributedColumn) flushCurrent(ctx context.Context) error {
	if dc.kb == nil {
		return fmt.Errorf("dataframe: %w: column has no key builder (decoded columns support Get, not Append/Unlock)", ErrAssertion)
	}
	idx := dc.current.Index
	w := codec.NewWriter()
	dc.current.Encode(w)
	key := dc.kb.AppendString("-").AppendInt(int(idx)).Build(int(idx) % dc.store.N())
	if err := dc.store.Put(ctx, key, w.Bytes()); err != nil {
		return fmt.Errorf("dataframe: flushing chunk %d: %w", idx, err)
	}
	metrics.ChunkFlushes.Inc()
	if int(idx) < len(dc.keys) {
		dc.keys[idx] = key
	} else {
		dc.keys = append(dc.keys, key)
	}
	dc.current = nil
	return nil
}

// Get returns a clone of the cell at row i. Requires State() == StateSealed.
func (dc *DistributedColumn) Get(ctx context.Context, i uint64) (kv.Cell, error) {
	if dc.state != StateSealed {
		return kv.Cell{}, fmt.Errorf("dataframe: %w: get on an open column", ErrAssertion)
	}
	if i >= dc.size {
		return kv.Cell{}, fmt.Errorf("dataframe: %w: row %d out of range [0,%d)", ErrAssertion, i, dc.size)
	}
	c := i / uint64(dc.chunkSize)
	j := int(i % uint64(dc.chunkSize))
	if dc.cache == nil || dc.cache.Index != c {
		blob, err := dc.store.Get(ctx, dc.keys[c])
		if err != nil {
			return kv.Cell{}, fmt.Errorf("dataframe: fetching chunk %d: %w", c, err)
		}
		chunk, err := DecodeChunk(codec.NewReader(blob), dc.chunkSize)
		if err != nil {
			return kv.Cell{}, fmt.Errorf("dataframe: decoding chunk %d: %w", c, err)
		}
		dc.cache = chunk
		metrics.ChunkFetches.Inc()
	} else {
		metrics.ChunkCacheHits.Inc()
	}
	return dc.cache.Get(j)
}

// Lock transitions Open -> Sealed, flushing any non-empty current chunk
// and clearing the cache.
func (dc *DistributedColumn) Lock(ctx context.Context) error {
	if dc.state != StateOpen {
		return fmt.Errorf("dataframe: %w: lock on an already-sealed column", ErrAssertion)
	}
	if dc.current != nil && dc.current.Len() > 0 {
		if err := dc.flushCurrent(ctx); err != nil {
			return err
		}
	} else {
		dc.current = nil
	}
	dc.cache = nil
	dc.state = StateSealed
	return nil
}

// Unlock transitions Sealed -> Open, re-fetching the last chunk as the
// live current chunk (preserving its chunk index) so further Append calls
// continue it rather than starting a fresh empty chunk.
func (dc *DistributedColumn) Unlock(ctx context.Context) error {
	if dc.state != StateSealed {
		return fmt.Errorf("dataframe: %w: unlock on an already-open column", ErrAssertion)
	}
	dc.cache = nil
	if len(dc.keys) == 0 {
		dc.current = NewChunk(0, dc.chunkSize)
	} else {
		lastIdx := len(dc.keys) - 1
		blob, err := dc.store.Get(ctx, dc.keys[lastIdx])
		if err != nil {
			return fmt.Errorf("dataframe: unlock: fetching last chunk: %w", err)
		}
		chunk, err := DecodeChunk(codec.NewReader(blob), dc.chunkSize)
		if err != nil {
			return fmt.Errorf("dataframe: unlock: decoding last chunk: %w", err)
		}
		dc.current = chunk
	}
	dc.state = StateOpen
	return nil
}

// HomeOf returns the home node of the chunk containing row i.
func (dc *DistributedColumn) HomeOf(i uint64) (int, error) {
	c := i / uint64(dc.chunkSize)
	if int(c) >= len(dc.keys) {
		return 0, fmt.Errorf("dataframe: %w: row %d has no published chunk yet", ErrAssertion, i)
	}
	return dc.keys[c].Home, nil
}

// Encode writes size · "[" · keys... · "]" (the `dvec` grammar production).
// Requires State() == StateSealed, matching the original's
// `is_locked_` assertion in DistributedVector::serialize.
func (dc *DistributedColumn) Encode(w *codec.Writer) error {
	if dc.state != StateSealed {
		return fmt.Errorf("dataframe: %w: encode requires a sealed column", ErrAssertion)
	}
	w.PutUint(dc.size)
	w.PutOpenBracket()
	for _, k := range dc.keys {
		k.Encode(w)
	}
	w.CloseSeq()
	return nil
}

// DecodeDistributedColumn decodes a DistributedColumn encoded by Encode.
// The result is Sealed and has no KeyBuilder: a decoded column supports Get
// but not Unlock/Append (it was fetched to be read, not extended, matching
// every call site in this package).
func DecodeDistributedColumn(r *codec.Reader, store Store, chunkSize int) (*DistributedColumn, error) {
	size, err := r.Uint()
	if err != nil {
		return nil, fmt.Errorf("dataframe: decoding dvec size: %w", err)
	}
	if err := r.ExpectOpen(); err != nil {
		return nil, fmt.Errorf("dataframe: decoding dvec: %w", err)
	}
	var keys []kv.Key
	for !r.AtClose() {
		k, err := kv.DecodeKey(r)
		if err != nil {
			return nil, fmt.Errorf("dataframe: decoding dvec key %d: %w", len(keys), err)
		}
		keys = append(keys, k)
	}
	if err := r.CloseSeq(); err != nil {
		return nil, err
	}
	return &DistributedColumn{
		store:     store,
		chunkSize: chunkSize,
		size:      size,
		keys:      keys,
		state:     StateSealed,
	}, nil
}
