package dataframe

import (
	"fmt"

	"github.com/eau2/eau2/codec"
	"github.com/eau2/eau2/kv"
)

// Chunk is a fixed-capacity, ordered sequence of value cells: the unit a
// DistributedColumn serializes and puts under a synthesized key
// (SPEC_FULL.md §3, §4.3). A Chunk never enforces its own capacity on
// append beyond a defensive bounds check; the owning DistributedColumn
// decides when a chunk is full and must be flushed.
type Chunk struct {
	Index    uint64
	Cells    []kv.Cell
	Capacity int
}

// NewChunk returns an empty chunk at the given index with the given
// capacity.
func NewChunk(index uint64, capacity int) *Chunk {
	return &Chunk{Index: index, Cells: make([]kv.Cell, 0, capacity), Capacity: capacity}
}

// Len returns the number of cells currently in the chunk.
func (c *Chunk) Len() int { return len(c.Cells) }

// Full reports whether the chunk has reached its capacity.
func (c *Chunk) Full() bool { return len(c.Cells) >= c.Capacity }

// Append adds cell to the chunk. It is an assertion failure to append
// past capacity; callers (DistributedColumn.Append) are expected to flush
// before this can happen.
func (c *Chunk) Append(cell kv.Cell) error {
	if c.Full() {
		return fmt.Errorf("dataframe: chunk %d: %w: append past capacity %d", c.Index, ErrAssertion, c.Capacity)
	}
	c.Cells = append(c.Cells, cell)
	return nil
}

// Get returns a clone of the cell at i. It is bounds-checked.
func (c *Chunk) Get(i int) (kv.Cell, error) {
	if i < 0 || i >= len(c.Cells) {
		return kv.Cell{}, fmt.Errorf("dataframe: chunk %d: %w: index %d out of range [0,%d)", c.Index, ErrAssertion, i, len(c.Cells))
	}
	return c.Cells[i].Clone(), nil
}

// Equals reports structural equality: same index and same cells.
func (c *Chunk) Equals(o *Chunk) bool {
	if o == nil || c.Index != o.Index || len(c.Cells) != len(o.Cells) {
		return false
	}
	for i := range c.Cells {
		if !c.Cells[i].Equals(o.Cells[i]) {
			return false
		}
	}
	return true
}

// Encode writes the chunk as index · count · "[" cells... "]"
// (SPEC_FULL.md §4.1).
func (c *Chunk) Encode(w *codec.Writer) {
	w.PutUint(c.Index)
	w.OpenSeq(uint64(len(c.Cells)))
	for _, cell := range c.Cells {
		cell.Encode(w)
	}
	w.CloseSeq()
}

// DecodeChunk decodes a Chunk with the given capacity.
func DecodeChunk(r *codec.Reader, capacity int) (*Chunk, error) {
	index, err := r.Uint()
	if err != nil {
		return nil, fmt.Errorf("dataframe: decoding chunk index: %w", err)
	}
	count, err := r.OpenSeq()
	if err != nil {
		return nil, fmt.Errorf("dataframe: decoding chunk count: %w", err)
	}
	c := NewChunk(index, capacity)
	for i := uint64(0); i < count; i++ {
		cell, err := kv.DecodeCell(r)
		if err != nil {
			return nil, fmt.Errorf("dataframe: decoding chunk %d cell %d: %w", index, i, err)
		}
		c.Cells = append(c.Cells, cell)
	}
	if err := r.CloseSeq(); err != nil {
		return nil, err
	}
	return c, nil
}
