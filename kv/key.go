package kv

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/eau2/eau2/codec"
)

// Key identifies a value in the distributed map: an id local to the home
// node, plus the index of the node responsible for it. Keys are immutable
// and cheap to copy (a Key is a plain value, never a pointer, so cloning is
// just an assignment).
type Key struct {
	ID   string
	Home int
}

// NewKey returns a Key with the given id and home node index.
func NewKey(id string, home int) Key {
	return Key{ID: id, Home: home}
}

// Equals reports structural equality.
func (k Key) Equals(other Key) bool {
	return k.ID == other.ID && k.Home == other.Home
}

func (k Key) String() string {
	return fmt.Sprintf("Key{%q, home=%d}", k.ID, k.Home)
}

// Encode appends the wire encoding of k to w: encoded-string(id) then
// encoded-uint(home).
func (k Key) Encode(w *codec.Writer) {
	w.PutString(k.ID)
	w.PutUint(uint64(k.Home))
}

// DecodeKey reads a Key encoded by Key.Encode.
func DecodeKey(r *codec.Reader) (Key, error) {
	id, err := r.String()
	if err != nil {
		return Key{}, fmt.Errorf("kv: decoding key id: %w", err)
	}
	home, err := r.Uint()
	if err != nil {
		return Key{}, fmt.Errorf("kv: decoding key home: %w", err)
	}
	return Key{ID: id, Home: int(home)}, nil
}

// KeyBuilder synthesizes derived keys from an anchor key's id, the way
// DistributedColumn synthesizes per-chunk keys from a column's root key.
// Appending never mutates the anchor; Build resets the accumulated id back
// to the anchor's id so the builder can be reused for the next key.
type KeyBuilder struct {
	anchorID string
	buf      strings.Builder
}

// NewKeyBuilder returns a builder anchored at anchor.ID.
func NewKeyBuilder(anchor Key) *KeyBuilder {
	kb := &KeyBuilder{anchorID: anchor.ID}
	kb.buf.WriteString(anchor.ID)
	return kb
}

// AppendString appends s to the id under construction.
func (kb *KeyBuilder) AppendString(s string) *KeyBuilder {
	kb.buf.WriteString(s)
	return kb
}

// AppendInt appends the base-10 representation of n to the id under
// construction.
func (kb *KeyBuilder) AppendInt(n int) *KeyBuilder {
	kb.buf.WriteString(strconv.Itoa(n))
	return kb
}

// Build materializes a new Key from the accumulated id and home, then
// resets the builder's id buffer back to the anchor id.
func (kb *KeyBuilder) Build(home int) Key {
	k := Key{ID: kb.buf.String(), Home: home}
	kb.buf.Reset()
	kb.buf.WriteString(kb.anchorID)
	return k
}
