// Package kv implements the distributed key-value plane: Key/KeyBuilder,
// the value Cell, the seven-kind Message sum type, and the per-node Store
// with its blocking put/get/wait_and_get.
package kv

import "errors"

// Error kinds mirror the taxonomy in SPEC_FULL.md §7. Library code returns
// these (wrapped with context via fmt.Errorf("...: %w", err)) rather than
// panicking; only cmd/ entry points translate them into a fatal exit.
var (
	// ErrAssertion covers bounds violations and duplicate type-set on a
	// value cell (kind 2).
	ErrAssertion = errors.New("kv: assertion failed")
	// ErrTypeMismatch covers e.g. reading an int accessor on a non-int
	// cell (kind 3).
	ErrTypeMismatch = errors.New("kv: type mismatch")
	// ErrKeyAbsent is returned by Get (never WaitAndGet) when the local
	// key has no value yet (kind 4).
	ErrKeyAbsent = errors.New("kv: key absent")
	// ErrMalformedMessage covers an unknown MsgKind or otherwise
	// malformed message body (kind 1).
	ErrMalformedMessage = errors.New("kv: malformed message")
	// ErrWrongHome is returned when a Put arrives for a key whose home
	// is not this node (kind 1).
	ErrWrongHome = errors.New("kv: put delivered to wrong home")
	// ErrShutdown is returned to any blocked caller when the node shuts
	// down while it was waiting (kind 5).
	ErrShutdown = errors.New("kv: node is shutting down")
	// ErrTransportClosed covers a peer connection closing or faulting
	// (kind 5).
	ErrTransportClosed = errors.New("kv: transport closed")
)
