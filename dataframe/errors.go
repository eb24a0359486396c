package dataframe

import "github.com/eau2/eau2/kv"

// Errors raised by this package reuse the kv package's error kinds
// (SPEC_FULL.md §7 catalogs one taxonomy shared by codec/kv/dataframe, not
// three separate ones) so a caller can errors.Is against a single set of
// sentinels regardless of which package raised the bounds violation or
// type mismatch.
var (
	// ErrAssertion covers bounds violations on chunks/columns/rows,
	// appending past CHUNK_SIZE, and operating on a column in the wrong
	// state (e.g. Append on a Sealed column).
	ErrAssertion = kv.ErrAssertion
	// ErrTypeMismatch covers Row.GetInt on a non-int column and similar.
	ErrTypeMismatch = kv.ErrTypeMismatch
)
