package codec

import "errors"

// ErrMalformed reports a protocol violation in the wire format: the byte
// stream does not match the grammar in SPEC_FULL.md §6. Fatal per §7 kind 1.
var ErrMalformed = errors.New("codec: malformed frame")
