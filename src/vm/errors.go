package vm

import "errors"

// ErrAlreadyMapped and ErrOutOfMemory are the page-table engine's two
// failure modes (spec §4.2); callers that need the stable numeric
// taxonomy convert these at the VFS/syscall boundary the way
// defs.Err_t does for every other component.
var (
	ErrAlreadyMapped = errors.New("vm: page already mapped")
	ErrOutOfMemory   = errors.New("vm: out of memory")
)
