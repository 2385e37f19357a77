package buffer

import "errors"

var (
	// ErrExhausted is returned by send paths that could not allocate an
	// outbound buffer because every buffer in the pool is in use.
	ErrExhausted = errors.New("buffer: pool exhausted")

	errForeignBuffer = errors.New("buffer: free of buffer not owned by this pool")
	errDoubleFree    = errors.New("buffer: double free")
)
