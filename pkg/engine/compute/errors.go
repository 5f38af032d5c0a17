package compute

import "errors"

var (
	// ErrTypeMismatch indicates a column had a type an operation does not
	// support.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrIndexOutOfRange indicates a group id referenced a group that was
	// never allocated.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrShapeMismatch indicates columns of differing lengths were combined
	// into one batch.
	ErrShapeMismatch = errors.New("shape mismatch")
)
