package wz

import (
	"errors"
	"fmt"
)

var (
	// Decoding errors
	ErrOutOfRange    = errors.New("read out of range")
	ErrMalformedData = errors.New("malformed data")
	ErrDepthExceeded = fmt.Errorf("%w: nesting too deep", ErrMalformedData)
	ErrBadMagic      = errors.New("not a PKG1 archive")
	ErrUnknownFormat = errors.New("unknown canvas format")

	// Version errors
	ErrVersionMismatch = errors.New("version does not match archive")

	// Navigation errors
	ErrInvalidPath   = errors.New("invalid path")
	ErrNodeNotFound  = errors.New("node not found")
	ErrKindMismatch  = errors.New("node kind mismatch")
	ErrLinkLoop      = errors.New("link chain too long or cyclic")
	ErrNoImageParser = errors.New("no image parser attached to tree")

	ErrClosed = errors.New("archive is closed")
)
