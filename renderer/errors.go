package renderer

import "errors"

var (
	ErrIncompleteFramebuffer = errors.New("incomplete framebuffer")
	ErrMissingResource       = errors.New("missing resource")
	ErrInvalidSize           = errors.New("invalid render target size")
	ErrInvalidLight          = errors.New("invalid light")
	ErrNotReady              = errors.New("renderer not ready")
)
