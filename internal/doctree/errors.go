// Package doctree implements the block-document tree: a document root
// holding containers, which hold ordered paragraph and atomic blocks.
// Trees are immutable values; every mutation produces a new tree.
package doctree

import "errors"

// Position errors
var (
	// ErrOutOfRange indicates that a position is outside the document.
	ErrOutOfRange = errors.New("position out of document range")

	// ErrIndexOutOfBounds indicates a child index outside the container.
	ErrIndexOutOfBounds = errors.New("child index out of bounds")
)

// Mutation errors
var (
	// ErrInvalidRange indicates a span that crosses a node boundary or
	// lands out of bounds after adjustment.
	ErrInvalidRange = errors.New("range crosses a node boundary")

	// ErrInvalidPosition indicates an insertion target that violates the
	// nesting rules or does not fall on a child boundary.
	ErrInvalidPosition = errors.New("position is not a valid insertion point")
)

// Type errors
var (
	// ErrUnknownType indicates a node type name that is not registered.
	ErrUnknownType = errors.New("unknown node type")
)
