package uks

import "errors"

// Errors returned by Store operations.
var (
	// ErrClosed is returned by mutating and querying operations after Close.
	ErrClosed = errors.New("knowledge store is closed")

	// ErrChildTypeMissing is returned when a parent/child operation runs
	// against a store whose "has-child" type node is gone. The bootstrap
	// creates it, so hitting this means the structural invariant was broken.
	ErrChildTypeMissing = errors.New(`relationship type "has-child" not found`)

	// ErrNilRelationship is returned when a nil edge is passed where a live
	// one is required.
	ErrNilRelationship = errors.New("nil relationship")

	// ErrNilProject is returned by Import when no project data is supplied.
	ErrNilProject = errors.New("nil project")

	// ErrBadReference is returned when a thing reference is neither a
	// *Thing nor a label string.
	ErrBadReference = errors.New("reference must be a *Thing or a label string")
)
