package blockcache

import "errors"

// Sentinel errors surfaced to callers. None of these are retried inside
// the cache; all of them indicate a bug in the caller's topological
// ordering or validation pipeline, not a transient condition.
var (
	// ErrPreviousBlockNotFound is returned by AddValidated when the
	// block's parent is not cached. Callers must add blocks in
	// topological order.
	ErrPreviousBlockNotFound = errors.New("blockcache: previous block not found")

	// ErrPreviousBlockNotValidated is returned by AddValidated when the
	// block's parent is cached but still NotValidated.
	ErrPreviousBlockNotValidated = errors.New("blockcache: previous block not validated")

	// ErrInvalidTip is returned by MarkTip when an ancestor on the path
	// to the requested tip is still NotValidated.
	ErrInvalidTip = errors.New("blockcache: invalid tip, unvalidated ancestor")

	// ErrNotFound is returned by MarkTip (unknown hash) and by
	// GetBySolutionHash when no candidate remains, and by Get /
	// GetBlockAndStatus for unknown hashes.
	ErrNotFound = errors.New("blockcache: not found")
)
