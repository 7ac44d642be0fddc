package slides

import "errors"

// Slide deck editing errors.
var (
	ErrMissingSessionID = errors.New("sessionId is required")
	ErrSlideNotFound    = errors.New("slide not found")
	ErrSentinelTarget   = errors.New("begin/end sentinel slides cannot be targeted")
	ErrInvalidReorder   = errors.New("reorder must be a permutation of the stored deck")
)
