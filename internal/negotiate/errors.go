package negotiate

import "errors"

// ErrInvalidTransition marks a caller contract violation: committing a
// stale result, adjusting outside the attempt window, previewing past
// the attempt cap without a redial. Reported, never silently corrected.
var ErrInvalidTransition = errors.New("invalid negotiation transition")

// ErrInvalidDraft marks a draft that fails validation.
var ErrInvalidDraft = errors.New("invalid draft")
