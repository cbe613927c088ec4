package promotion

import "errors"

var (
	ErrBelowThreshold    = errors.New("back-test improvement below promotion threshold")
	ErrStaleDraft        = errors.New("draft was cut from a version that is no longer active")
	ErrAlreadyActive     = errors.New("version is already active")
	ErrNotRollbackTarget = errors.New("version was never promoted and cannot be a rollback target")
	ErrInvalidResults    = errors.New("invalid back-test results")
)
