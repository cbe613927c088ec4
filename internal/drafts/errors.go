package drafts

import "errors"

var (
	ErrInvalidChanges = errors.New("invalid draft changes")
	ErrInvalidSeed    = errors.New("invalid seed command")
)
