package events

import "errors"

var (
	ErrInvalidType   = errors.New("invalid event type")
	ErrMissingFields = errors.New("event requires pattern_id and event_type")
)
