package replay

import "errors"

// ErrInvalidOrdering is returned when events are not properly ordered.
var ErrInvalidOrdering = errors.New("events are not in deterministic order")

// ErrUnknownEvent is returned for a stored record whose name has no payload type.
var ErrUnknownEvent = errors.New("unknown event name")
