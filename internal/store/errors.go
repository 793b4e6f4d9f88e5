package store

import (
	"github.com/listenupapp/takeout-fixer/internal/errors"
)

// Sentinel errors. They carry domain codes so the API maps them to HTTP
// statuses without knowing about the store.
var (
	ErrRunNotFound   = errors.NotFound("run not found")
	ErrInvalidCursor = errors.Validation("invalid cursor")
	ErrInvalidRun    = errors.Validation("run must have an id and a start time")
)
