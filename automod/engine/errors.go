package engine

import (
	"errors"
)

var (
	// A language or risk classifier call failed or timed out. Classification fails open: not flagged, zero risk.
	ErrClassifierUnavailable = errors.New("classifier unavailable")
	// A read or write against the trust store (or another engine store) failed.
	ErrStoreUnavailable = errors.New("store unavailable")
	// A delete, ban, unban, or reply call to the messaging platform failed.
	ErrPlatformActionFailed = errors.New("platform action failed")
	// The event passed to the engine is missing required fields.
	ErrInvalidEvent = errors.New("invalid moderation event")
)
