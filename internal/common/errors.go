package common

import "errors"

// Application error taxonomy. Services wrap these sentinels so handlers can
// map failures to HTTP statuses with errors.Is instead of string matching.
var (
	// ErrValidation covers bad user input (registration form, empty message).
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized covers bad credentials and access to another user's chat.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound covers unknown users, chats and jobs.
	ErrNotFound = errors.New("not found")

	// ErrStoreWrite covers persistence failures.
	ErrStoreWrite = errors.New("store write failed")

	// ErrUpstream covers assistant/inference failures, including timeouts.
	// Upstream failures are retryable: nothing is persisted for the turn.
	ErrUpstream = errors.New("upstream failure")
)
