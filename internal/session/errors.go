package session

import "errors"

var (
	// ErrNotFound indicates the session id has no live entry.
	ErrNotFound = errors.New("session not found")

	// ErrAlreadyExists indicates a create over a live session id.
	ErrAlreadyExists = errors.New("session already exists")
)
