package repository

import "errors"

var (
	// ErrSessionNotFound indicates the session id is unknown or expired
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidSessionID indicates the session id is not a uuid
	ErrInvalidSessionID = errors.New("invalid session id")
)
