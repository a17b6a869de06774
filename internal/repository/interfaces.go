package repository

import (
	"go-product-describer/internal/workflow"
)

// SessionRepository keeps one workflow controller per browser session.
// Sessions live in memory only and are dropped after an idle TTL.
type SessionRepository interface {
	// Create starts a new session with a fresh controller
	Create() (*workflow.Controller, error)

	// Get returns the controller for id and refreshes its idle timer
	Get(id string) (*workflow.Controller, error)

	// Delete drops a session
	Delete(id string)

	// Len returns the number of live sessions
	Len() int
}

// ControllerFactory builds the controller for a new session
type ControllerFactory func(sessionID string) *workflow.Controller
