package repository

import (
	"context"
	"sync"
	"time"

	"go-product-describer/internal/logger"
	"go-product-describer/internal/workflow"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type sessionEntry struct {
	controller *workflow.Controller
	lastSeen   time.Time
}

// MemorySessionRepository implements SessionRepository with a mutex-guarded map
type MemorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	ttl      time.Duration
	newFn    ControllerFactory
	now      func() time.Time
}

// NewMemorySessionRepository creates a store whose sessions expire after ttl of inactivity
func NewMemorySessionRepository(ttl time.Duration, newFn ControllerFactory) *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[string]*sessionEntry),
		ttl:      ttl,
		newFn:    newFn,
		now:      time.Now,
	}
}

// Create starts a session under a new uuid
func (r *MemorySessionRepository) Create() (*workflow.Controller, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}
	c := r.newFn(id.String())

	r.mu.Lock()
	r.sessions[id.String()] = &sessionEntry{controller: c, lastSeen: r.now()}
	r.mu.Unlock()
	return c, nil
}

// Get returns the controller for id and refreshes its expiry
func (r *MemorySessionRepository) Get(id string) (*workflow.Controller, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidSessionID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	now := r.now()
	if now.Sub(entry.lastSeen) > r.ttl {
		delete(r.sessions, id)
		return nil, ErrSessionNotFound
	}
	entry.lastSeen = now
	return entry.controller, nil
}

// Delete drops a session; unknown ids are ignored
func (r *MemorySessionRepository) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len returns the number of live sessions
func (r *MemorySessionRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep removes idle sessions and returns how many were dropped.
// Sessions with a generation in flight are kept.
func (r *MemorySessionRepository) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, entry := range r.sessions {
		if now.Sub(entry.lastSeen) > r.ttl && !entry.controller.InFlight() {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps every interval until ctx is done
func (r *MemorySessionRepository) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				logger.WithFields(logrus.Fields{
					"removed":   n,
					"remaining": r.Len(),
				}).Debug("Expired idle sessions")
			}
		}
	}
}
