package monitor

import (
	"sync"
	"time"
)

// Component keys
const (
	ComponentStorage = "storage"
	ComponentRemote  = "remote"
	ComponentWatch   = "watch"
)

// ComponentHealth is the health of one component as shown to the UI
type ComponentHealth struct {
	Failures  int       `json:"consecutive_failures"`
	LastError string    `json:"last_error,omitempty"`
	LastOK    time.Time `json:"last_ok,omitempty"`
}

// Health keeps consecutive failure counts per component.
// It is safe for concurrent use.
type Health struct {
	mu    sync.Mutex
	state map[string]ComponentHealth
	now   func() time.Time
}

// NewHealth creates an empty tracker
func NewHealth() *Health {
	return &Health{
		state: make(map[string]ComponentHealth),
		now:   time.Now,
	}
}

// Update records an outcome for a component. A nil err resets the count.
// It returns the updated consecutive failure count.
func (h *Health) Update(key string, err error) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := h.state[key]
	if err == nil {
		c.Failures = 0
		c.LastError = ""
		c.LastOK = h.now()
	} else {
		c.Failures++
		c.LastError = err.Error()
	}
	h.state[key] = c
	return c.Failures
}

// Failures returns the consecutive failure count for a component
func (h *Health) Failures(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state[key].Failures
}

// Reset clears a component
func (h *Health) Reset(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.state, key)
}

// Snapshot returns a copy of all component states
func (h *Health) Snapshot() map[string]ComponentHealth {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]ComponentHealth, len(h.state))
	for k, v := range h.state {
		out[k] = v
	}
	return out
}
