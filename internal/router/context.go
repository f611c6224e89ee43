package router

import "sync"

// DefaultMode is the binding table every other mode falls back to.
const DefaultMode = "default"

// Context is the UI state the router consults. It is written only by the UI
// side and read by the router.
type Context struct {
	Mode string `json:"mode"`
}

// ContextStore shares a Context between the UI writer and router readers.
type ContextStore struct {
	mu  sync.RWMutex
	ctx Context
}

// NewContextStore creates a store starting in mode.
func NewContextStore(mode string) *ContextStore {
	if mode == "" {
		mode = DefaultMode
	}
	return &ContextStore{ctx: Context{Mode: mode}}
}

// Get returns a copy of the current context.
func (s *ContextStore) Get() Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}

// SetMode switches the UI mode. An empty mode selects DefaultMode.
func (s *ContextStore) SetMode(mode string) {
	if mode == "" {
		mode = DefaultMode
	}
	s.mu.Lock()
	s.ctx.Mode = mode
	s.mu.Unlock()
}
