package tracker

import (
	"fmt"
	"sync"
)

// Constructor builds a fresh stateless handler instance.
type Constructor func() Handler

// Registry resolves tracking URLs to carrier handlers. Constructors are
// consulted in registration order and the first recognizer match wins, so
// a handler with a broad recognizer should be registered after more
// specific ones.
type Registry struct {
	mu           sync.Mutex
	constructors []Constructor
}

// NewRegistry returns a registry seeded with the given constructors, in
// resolution order.
func NewRegistry(constructors ...Constructor) *Registry {
	r := &Registry{}
	r.constructors = append(r.constructors, constructors...)
	return r
}

// Register appends a constructor. It is safe for concurrent use, so test
// doubles and extensions can be added at runtime.
func (r *Registry) Register(c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors = append(r.constructors, c)
}

// Resolve returns a handler for the URL, or an error wrapping ErrNoHandler
// when no registered handler recognizes it.
func (r *Registry) Resolve(url string) (Handler, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, construct := range r.constructors {
		h := construct()
		if h.Recognize(url) {
			return h, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoHandler, url)
}
