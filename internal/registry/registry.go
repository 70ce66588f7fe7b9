package registry

import (
	"fmt"
	"sync"

	"github.com/lakekit-io/lakekit/handlers/aws"
	"github.com/lakekit-io/lakekit/handlers/null"
	"github.com/lakekit-io/lakekit/pkg/handler"
)

// Registry manages the lifecycle of operation handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]handler.Handler
}

func New() *Registry {
	return &Registry{
		handlers: make(map[string]handler.Handler),
	}
}

// Load initializes and registers a handler by address.
// Only built-in handlers are supported; out-of-process handlers would
// plug in here.
func (r *Registry) Load(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		return nil
	}

	var h handler.Handler
	switch name {
	case "null":
		h = null.New()
	case "aws":
		h = aws.New()
	default:
		return fmt.Errorf("unknown handler: %s", name)
	}

	r.handlers[name] = h
	return nil
}

// Register adds a handler instance under an address. Used by tests to
// inject doubles.
func (r *Registry) Register(name string, h handler.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Get returns a registered handler.
func (r *Registry) Get(name string) (handler.Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("handler not loaded: %s", name)
	}
	return h, nil
}
