package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"interrogation/config"
)

// Factory builds a backend from the inference settings.
type Factory func(ctx context.Context, cfg config.Inference) (Backend, error)

var (
	factories = make(map[string]Factory)
	mu        sync.Mutex
)

// Register makes a backend available under one or more service names.
// Backend packages call it from init.
func Register(factory Factory, services ...string) {
	mu.Lock()
	defer mu.Unlock()
	for _, service := range services {
		if _, dup := factories[service]; dup {
			panic("llm: Register called twice for service " + service)
		}
		factories[service] = factory
	}
}

// New builds the backend configured for this process. An unregistered
// service is a configuration error and is not retried.
func New(ctx context.Context, cfg config.Inference) (Backend, error) {
	mu.Lock()
	factory, ok := factories[cfg.Service]
	mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownBackend, cfg.Service, Services())
	}
	return factory(ctx, cfg)
}

// Services lists the registered service names.
func Services() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
