package pipeline

import (
	"context"
	"sync"
)

// registry maps in-flight request ids to their cancel functions. The
// cancel endpoint shares it with the request handlers.
type registry struct {
	mu sync.Mutex
	m  map[string]context.CancelFunc
}

func newRegistry() *registry {
	return &registry{m: make(map[string]context.CancelFunc)}
}

func (r *registry) add(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[id] = cancel
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, id)
}

// cancel fires the request's cancel func. It reports false when the id
// is not in flight, either unknown or already finished.
func (r *registry) cancel(id string) bool {
	r.mu.Lock()
	cancel, ok := r.m[id]
	if ok {
		delete(r.m, id)
	}
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}
