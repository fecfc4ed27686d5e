package relay

import (
	"context"
	"errors"
	"sync"
)

// ErrRegistryClosed is returned by Register once CloseAll has run.
var ErrRegistryClosed = errors.New("relay registry is draining")

// Registry tracks live relays so the server can report and drain them.
type Registry struct {
	mu      sync.Mutex
	relays  map[string]*registeredRelay
	wg      sync.WaitGroup
	closing bool
}

type registeredRelay struct {
	relay *Relay
	once  sync.Once
}

func NewRegistry() *Registry {
	return &Registry{relays: make(map[string]*registeredRelay)}
}

// Register adds r until the returned func is called. Calling it more than
// once is safe. After CloseAll it refuses with ErrRegistryClosed.
func (g *Registry) Register(r *Relay) (unregister func(), err error) {
	if g == nil {
		return func() {}, nil
	}

	entry := &registeredRelay{relay: r}
	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	old := g.relays[r.ID()]
	g.relays[r.ID()] = entry
	g.wg.Add(1)
	g.mu.Unlock()

	if old != nil {
		g.unregister(r.ID(), old)
	}
	return func() { g.unregister(r.ID(), entry) }, nil
}

func (g *Registry) unregister(id string, entry *registeredRelay) {
	entry.once.Do(func() {
		g.mu.Lock()
		if g.relays[id] == entry {
			delete(g.relays, id)
		}
		g.mu.Unlock()
		g.wg.Done()
	})
}

func (g *Registry) Count() int {
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.relays)
}

// CloseAll stops accepting registrations, tears down every registered relay
// and returns how many there were.
func (g *Registry) CloseAll() int {
	if g == nil {
		return 0
	}
	g.mu.Lock()
	g.closing = true
	relays := make([]*Relay, 0, len(g.relays))
	for _, entry := range g.relays {
		relays = append(relays, entry.relay)
	}
	g.mu.Unlock()

	for _, r := range relays {
		r.Close()
	}
	return len(relays)
}

// Wait blocks until every registered relay has unregistered or ctx is done.
// It reports whether the registry drained.
func (g *Registry) Wait(ctx context.Context) bool {
	if g == nil {
		return true
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		g.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
