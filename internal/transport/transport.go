// Package transport defines the delivery capabilities the orchestrator
// depends on and a registry through which concrete transports are wired.
package transport

import (
	"fmt"
	"sync"

	"chessbot/internal/core"
)

// OutboundMove is a move on its way to the remote side. Aux carries opaque
// transport fields that are passed through unchanged.
type OutboundMove struct {
	Move string
	Aux  map[string]any
}

// Primary sends structured move messages. Send fails only on a send-time
// fault; delivery confirmation is inferred elsewhere.
type Primary interface {
	Send(m OutboundMove) error
}

// Secondary delivers a move by simulating interactions with the host surface.
// done reports whether the interactions were attempted, not confirmed. live
// is consulted on the control loop before each interaction; once it returns
// false the delivery stops and done is not called.
type Secondary interface {
	Deliver(move string, live func() bool, done func(error))
}

// InboundHandler receives decoded envelopes from any registered transport
type InboundHandler func(env core.InboundEnvelope)

type namedPrimary struct {
	name string
	p    Primary
}

// Registry is the explicit wiring point between transports and the
// orchestrator. It implements Primary and Secondary by delegating to the
// registered instances.
type Registry struct {
	mu        sync.RWMutex
	primaries []namedPrimary
	secondary Secondary
	handlers  []InboundHandler
}

func NewRegistry() *Registry {
	return &Registry{}
}

// RegisterPrimary adds a primary transport. Sends are attempted in
// registration order.
func (r *Registry) RegisterPrimary(name string, p Primary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.primaries = append(r.primaries, namedPrimary{name: name, p: p})
}

func (r *Registry) RegisterSecondary(s Secondary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.secondary = s
}

// Subscribe registers a handler for inbound envelopes
func (r *Registry) Subscribe(h InboundHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, h)
}

// Dispatch fans an inbound envelope out to all subscribers
func (r *Registry) Dispatch(env core.InboundEnvelope) {
	r.mu.RLock()
	handlers := append([]InboundHandler(nil), r.handlers...)
	r.mu.RUnlock()

	for _, h := range handlers {
		h(env)
	}
}

// Primaries returns the registered primary transport names
func (r *Registry) Primaries() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.primaries))
	for _, np := range r.primaries {
		names = append(names, np.name)
	}
	return names
}

func (r *Registry) Send(m OutboundMove) error {
	r.mu.RLock()
	primaries := append([]namedPrimary(nil), r.primaries...)
	r.mu.RUnlock()

	if len(primaries) == 0 {
		return fmt.Errorf("%w: no primary transport registered", core.ErrNotConnected)
	}

	var lastErr error
	for _, np := range primaries {
		err := np.p.Send(m)
		if err == nil {
			return nil
		}
		lastErr = fmt.Errorf("%s: %w", np.name, err)
	}
	return lastErr
}

func (r *Registry) Deliver(move string, live func() bool, done func(error)) {
	r.mu.RLock()
	s := r.secondary
	r.mu.RUnlock()

	if s == nil {
		done(fmt.Errorf("%w: no secondary transport registered", core.ErrEndpointUnresolved))
		return
	}
	s.Deliver(move, live, done)
}
