// Package registry holds the live transport/bridge pair. It is an
// explicit object owned by the composition root, passed by handle to
// whatever needs the pair; there is deliberately no package-level state.
package registry

import (
	"sync"

	"clawbridge/pkg/bridge"
	"clawbridge/pkg/logger"
	"clawbridge/pkg/transport"
)

// Registry guarantees at most one transport and one bridge exist at a
// time, with coordinated disposal when the pair is replaced or torn down.
type Registry struct {
	mu        sync.Mutex
	transport transport.Transport
	bridge    *bridge.Bridge
}

func New() *Registry {
	return &Registry{}
}

// Set installs a new pair, disposing any previous one first so two
// transports can never deliver concurrently.
func (r *Registry) Set(t transport.Transport, b *bridge.Bridge) {
	r.mu.Lock()
	prevTransport := r.transport
	prevBridge := r.bridge
	r.transport = t
	r.bridge = b
	r.mu.Unlock()

	disposePair(prevTransport, prevBridge)
}

func (r *Registry) Transport() transport.Transport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transport
}

func (r *Registry) Bridge() *bridge.Bridge {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bridge
}

// Dispose tears down the current pair.
func (r *Registry) Dispose() {
	r.mu.Lock()
	t := r.transport
	b := r.bridge
	r.transport = nil
	r.bridge = nil
	r.mu.Unlock()

	disposePair(t, b)
}

func disposePair(t transport.Transport, b *bridge.Bridge) {
	if b != nil {
		b.Dispose()
	}
	if t != nil {
		if err := t.Disconnect(); err != nil {
			logger.WarnCF("registry", "Transport disconnect failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}
