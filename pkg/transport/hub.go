package transport

import "sync"

// EventHub implements the typed subscription surface shared by all
// transports. Message subscribers get a cancel func so the bridge can
// detach on dispose; the lifecycle subscriptions live as long as the
// transport does.
type EventHub struct {
	mu           sync.Mutex
	nextID       int
	messageSubs  map[int]func(InboundMessage)
	statusSubs   []func(Status)
	pairingSubs  []func(string)
	identitySubs []func(OwnerIdentity)
}

func NewEventHub() *EventHub {
	return &EventHub{
		messageSubs: make(map[int]func(InboundMessage)),
	}
}

func (h *EventHub) SubscribeMessages(fn func(InboundMessage)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.messageSubs[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.messageSubs, id)
	}
}

func (h *EventHub) SubscribeStatus(fn func(Status)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statusSubs = append(h.statusSubs, fn)
}

func (h *EventHub) SubscribePairing(fn func(string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pairingSubs = append(h.pairingSubs, fn)
}

func (h *EventHub) SubscribeOwnerIdentity(fn func(OwnerIdentity)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.identitySubs = append(h.identitySubs, fn)
}

func (h *EventHub) EmitMessage(msg InboundMessage) {
	for _, fn := range h.snapshotMessageSubs() {
		fn(msg)
	}
}

func (h *EventHub) EmitStatus(s Status) {
	h.mu.Lock()
	subs := make([]func(Status), len(h.statusSubs))
	copy(subs, h.statusSubs)
	h.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}

func (h *EventHub) EmitPairing(code string) {
	h.mu.Lock()
	subs := make([]func(string), len(h.pairingSubs))
	copy(subs, h.pairingSubs)
	h.mu.Unlock()
	for _, fn := range subs {
		fn(code)
	}
}

func (h *EventHub) EmitOwnerIdentity(id OwnerIdentity) {
	h.mu.Lock()
	subs := make([]func(OwnerIdentity), len(h.identitySubs))
	copy(subs, h.identitySubs)
	h.mu.Unlock()
	for _, fn := range subs {
		fn(id)
	}
}

func (h *EventHub) snapshotMessageSubs() []func(InboundMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := make([]func(InboundMessage), 0, len(h.messageSubs))
	for _, fn := range h.messageSubs {
		subs = append(subs, fn)
	}
	return subs
}
