package registry

import (
	"context"
	"testing"

	"clawbridge/pkg/bridge"
	"clawbridge/pkg/transport"
)

type fakeTransport struct {
	*transport.EventHub
	disconnects int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{EventHub: transport.NewEventHub()}
}

func (f *fakeTransport) Connect(ctx context.Context) error { return nil }

func (f *fakeTransport) Disconnect() error {
	f.disconnects++
	return nil
}

func (f *fakeTransport) Status() transport.Status { return transport.StatusDisconnected }

func (f *fakeTransport) SendMessage(recipientID, text string) error { return nil }

func noopDispatch(senderID, senderName, text string) error { return nil }

func TestRegistrySetAndGet(t *testing.T) {
	r := New()
	if r.Transport() != nil || r.Bridge() != nil {
		t.Fatal("fresh registry should be empty")
	}

	tr := newFakeTransport()
	b := bridge.New(tr, noopDispatch, bridge.Options{})
	r.Set(tr, b)

	if r.Transport() != transport.Transport(tr) {
		t.Error("transport not stored")
	}
	if r.Bridge() != b {
		t.Error("bridge not stored")
	}
}

func TestRegistrySetDisposesPrevious(t *testing.T) {
	r := New()

	tr1 := newFakeTransport()
	b1 := bridge.New(tr1, noopDispatch, bridge.Options{})
	r.Set(tr1, b1)

	tr2 := newFakeTransport()
	b2 := bridge.New(tr2, noopDispatch, bridge.Options{})
	r.Set(tr2, b2)

	if tr1.disconnects != 1 {
		t.Errorf("previous transport disconnects = %d, want 1", tr1.disconnects)
	}
	if tr2.disconnects != 0 {
		t.Errorf("current transport must stay connected, got %d disconnects", tr2.disconnects)
	}
}

func TestRegistryDispose(t *testing.T) {
	r := New()
	tr := newFakeTransport()
	b := bridge.New(tr, noopDispatch, bridge.Options{})
	r.Set(tr, b)

	r.Dispose()

	if tr.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", tr.disconnects)
	}
	if r.Transport() != nil || r.Bridge() != nil {
		t.Error("registry should be empty after Dispose")
	}

	// Idempotent.
	r.Dispose()
	if tr.disconnects != 1 {
		t.Errorf("second Dispose must not disconnect again, got %d", tr.disconnects)
	}
}
