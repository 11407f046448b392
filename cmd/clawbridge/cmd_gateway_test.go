package main

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"clawbridge/pkg/bridge"
	"clawbridge/pkg/config"
	"clawbridge/pkg/transport"
)

type stubTransport struct {
	*transport.EventHub
}

func newStubTransport() *stubTransport {
	return &stubTransport{EventHub: transport.NewEventHub()}
}

func (s *stubTransport) Connect(ctx context.Context) error          { return nil }
func (s *stubTransport) Disconnect() error                          { return nil }
func (s *stubTransport) Status() transport.Status                   { return transport.StatusDisconnected }
func (s *stubTransport) SendMessage(recipientID, text string) error { return nil }

func TestWirePersistenceConcurrentEmits(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SetPath(filepath.Join(t.TempDir(), "config.json"))

	tr := newStubTransport()
	gk := bridge.New(tr, func(string, string, string) error { return nil }, bridge.Options{})
	defer gk.Dispose()

	wirePersistence(cfg, tr, gk)

	// Status and identity events arrive on independent transport
	// goroutines; persisting both concurrently must be safe.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			tr.EmitStatus(transport.StatusConnected)
			tr.EmitStatus(transport.StatusReconnecting)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			tr.EmitOwnerIdentity(transport.OwnerIdentity{
				PrimaryID: "15551234567@s.whatsapp.net",
				LinkedID:  "98765@lid",
			})
		}
	}()
	wg.Wait()

	if cfg.Bridge.OwnerJID != "15551234567@s.whatsapp.net" {
		t.Errorf("owner jid not persisted, got %q", cfg.Bridge.OwnerJID)
	}
	if got := gk.OwnerIdentity().LinkedID; got != "98765@lid" {
		t.Errorf("gatekeeper linked id = %q", got)
	}
	if cfg.Bridge.LastConnectedAt == 0 {
		t.Error("last connected timestamp not recorded")
	}
}

func TestWirePersistenceStatusWrittenToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := config.DefaultConfig()
	cfg.SetPath(path)

	tr := newStubTransport()
	gk := bridge.New(tr, func(string, string, string) error { return nil }, bridge.Options{})
	defer gk.Dispose()

	wirePersistence(cfg, tr, gk)
	tr.EmitStatus(transport.StatusConnected)

	loaded, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("load persisted config: %v", err)
	}
	if loaded.Bridge.Status != string(transport.StatusConnected) {
		t.Errorf("persisted status = %q", loaded.Bridge.Status)
	}
	if loaded.Bridge.LastConnectedAt == 0 {
		t.Error("persisted last_connected_at missing")
	}
}
