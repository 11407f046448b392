package transport

import "testing"

func TestEventHubMessageSubscription(t *testing.T) {
	h := NewEventHub()

	var got []InboundMessage
	cancel := h.SubscribeMessages(func(m InboundMessage) {
		got = append(got, m)
	})

	h.EmitMessage(InboundMessage{ID: "1"})
	if len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("expected one delivered message, got %v", got)
	}

	cancel()
	h.EmitMessage(InboundMessage{ID: "2"})
	if len(got) != 1 {
		t.Fatalf("cancelled subscriber still received messages: %v", got)
	}
}

func TestEventHubMultipleSubscribers(t *testing.T) {
	h := NewEventHub()

	var a, b int
	h.SubscribeMessages(func(InboundMessage) { a++ })
	cancelB := h.SubscribeMessages(func(InboundMessage) { b++ })

	h.EmitMessage(InboundMessage{})
	cancelB()
	h.EmitMessage(InboundMessage{})

	if a != 2 || b != 1 {
		t.Fatalf("expected a=2 b=1, got a=%d b=%d", a, b)
	}
}

func TestEventHubLifecycleEvents(t *testing.T) {
	h := NewEventHub()

	var statuses []Status
	var codes []string
	var ids []OwnerIdentity

	h.SubscribeStatus(func(s Status) { statuses = append(statuses, s) })
	h.SubscribePairing(func(c string) { codes = append(codes, c) })
	h.SubscribeOwnerIdentity(func(id OwnerIdentity) { ids = append(ids, id) })

	h.EmitStatus(StatusConnected)
	h.EmitPairing("qr-code")
	h.EmitOwnerIdentity(OwnerIdentity{PrimaryID: "me@s.whatsapp.net"})

	if len(statuses) != 1 || statuses[0] != StatusConnected {
		t.Errorf("statuses = %v", statuses)
	}
	if len(codes) != 1 || codes[0] != "qr-code" {
		t.Errorf("codes = %v", codes)
	}
	if len(ids) != 1 || ids[0].PrimaryID != "me@s.whatsapp.net" {
		t.Errorf("ids = %v", ids)
	}
}
