package bridge

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"clawbridge/pkg/transport"
)

type fakeSource struct {
	mu      sync.Mutex
	handler func(transport.InboundMessage)
	sent    []string
	sendErr error
}

func (f *fakeSource) SendMessage(recipientID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeSource) SubscribeMessages(fn func(transport.InboundMessage)) func() {
	f.handler = fn
	return func() { f.handler = nil }
}

func (f *fakeSource) deliver(msg transport.InboundMessage) {
	f.handler(msg)
}

func (f *fakeSource) sentMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type dispatchCall struct {
	senderID   string
	senderName string
	text       string
}

type fakeDispatch struct {
	mu    sync.Mutex
	calls []dispatchCall
	err   error
}

func (f *fakeDispatch) fn(senderID, senderName, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, dispatchCall{senderID, senderName, text})
	return f.err
}

func (f *fakeDispatch) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

const ownerJID = "15551234567@s.whatsapp.net"

func ownerMessage(text string) transport.InboundMessage {
	return transport.InboundMessage{
		ID:          "msg-1",
		SenderID:    ownerJID,
		SenderName:  "Me",
		Text:        text,
		TimestampMS: time.Now().UnixMilli(),
		IsFromMe:    true,
	}
}

func newTestBridge(t *testing.T) (*Bridge, *fakeSource, *fakeDispatch) {
	t.Helper()
	src := &fakeSource{}
	disp := &fakeDispatch{}
	b := New(src, disp.fn, Options{
		Owner:   transport.OwnerIdentity{PrimaryID: ownerJID},
		Enabled: true,
	})
	t.Cleanup(b.Dispose)
	return b, src, disp
}

func TestBridgeDispatchesOwnerSelfMessage(t *testing.T) {
	_, src, disp := newTestBridge(t)

	src.deliver(ownerMessage("do X"))

	assert.Equal(t, 1, disp.callCount())
	assert.Equal(t, ownerJID, disp.calls[0].senderID)
	assert.Equal(t, "do X", disp.calls[0].text)
	assert.Empty(t, src.sentMessages())
}

func TestBridgeDropsWhenDisabled(t *testing.T) {
	b, src, disp := newTestBridge(t)
	b.SetEnabled(false)

	src.deliver(ownerMessage("do X"))

	assert.Zero(t, disp.callCount())
	assert.Empty(t, src.sentMessages(), "disabled drop must be silent")
}

func TestBridgeDropsGroupMessages(t *testing.T) {
	_, src, disp := newTestBridge(t)

	msg := ownerMessage("do X")
	msg.IsGroup = true
	src.deliver(msg)

	assert.Zero(t, disp.callCount())
	assert.Empty(t, src.sentMessages())
}

func TestBridgeDropsWithoutOwnerIdentity(t *testing.T) {
	src := &fakeSource{}
	disp := &fakeDispatch{}
	b := New(src, disp.fn, Options{Enabled: true})
	defer b.Dispose()

	src.deliver(ownerMessage("do X"))

	assert.Zero(t, disp.callCount(), "unknown owner must fail closed")
}

func TestBridgeDropsOwnershipMismatch(t *testing.T) {
	tests := []struct {
		name     string
		senderID string
		fromMe   bool
	}{
		{"other sender marked from-me", "19998887777@s.whatsapp.net", true},
		{"owner id but not from-me", ownerJID, false},
		{"neither", "19998887777@s.whatsapp.net", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, src, disp := newTestBridge(t)

			msg := ownerMessage("do X")
			msg.SenderID = tt.senderID
			msg.IsFromMe = tt.fromMe
			src.deliver(msg)

			assert.Zero(t, disp.callCount())
			assert.Empty(t, src.sentMessages(), "ownership drops must be silent")
		})
	}
}

func TestBridgeMatchesLinkedIdentity(t *testing.T) {
	src := &fakeSource{}
	disp := &fakeDispatch{}
	b := New(src, disp.fn, Options{
		Owner: transport.OwnerIdentity{
			PrimaryID: ownerJID,
			LinkedID:  "98765@lid",
		},
		Enabled: true,
	})
	defer b.Dispose()

	msg := ownerMessage("do X")
	msg.SenderID = "98765@lid"
	src.deliver(msg)

	assert.Equal(t, 1, disp.callCount())
}

func TestBridgeSenderRateLimit(t *testing.T) {
	b, src, disp := newTestBridge(t)

	// Release the exclusivity slot after each message, as task completion
	// would, so only the rate gate can reject.
	for i := 0; i < MaxPerSenderPerWindow; i++ {
		src.deliver(ownerMessage("do X"))
		b.ClearActiveTask(ownerJID)
	}
	assert.Equal(t, MaxPerSenderPerWindow, disp.callCount())

	src.deliver(ownerMessage("one more"))

	assert.Equal(t, MaxPerSenderPerWindow, disp.callCount())
	sent := src.sentMessages()
	if assert.Len(t, sent, 1) {
		assert.Equal(t, noticeThrottled, sent[0])
	}
}

func TestBridgeGlobalRateLimitIsSilent(t *testing.T) {
	b, src, disp := newTestBridge(t)

	// Fill the global window directly; the per-sender window stays empty
	// for the probe sender so only the global gate can fire.
	now := time.Now()
	b.limiter.mu.Lock()
	for i := 0; i < MaxGlobalPerWindow; i++ {
		b.limiter.globalTimes = append(b.limiter.globalTimes, now)
	}
	b.limiter.mu.Unlock()

	src.deliver(ownerMessage("do X"))

	assert.Zero(t, disp.callCount())
	assert.Empty(t, src.sentMessages(), "global throttle must not answer")
}

func TestBridgeLengthBound(t *testing.T) {
	t.Run("at limit passes", func(t *testing.T) {
		_, src, disp := newTestBridge(t)
		src.deliver(ownerMessage(strings.Repeat("a", MaxMessageLength)))
		assert.Equal(t, 1, disp.callCount())
	})

	t.Run("over limit rejected", func(t *testing.T) {
		_, src, disp := newTestBridge(t)
		src.deliver(ownerMessage(strings.Repeat("a", MaxMessageLength+1)))
		assert.Zero(t, disp.callCount())
		sent := src.sentMessages()
		if assert.Len(t, sent, 1) {
			assert.Equal(t, noticeTooLong, sent[0])
		}
	})
}

func TestBridgeRejectsUnsanitizableMessage(t *testing.T) {
	_, src, disp := newTestBridge(t)

	src.deliver(ownerMessage("​​  ‍"))

	assert.Zero(t, disp.callCount())
	sent := src.sentMessages()
	if assert.Len(t, sent, 1) {
		assert.Equal(t, noticeUnprocessable, sent[0])
	}
}

func TestBridgeDispatchReceivesSanitizedText(t *testing.T) {
	_, src, disp := newTestBridge(t)

	src.deliver(ownerMessage("do​ X"))

	if assert.Equal(t, 1, disp.callCount()) {
		assert.Equal(t, "do X", disp.calls[0].text)
	}
}

func TestBridgeTaskExclusivity(t *testing.T) {
	b, src, disp := newTestBridge(t)
	b.SetActiveTask(ownerJID, "task-1")

	src.deliver(ownerMessage("another thing"))

	assert.Zero(t, disp.callCount())
	sent := src.sentMessages()
	if assert.Len(t, sent, 1) {
		assert.Equal(t, noticeTaskRunning, sent[0])
	}

	b.ClearActiveTask(ownerJID)
	src.deliver(ownerMessage("another thing"))
	assert.Equal(t, 1, disp.callCount())
}

func TestBridgeDispatchFailureClearsActiveTask(t *testing.T) {
	b, src, disp := newTestBridge(t)
	disp.err = errors.New("engine exploded")

	src.deliver(ownerMessage("do X"))

	assert.Equal(t, 1, disp.callCount())
	assert.False(t, b.HasActiveTask(ownerJID), "failed dispatch must release the slot")
	sent := src.sentMessages()
	if assert.Len(t, sent, 1) {
		assert.Equal(t, noticeDispatchFail, sent[0])
		assert.NotContains(t, sent[0], "exploded", "raw error text must not reach the channel")
	}
}

func TestBridgeSessionRoundtrip(t *testing.T) {
	b, _, _ := newTestBridge(t)

	assert.Empty(t, b.SessionForSender(ownerJID))
	b.SetSessionForSender(ownerJID, "sess-42")
	assert.Equal(t, "sess-42", b.SessionForSender(ownerJID))
}

func TestBridgeDisposeUnsubscribes(t *testing.T) {
	b, src, _ := newTestBridge(t)
	assert.NotNil(t, src.handler)
	b.Dispose()
	assert.Nil(t, src.handler)
}
