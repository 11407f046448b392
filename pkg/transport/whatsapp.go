// ClawBridge - self-chat to agent task bridge
// License: MIT
//
// Copyright (c) 2026 ClawBridge contributors

package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"clawbridge/pkg/config"
	"clawbridge/pkg/logger"
)

const (
	// DefaultBackoffBase is the delay before the first reconnect attempt;
	// attempt n waits base * 2^(n-1).
	DefaultBackoffBase = 2 * time.Second
	// DefaultMaxAttempts is the reconnect budget. Exceeding it degrades to
	// disconnected and requires a manual reconnect.
	DefaultMaxAttempts = 5
)

const groupJIDSuffix = "@g.us"

// Close causes reported by the bridge daemon. Terminal causes purge the
// persisted session and stop retrying; restart_required redials
// immediately without consuming a backoff attempt.
const (
	closeLoggedOut       = "logged_out"
	closeForbidden       = "forbidden"
	closeBadSession      = "bad_session"
	closeRestartRequired = "restart_required"
)

// wireEnvelope is one frame of the bridge daemon's JSON protocol.
type wireEnvelope struct {
	Type    string       `json:"type"`
	Status  string       `json:"status,omitempty"`
	Code    string       `json:"code,omitempty"`
	JID     string       `json:"jid,omitempty"`
	LID     string       `json:"lid,omitempty"`
	Reason  string       `json:"reason,omitempty"`
	Message *wireMessage `json:"message,omitempty"`
}

// wireMessage mirrors the bridge daemon's message payload. Text may live
// in the plain body, the extended/quoted body, or a media caption.
type wireMessage struct {
	ID           string `json:"id"`
	Chat         string `json:"chat"`
	Sender       string `json:"sender"`
	SenderName   string `json:"sender_name,omitempty"`
	FromMe       bool   `json:"from_me"`
	Timestamp    int64  `json:"timestamp"`
	Text         string `json:"text,omitempty"`
	ExtendedText string `json:"extended_text,omitempty"`
	Caption      string `json:"caption,omitempty"`
}

// WhatsAppTransport maintains one live session to the WhatsApp bridge
// daemon over a websocket. The daemon owns the wire protocol crypto; this
// side owns the lifecycle state machine, reconnect backoff, and inbound
// normalization.
type WhatsAppTransport struct {
	*EventHub

	cfg    config.WhatsAppConfig
	purger CredentialPurger
	dialer *websocket.Dialer

	mu             sync.Mutex
	conn           *websocket.Conn
	status         Status
	attempts       int
	gen            int
	closed         bool
	reconnectTimer *time.Timer
	ctx            context.Context
	cancel         context.CancelFunc

	backoffBase time.Duration
	maxAttempts int
}

func NewWhatsAppTransport(cfg config.WhatsAppConfig, purger CredentialPurger) *WhatsAppTransport {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	return &WhatsAppTransport{
		EventHub:    NewEventHub(),
		cfg:         cfg,
		purger:      purger,
		dialer:      &dialer,
		status:      StatusDisconnected,
		backoffBase: DefaultBackoffBase,
		maxAttempts: DefaultMaxAttempts,
	}
}

func (t *WhatsAppTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.ctx != nil && !t.closed {
		t.mu.Unlock()
		return fmt.Errorf("whatsapp transport already connected")
	}
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.closed = false
	t.attempts = 0
	t.mu.Unlock()

	t.setStatus(StatusConnecting)
	logger.InfoCF("whatsapp", "Connecting to bridge", map[string]interface{}{
		"url": t.cfg.BridgeURL,
	})

	if err := t.dial(); err != nil {
		t.scheduleRetry(err.Error())
	}
	return nil
}

func (t *WhatsAppTransport) Disconnect() error {
	t.mu.Lock()
	t.closed = true
	t.gen++
	if t.reconnectTimer != nil {
		t.reconnectTimer.Stop()
		t.reconnectTimer = nil
	}
	if t.cancel != nil {
		t.cancel()
	}
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.DebugCF("whatsapp", "Error closing connection", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	t.setStatus(StatusDisconnected)
	return nil
}

func (t *WhatsAppTransport) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// SendMessage is best-effort: a failed send must never abort the caller's
// task flow.
func (t *WhatsAppTransport) SendMessage(recipientID, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return fmt.Errorf("whatsapp bridge not connected")
	}

	frame := struct {
		Type string `json:"type"`
		To   string `json:"to"`
		Text string `json:"text"`
	}{Type: "send", To: recipientID, Text: text}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}

	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// dial establishes a fresh socket. Any previous socket is closed and its
// read loop invalidated by the generation bump before the new one
// attaches, so a stale socket can never double-deliver after reconnect.
func (t *WhatsAppTransport) dial() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport closed")
	}
	ctx := t.ctx
	t.mu.Unlock()

	conn, _, err := t.dialer.DialContext(ctx, t.cfg.BridgeURL, nil)
	if err != nil {
		return fmt.Errorf("dial bridge: %w", err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return fmt.Errorf("transport closed")
	}
	if t.conn != nil {
		t.conn.Close()
	}
	t.gen++
	gen := t.gen
	t.conn = conn
	t.mu.Unlock()

	go t.readLoop(conn, gen)
	return nil
}

func (t *WhatsAppTransport) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.handleClose(gen, "", err)
			return
		}

		var env wireEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			logger.DebugCF("whatsapp", "Dropping malformed frame", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}

		if t.staleGen(gen) {
			return
		}

		switch env.Type {
		case "status":
			if env.Status == "connected" {
				t.mu.Lock()
				t.attempts = 0
				t.mu.Unlock()
				t.setStatus(StatusConnected)
			}
		case "qr":
			t.setStatus(StatusQRReady)
			t.EmitPairing(env.Code)
		case "self":
			logger.InfoCF("whatsapp", "Owner identity resolved", map[string]interface{}{
				"jid": env.JID,
				"lid": env.LID,
			})
			t.EmitOwnerIdentity(OwnerIdentity{PrimaryID: env.JID, LinkedID: env.LID})
		case "message":
			if env.Message == nil {
				continue
			}
			if msg, ok := normalizeMessage(*env.Message); ok {
				t.EmitMessage(msg)
			}
		case "close":
			t.handleClose(gen, env.Reason, nil)
			return
		}
	}
}

func (t *WhatsAppTransport) staleGen(gen int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return gen != t.gen || t.closed
}

// handleClose runs the reconnect policy for one socket teardown. The
// generation check makes it idempotent: a close envelope followed by the
// socket read error handles the teardown exactly once.
func (t *WhatsAppTransport) handleClose(gen int, cause string, readErr error) {
	t.mu.Lock()
	if t.closed || gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.gen++
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.mu.Unlock()

	logger.WarnCF("whatsapp", "Connection closed", map[string]interface{}{
		"cause": cause,
		"error": errString(readErr),
	})

	switch cause {
	case closeLoggedOut, closeForbidden, closeBadSession:
		t.mu.Lock()
		t.closed = true
		if t.cancel != nil {
			t.cancel()
		}
		t.mu.Unlock()
		t.purgeCredentials(cause)
		if cause == closeLoggedOut {
			t.setStatus(StatusLoggedOut)
		} else {
			t.setStatus(StatusDisconnected)
		}
	case closeRestartRequired:
		// Immediate redial, does not consume a backoff attempt.
		t.setStatus(StatusReconnecting)
		go func() {
			if err := t.dial(); err != nil {
				t.scheduleRetry(err.Error())
			}
		}()
	default:
		t.scheduleRetry(cause)
	}
}

// scheduleRetry books the next backoff attempt, degrading to disconnected
// once the attempt budget is exhausted.
func (t *WhatsAppTransport) scheduleRetry(reason string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.attempts++
	attempt := t.attempts
	if attempt > t.maxAttempts {
		// Give up and leave the transport in a state a manual Connect can
		// restart from.
		t.closed = true
		t.gen++
		if t.cancel != nil {
			t.cancel()
		}
		t.mu.Unlock()
		logger.ErrorCF("whatsapp", "Reconnect attempts exhausted", map[string]interface{}{
			"attempts": attempt - 1,
			"reason":   reason,
		})
		t.setStatus(StatusDisconnected)
		return
	}

	delay := ReconnectDelay(t.backoffBase, attempt)
	t.reconnectTimer = time.AfterFunc(delay, func() {
		if err := t.dial(); err != nil {
			t.scheduleRetry(err.Error())
		}
	})
	t.mu.Unlock()

	logger.InfoCF("whatsapp", "Reconnect scheduled", map[string]interface{}{
		"attempt":  attempt,
		"delay_ms": delay.Milliseconds(),
		"reason":   reason,
	})
	t.setStatus(StatusReconnecting)
}

func (t *WhatsAppTransport) purgeCredentials(cause string) {
	if t.purger == nil {
		return
	}
	if err := t.purger.PurgeSessionCredentials(); err != nil {
		logger.ErrorCF("whatsapp", "Failed to purge session credentials", map[string]interface{}{
			"cause": cause,
			"error": err.Error(),
		})
		return
	}
	logger.InfoCF("whatsapp", "Session credentials purged", map[string]interface{}{
		"cause": cause,
	})
}

func (t *WhatsAppTransport) setStatus(s Status) {
	t.mu.Lock()
	if t.status == s {
		t.mu.Unlock()
		return
	}
	t.status = s
	t.mu.Unlock()
	t.EmitStatus(s)
}

// ReconnectDelay returns base * 2^(attempt-1).
func ReconnectDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

// normalizeMessage extracts task-bearing text from whichever sub-field
// the network message used. Messages with no text are not task requests
// and are dropped here rather than burdening the gatekeeper.
func normalizeMessage(m wireMessage) (InboundMessage, bool) {
	text := m.Text
	if text == "" {
		text = m.ExtendedText
	}
	if text == "" {
		text = m.Caption
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return InboundMessage{}, false
	}

	return InboundMessage{
		ID:          m.ID,
		SenderID:    m.Sender,
		SenderName:  m.SenderName,
		Text:        text,
		TimestampMS: m.Timestamp,
		IsGroup:     strings.HasSuffix(m.Chat, groupJIDSuffix),
		IsFromMe:    m.FromMe,
	}, true
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
