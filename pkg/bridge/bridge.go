// ClawBridge - self-chat to agent task bridge
// License: MIT
//
// Copyright (c) 2026 ClawBridge contributors

package bridge

import (
	"sync"

	"clawbridge/pkg/logger"
	"clawbridge/pkg/transport"
)

// activeTaskPlaceholder marks a sender slot between passing the gates and
// the dispatcher assigning a real task id. Setting it before dispatch
// runs is the correctness device that closes the check-then-act race on
// task exclusivity; it must stay inside the same critical section as the
// exclusivity check.
const activeTaskPlaceholder = "pending"

// User-facing notices. Deliberately generic: the channel is an observable
// surface, so no rejection ever reveals why it happened beyond the
// category, and no internal error text ever leaves the process.
const (
	noticeThrottled     = "⏳ Slow down a little. Wait a minute before sending more requests."
	noticeTooLong       = "✋ That message is too long for a task request. Keep it under 4096 characters."
	noticeUnprocessable = "⚠️ Could not process that message."
	noticeTaskRunning   = "⚙️ A task is still running for you. Wait for it to finish before starting another."
	noticeDispatchFail  = "⚠️ Could not start the task. Please try again."
)

// DispatchFunc starts a task for an accepted message. It runs on the
// message-delivery goroutine; implementations must hand long work to the
// engine and return once the task has started.
type DispatchFunc func(senderID, senderName, text string) error

// Options carries the restored persistent state the bridge starts with.
type Options struct {
	Owner   transport.OwnerIdentity
	Enabled bool
}

// Bridge is the single authority deciding whether an inbound message may
// trigger a task. Every check fails closed: on ambiguity the message is
// dropped.
type Bridge struct {
	source      transport.MessageSource
	dispatch    DispatchFunc
	limiter     *RateLimiter
	sessions    *sessionStore
	unsubscribe func()

	mu      sync.Mutex
	owner   transport.OwnerIdentity
	enabled bool
	active  map[string]string
}

func New(source transport.MessageSource, dispatch DispatchFunc, opts Options) *Bridge {
	b := &Bridge{
		source:   source,
		dispatch: dispatch,
		limiter:  NewRateLimiter(),
		sessions: newSessionStore(),
		owner:    opts.Owner,
		enabled:  opts.Enabled,
		active:   make(map[string]string),
	}
	b.unsubscribe = source.SubscribeMessages(b.handleMessage)
	return b
}

// SetOwnerIdentity records the addresses the authenticated account's own
// messages may arrive under. Called once per successful connection, or at
// startup from persisted configuration.
func (b *Bridge) SetOwnerIdentity(primary, linked string) {
	b.mu.Lock()
	b.owner = transport.OwnerIdentity{PrimaryID: primary, LinkedID: linked}
	b.mu.Unlock()
	logger.InfoCF("bridge", "Owner identity set", map[string]interface{}{
		"primary": primary,
		"linked":  linked,
	})
}

func (b *Bridge) OwnerIdentity() transport.OwnerIdentity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.owner
}

func (b *Bridge) SetEnabled(enabled bool) {
	b.mu.Lock()
	b.enabled = enabled
	b.mu.Unlock()
}

func (b *Bridge) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

func (b *Bridge) HasActiveTask(senderID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.active[senderID]
	return ok
}

func (b *Bridge) SetActiveTask(senderID, taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active[senderID] = taskID
}

func (b *Bridge) ClearActiveTask(senderID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.active, senderID)
}

// SessionForSender resolves the sender's resumable task-engine session,
// applying idle expiry on read. Empty means start fresh.
func (b *Bridge) SessionForSender(senderID string) string {
	return b.sessions.Get(senderID)
}

func (b *Bridge) SetSessionForSender(senderID, sessionID string) {
	b.sessions.Set(senderID, sessionID)
}

// Dispose detaches from the transport and drops all in-memory state.
func (b *Bridge) Dispose() {
	if b.unsubscribe != nil {
		b.unsubscribe()
		b.unsubscribe = nil
	}
	b.limiter.Reset()
	b.sessions.Clear()
	b.mu.Lock()
	b.active = make(map[string]string)
	b.mu.Unlock()
}

// handleMessage runs the gating pipeline. Order matters: the first
// failing check short-circuits, silent drops come before any check whose
// rejection answers the sender, and nothing is rate-counted until the
// identity gates have passed.
func (b *Bridge) handleMessage(msg transport.InboundMessage) {
	b.mu.Lock()
	enabled := b.enabled
	owner := b.owner
	b.mu.Unlock()

	if !enabled {
		b.reject(msg, "disabled")
		return
	}
	if msg.IsGroup {
		b.reject(msg, "group_chat")
		return
	}
	if owner.IsZero() {
		b.reject(msg, "no_owner_identity")
		return
	}
	if !msg.IsFromMe || !owner.Matches(msg.SenderID) {
		b.reject(msg, "ownership_mismatch")
		return
	}
	if !b.limiter.AllowGlobal() {
		b.reject(msg, "global_rate_limit")
		return
	}
	if !b.limiter.AllowSender(msg.SenderID) {
		b.reject(msg, "sender_rate_limit")
		b.notify(msg.SenderID, noticeThrottled)
		return
	}

	b.limiter.Record(msg.SenderID)

	if len([]rune(msg.Text)) > MaxMessageLength {
		b.reject(msg, "too_long")
		b.notify(msg.SenderID, noticeTooLong)
		return
	}

	text, err := SanitizeMessage(msg.Text)
	if err != nil {
		b.reject(msg, "sanitize_failed")
		b.notify(msg.SenderID, noticeUnprocessable)
		return
	}

	b.mu.Lock()
	if _, busy := b.active[msg.SenderID]; busy {
		b.mu.Unlock()
		b.reject(msg, "task_running")
		b.notify(msg.SenderID, noticeTaskRunning)
		return
	}
	b.active[msg.SenderID] = activeTaskPlaceholder
	b.mu.Unlock()

	name := SanitizeDisplayName(msg.SenderName)

	logger.InfoCF("bridge", "Dispatching task request", map[string]interface{}{
		"sender": msg.SenderID,
		"chars":  len(text),
	})

	if err := b.dispatch(msg.SenderID, name, text); err != nil {
		b.ClearActiveTask(msg.SenderID)
		// The raw error stays in the log; the channel gets a generic notice.
		logger.ErrorCF("bridge", "Dispatch failed", map[string]interface{}{
			"sender": msg.SenderID,
			"error":  err.Error(),
		})
		b.notify(msg.SenderID, noticeDispatchFail)
	}
}

// reject logs a gating decision at debug verbosity with the coarse reason
// only; message content never reaches the log at normal levels.
func (b *Bridge) reject(msg transport.InboundMessage, reason string) {
	logger.DebugCF("bridge", "Message rejected", map[string]interface{}{
		"reason":  reason,
		"sender":  msg.SenderID,
		"from_me": msg.IsFromMe,
		"group":   msg.IsGroup,
		"ts":      msg.TimestampMS,
	})
}

// notify answers a rejection. Denial replies are independent of the rate
// limiter so they cannot be used to bypass it, and they are best-effort.
func (b *Bridge) notify(senderID, text string) {
	if err := b.source.SendMessage(senderID, text); err != nil {
		logger.DebugCF("bridge", "Notice send failed", map[string]interface{}{
			"sender": senderID,
			"error":  err.Error(),
		})
	}
}
