package transport

import (
	"context"
	"strings"
)

// Status is the lifecycle state of a channel transport.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusQRReady      Status = "qr_ready"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusLoggedOut    Status = "logged_out"
)

// InboundMessage is one normalized message from the channel network.
// Constructed by a transport per network event, consumed once by the bridge.
type InboundMessage struct {
	ID          string
	SenderID    string
	SenderName  string
	Text        string
	TimestampMS int64
	IsGroup     bool
	IsFromMe    bool
}

// OwnerIdentity carries the two address formats under which the
// authenticated account's own messages may appear: the direct network
// identifier and the linked-identity form.
type OwnerIdentity struct {
	PrimaryID string
	LinkedID  string
}

const linkedIDSuffix = "@lid"

// IsZero reports whether no owner identity is configured at all.
func (o OwnerIdentity) IsZero() bool {
	return o.PrimaryID == "" && o.LinkedID == ""
}

// Matches reports whether senderID is one of the owner's addresses.
// Linked-format senders compare against LinkedID, all others against
// PrimaryID. An unset comparand never matches: fail closed.
func (o OwnerIdentity) Matches(senderID string) bool {
	if senderID == "" {
		return false
	}
	if strings.HasSuffix(senderID, linkedIDSuffix) {
		return o.LinkedID != "" && senderID == o.LinkedID
	}
	return o.PrimaryID != "" && senderID == o.PrimaryID
}

// Sender is the outbound half of a transport. Sends are best-effort:
// callers must not abort task execution because a reply failed.
type Sender interface {
	SendMessage(recipientID, text string) error
}

// MessageSource is the narrow capability the bridge consumes: a message
// stream plus a best-effort sender. Keeping the bridge on this interface
// (rather than a concrete transport) lets alternate channel
// implementations plug in behind the same contract.
type MessageSource interface {
	Sender
	SubscribeMessages(fn func(InboundMessage)) (cancel func())
}

// Transport is the full lifecycle contract implemented by concrete channels.
type Transport interface {
	MessageSource

	Connect(ctx context.Context) error
	Disconnect() error
	Status() Status

	SubscribeStatus(fn func(Status))
	SubscribePairing(fn func(code string))
	SubscribeOwnerIdentity(fn func(OwnerIdentity))
}

// CredentialPurger removes persisted session credentials. Transports call
// it when a terminal close cause (logout, forbidden, corrupt session)
// invalidates the stored session.
type CredentialPurger interface {
	PurgeSessionCredentials() error
}
