package transport

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"clawbridge/pkg/config"
	"clawbridge/pkg/logger"
)

// SlackTransport adapts Slack Socket Mode to the transport contract. A
// direct message channel ("im") stands in for the self-chat.
type SlackTransport struct {
	*EventHub

	cfg    config.SlackConfig
	api    *slack.Client
	socket *socketmode.Client

	mu       sync.Mutex
	status   Status
	cancel   context.CancelFunc
	channels map[string]string // sender id -> DM channel id
}

func NewSlackTransport(cfg config.SlackConfig) (*SlackTransport, error) {
	if cfg.BotToken == "" || cfg.AppToken == "" {
		return nil, fmt.Errorf("slack transport requires bot_token and app_token")
	}

	api := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))
	return &SlackTransport{
		EventHub: NewEventHub(),
		cfg:      cfg,
		api:      api,
		socket:   socketmode.New(api),
		status:   StatusDisconnected,
		channels: make(map[string]string),
	}, nil
}

func (t *SlackTransport) Connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	t.setStatus(StatusConnecting)

	go t.runEvents(ctx)
	go func() {
		if err := t.socket.RunContext(ctx); err != nil && ctx.Err() == nil {
			logger.ErrorCF("slack", "Socket mode terminated", map[string]interface{}{
				"error": err.Error(),
			})
		}
		t.setStatus(StatusDisconnected)
	}()

	return nil
}

func (t *SlackTransport) Disconnect() error {
	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.mu.Unlock()

	t.setStatus(StatusDisconnected)
	return nil
}

func (t *SlackTransport) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *SlackTransport) SendMessage(recipientID, text string) error {
	// Replies address the sender id; resolve it back to the DM channel the
	// message arrived on.
	t.mu.Lock()
	target, ok := t.channels[recipientID]
	t.mu.Unlock()
	if !ok {
		target = recipientID
	}

	if _, _, err := t.api.PostMessage(target, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("send slack message: %w", err)
	}
	return nil
}

func (t *SlackTransport) runEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-t.socket.Events:
			if !ok {
				return
			}
			switch evt.Type {
			case socketmode.EventTypeConnected:
				t.setStatus(StatusConnected)
				t.EmitOwnerIdentity(OwnerIdentity{PrimaryID: t.cfg.OwnerID})
				logger.InfoC("slack", "Slack transport connected")
			case socketmode.EventTypeConnecting:
				t.setStatus(StatusConnecting)
			case socketmode.EventTypeEventsAPI:
				apiEvent, castOK := evt.Data.(slackevents.EventsAPIEvent)
				if !castOK {
					continue
				}
				if evt.Request != nil {
					t.socket.Ack(*evt.Request)
				}
				t.handleEventsAPI(apiEvent)
			}
		}
	}
}

func (t *SlackTransport) handleEventsAPI(apiEvent slackevents.EventsAPIEvent) {
	if apiEvent.Type != slackevents.CallbackEvent {
		return
	}

	ev, ok := apiEvent.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return
	}
	if ev.BotID != "" || ev.SubType != "" || ev.Text == "" {
		return
	}

	t.mu.Lock()
	t.channels[ev.User] = ev.Channel
	t.mu.Unlock()

	t.EmitMessage(InboundMessage{
		ID:          ev.TimeStamp,
		SenderID:    ev.User,
		Text:        ev.Text,
		TimestampMS: slackTimestampMS(ev.TimeStamp),
		IsGroup:     ev.ChannelType != "im",
		IsFromMe:    ev.ChannelType == "im",
	})
}

func (t *SlackTransport) setStatus(s Status) {
	t.mu.Lock()
	if t.status == s {
		t.mu.Unlock()
		return
	}
	t.status = s
	t.mu.Unlock()
	t.EmitStatus(s)
}

// slackTimestampMS converts Slack's "seconds.fraction" ts to millis.
func slackTimestampMS(ts string) int64 {
	parts := strings.SplitN(ts, ".", 2)
	secs, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0
	}
	return secs * 1000
}
