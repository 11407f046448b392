package transport

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/mymmrac/telego"

	"clawbridge/pkg/config"
	"clawbridge/pkg/logger"
)

// TelegramTransport adapts a Telegram bot to the transport contract.
// Telegram has no self-chat, so a private chat with the bot stands in for
// it: DMs are reported as self-originated and the gatekeeper's ownership
// check still runs against the configured owner id. The SDK owns
// reconnection, so only a reduced status set is reported.
type TelegramTransport struct {
	*EventHub

	cfg config.TelegramConfig
	bot *telego.Bot

	mu      sync.Mutex
	status  Status
	cancel  context.CancelFunc
	running bool
}

func NewTelegramTransport(cfg config.TelegramConfig) (*TelegramTransport, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &TelegramTransport{
		EventHub: NewEventHub(),
		cfg:      cfg,
		bot:      bot,
		status:   StatusDisconnected,
	}, nil
}

func (t *TelegramTransport) Connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		cancel()
		return fmt.Errorf("telegram transport already connected")
	}
	t.cancel = cancel
	t.running = true
	t.mu.Unlock()

	t.setStatus(StatusConnecting)

	updates, err := t.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{Timeout: 30})
	if err != nil {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
		cancel()
		t.setStatus(StatusDisconnected)
		return fmt.Errorf("start long polling: %w", err)
	}

	t.setStatus(StatusConnected)
	// No linked-identity format on Telegram; only the primary id is set.
	t.EmitOwnerIdentity(OwnerIdentity{PrimaryID: t.cfg.OwnerID})
	logger.InfoC("telegram", "Telegram transport connected")

	go func() {
		for update := range updates {
			if update.Message != nil {
				t.handleUpdate(update.Message)
			}
		}
		t.setStatus(StatusDisconnected)
	}()

	return nil
}

func (t *TelegramTransport) Disconnect() error {
	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.running = false
	t.mu.Unlock()

	t.setStatus(StatusDisconnected)
	return nil
}

func (t *TelegramTransport) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *TelegramTransport) SendMessage(recipientID, text string) error {
	chatID, err := strconv.ParseInt(recipientID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", recipientID, err)
	}

	_, err = t.bot.SendMessage(context.Background(), &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: chatID},
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

func (t *TelegramTransport) handleUpdate(message *telego.Message) {
	if message.From == nil {
		return
	}

	text := message.Text
	if text == "" {
		text = message.Caption
	}
	if text == "" {
		return
	}

	senderName := message.From.FirstName
	if message.From.Username != "" {
		senderName = message.From.Username
	}

	t.EmitMessage(InboundMessage{
		ID:          strconv.Itoa(message.MessageID),
		SenderID:    strconv.FormatInt(message.From.ID, 10),
		SenderName:  senderName,
		Text:        text,
		TimestampMS: message.Date * 1000,
		IsGroup:     message.Chat.Type != "private",
		IsFromMe:    message.Chat.Type == "private",
	})
}

func (t *TelegramTransport) setStatus(s Status) {
	t.mu.Lock()
	if t.status == s {
		t.mu.Unlock()
		return
	}
	t.status = s
	t.mu.Unlock()
	t.EmitStatus(s)
}
