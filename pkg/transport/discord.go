package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"clawbridge/pkg/config"
	"clawbridge/pkg/logger"
)

// DiscordTransport adapts a Discord bot to the transport contract. Like
// Telegram, a DM with the bot stands in for the self-chat; guild messages
// map to IsGroup and are rejected by the gatekeeper.
type DiscordTransport struct {
	*EventHub

	cfg     config.DiscordConfig
	session *discordgo.Session

	mu       sync.Mutex
	status   Status
	channels map[string]string
}

func NewDiscordTransport(cfg config.DiscordConfig) (*DiscordTransport, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsDirectMessages | discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

	return &DiscordTransport{
		EventHub: NewEventHub(),
		cfg:      cfg,
		session:  session,
		status:   StatusDisconnected,
		channels: make(map[string]string),
	}, nil
}

func (t *DiscordTransport) Connect(ctx context.Context) error {
	t.setStatus(StatusConnecting)

	t.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		t.handleMessageCreate(m)
	})

	if err := t.session.Open(); err != nil {
		t.setStatus(StatusDisconnected)
		return fmt.Errorf("open discord gateway: %w", err)
	}

	t.setStatus(StatusConnected)
	t.EmitOwnerIdentity(OwnerIdentity{PrimaryID: t.cfg.OwnerID})
	logger.InfoC("discord", "Discord transport connected")

	go func() {
		<-ctx.Done()
		_ = t.Disconnect()
	}()

	return nil
}

func (t *DiscordTransport) Disconnect() error {
	if err := t.session.Close(); err != nil {
		logger.DebugCF("discord", "Error closing session", map[string]interface{}{
			"error": err.Error(),
		})
	}
	t.setStatus(StatusDisconnected)
	return nil
}

func (t *DiscordTransport) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// SendMessage resolves the recipient's DM channel. The inbound path
// caches sender to channel mappings; an unseen recipient gets a fresh
// DM channel from the API.
func (t *DiscordTransport) SendMessage(recipientID, text string) error {
	t.mu.Lock()
	channelID := t.channels[recipientID]
	t.mu.Unlock()

	if channelID == "" {
		ch, err := t.session.UserChannelCreate(recipientID)
		if err != nil {
			return fmt.Errorf("create discord dm channel: %w", err)
		}
		channelID = ch.ID
		t.mu.Lock()
		t.channels[recipientID] = channelID
		t.mu.Unlock()
	}

	if _, err := t.session.ChannelMessageSend(channelID, text); err != nil {
		return fmt.Errorf("send discord message: %w", err)
	}
	return nil
}

func (t *DiscordTransport) handleMessageCreate(m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if m.Content == "" {
		return
	}

	t.mu.Lock()
	t.channels[m.Author.ID] = m.ChannelID
	t.mu.Unlock()

	t.EmitMessage(InboundMessage{
		ID:          m.ID,
		SenderID:    m.Author.ID,
		SenderName:  m.Author.Username,
		Text:        m.Content,
		TimestampMS: m.Timestamp.UnixMilli(),
		IsGroup:     m.GuildID != "",
		IsFromMe:    m.GuildID == "",
	})
}

func (t *DiscordTransport) setStatus(s Status) {
	t.mu.Lock()
	if t.status == s {
		t.mu.Unlock()
		return
	}
	t.status = s
	t.mu.Unlock()
	t.EmitStatus(s)
}
