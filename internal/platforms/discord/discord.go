package discord

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/kayz/xenobot/internal/logger"
	"github.com/kayz/xenobot/internal/router"
)

const maxMessageLength = 2000

// Platform implements router.Platform for Discord
type Platform struct {
	session *discordgo.Session
	cfg     Config

	mu             sync.RWMutex
	botUserID      string
	messageHandler func(msg router.Message)
	commandHandler func(ctx context.Context, cmd router.Command) router.Response
	greeted        map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
}

// Config holds Discord configuration
type Config struct {
	Token string // Bot token from Discord Developer Portal
	// AddressInDM treats every direct message as addressed to the bot.
	AddressInDM     bool
	IgnoreOtherBots bool
	GreetOnReady    bool
	Greeting        string
}

// New creates a new Discord platform
func New(cfg Config) (*Platform, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("Discord bot token is required")
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	if cfg.Greeting == "" {
		cfg.Greeting = "Hello!"
	}

	return &Platform{
		session: session,
		cfg:     cfg,
		greeted: make(map[string]bool),
	}, nil
}

// Name returns the platform name
func (p *Platform) Name() string {
	return "discord"
}

// SetMessageHandler sets the callback for incoming messages
func (p *Platform) SetMessageHandler(handler func(msg router.Message)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messageHandler = handler
}

// SetCommandHandler sets the callback for slash commands
func (p *Platform) SetCommandHandler(handler func(ctx context.Context, cmd router.Command) router.Response) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.commandHandler = handler
}

func (p *Platform) botID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.botUserID
}

// IsSelf reports whether userID is the connected bot user.
func (p *Platform) IsSelf(userID string) bool {
	id := p.botID()
	return id != "" && userID == id
}

// MentionsBot uses the mention list captured at receive time, falling back to
// the raw mention tokens in the text.
func (p *Platform) MentionsBot(msg router.Message) bool {
	if msg.Metadata["mentioned"] == "true" {
		return true
	}
	if p.cfg.AddressInDM && msg.IsDirect() {
		return true
	}
	id := p.botID()
	return id != "" && (strings.Contains(msg.Text, "<@"+id+">") || strings.Contains(msg.Text, "<@!"+id+">"))
}

// StripMentions removes the bot mention tokens from text
func (p *Platform) StripMentions(text string) string {
	return stripMentions(text, p.botID())
}

// Start begins listening for Discord events
func (p *Platform) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.session.AddHandler(p.handleMessage)
	p.session.AddHandler(p.handleInteraction)
	if p.cfg.GreetOnReady {
		p.session.AddHandler(p.handleGuildCreate)
	}

	if err := p.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	user, err := p.session.User("@me")
	if err != nil {
		return fmt.Errorf("failed to get bot user: %w", err)
	}
	p.mu.Lock()
	p.botUserID = user.ID
	p.mu.Unlock()

	if _, err := p.session.ApplicationCommandBulkOverwrite(user.ID, "", slashCommands()); err != nil {
		logger.Warn("[Discord] Failed to register slash commands: %v", err)
	}

	logger.Info("[Discord] Connected as bot: %s#%s", user.Username, user.Discriminator)
	return nil
}

// Stop shuts down the Discord connection
func (p *Platform) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	return p.session.Close()
}

// Send sends a message to a Discord channel. Long text is split; only the
// first part is threaded to the triggering message.
func (p *Platform) Send(ctx context.Context, channelID string, resp router.Response) error {
	for i, part := range splitMessage(resp.Text, maxMessageLength) {
		var reference *discordgo.MessageReference
		if i == 0 && resp.ThreadID != "" {
			reference = &discordgo.MessageReference{
				MessageID: resp.ThreadID,
				ChannelID: channelID,
			}
		}
		_, err := p.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
			Content:   part,
			Reference: reference,
		}, discordgo.WithContext(ctx))
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Platform) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil {
		return
	}
	botID := p.botID()
	if m.Author.Bot && m.Author.ID != botID && p.cfg.IgnoreOtherBots {
		return
	}

	p.mu.RLock()
	handler := p.messageHandler
	p.mu.RUnlock()
	if handler == nil {
		return
	}
	handler(toRouterMessage(m.Message, botID))
}

// toRouterMessage normalises a Discord message. The referenced message is
// resolved by the gateway; a reference without it was deleted or is not
// visible to the bot.
func toRouterMessage(m *discordgo.Message, botID string) router.Message {
	msg := router.Message{
		ID:        m.ID,
		Platform:  "discord",
		ChannelID: m.ChannelID,
		ScopeID:   m.GuildID,
		Text:      m.Content,
		Metadata: map[string]string{
			"guild_id":  m.GuildID,
			"mentioned": strconv.FormatBool(mentionsUser(m, botID)),
		},
	}
	if m.Author != nil {
		msg.UserID = m.Author.ID
		msg.Username = m.Author.Username
		msg.FromSelf = botID != "" && m.Author.ID == botID
	}

	switch {
	case m.ReferencedMessage != nil:
		ref := &router.ReplyRef{
			MessageID: m.ReferencedMessage.ID,
			Content:   m.ReferencedMessage.Content,
		}
		if m.ReferencedMessage.Author != nil {
			ref.AuthorID = m.ReferencedMessage.Author.ID
		}
		msg.ReplyTo = ref
	case m.MessageReference != nil:
		msg.ReplyTo = &router.ReplyRef{MessageID: m.MessageReference.MessageID, Missing: true}
	}
	return msg
}

func mentionsUser(m *discordgo.Message, userID string) bool {
	if userID == "" {
		return false
	}
	for _, mention := range m.Mentions {
		if mention != nil && mention.ID == userID {
			return true
		}
	}
	return false
}

// stripMentions removes <@ID> and <@!ID> tokens for the bot
func stripMentions(text, botID string) string {
	if botID == "" {
		return text
	}
	text = strings.ReplaceAll(text, "<@"+botID+">", "")
	text = strings.ReplaceAll(text, "<@!"+botID+">", "")
	return strings.TrimSpace(text)
}

// splitMessage cuts text into chunks of at most limit runes, preferring line
// breaks.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

func (p *Platform) handleGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil || g.Unavailable {
		return
	}

	p.mu.Lock()
	if p.greeted[g.ID] {
		p.mu.Unlock()
		return
	}
	p.greeted[g.ID] = true
	p.mu.Unlock()

	botID := p.botID()
	for _, ch := range g.Channels {
		if ch.Type != discordgo.ChannelTypeGuildText {
			continue
		}
		perms, err := s.UserChannelPermissions(botID, ch.ID)
		if err != nil || perms&discordgo.PermissionSendMessages == 0 {
			continue
		}
		if _, err := s.ChannelMessageSend(ch.ID, p.cfg.Greeting); err != nil {
			logger.Warn("[Discord] Failed to greet guild %s: %v", g.ID, err)
		}
		return
	}
}
