package telegram

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kayz/xenobot/internal/logger"
	"github.com/kayz/xenobot/internal/router"
)

const maxMessageLength = 4096

// Platform implements router.Platform for Telegram
type Platform struct {
	bot *tgbotapi.BotAPI
	cfg Config

	selfID   int64
	selfName string
	mention  *regexp.Regexp

	mu             sync.RWMutex
	messageHandler func(msg router.Message)
	commandHandler func(ctx context.Context, cmd router.Command) router.Response

	ctx    context.Context
	cancel context.CancelFunc
}

// Config holds Telegram configuration
type Config struct {
	Token string // Bot token from @BotFather
	Debug bool   // Enable debug logging
	// AddressInPrivate treats every private-chat message as addressed to the bot.
	AddressInPrivate bool
}

// New creates a new Telegram platform. It contacts the Bot API to learn the
// bot's own identity.
func New(cfg Config) (*Platform, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("Telegram bot token is required")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug

	p := newPlatform(cfg, bot.Self.ID, bot.Self.UserName)
	p.bot = bot
	return p, nil
}

func newPlatform(cfg Config, selfID int64, selfName string) *Platform {
	p := &Platform{cfg: cfg, selfID: selfID, selfName: selfName}
	if selfName != "" {
		p.mention = regexp.MustCompile(`(?i)@` + regexp.QuoteMeta(selfName) + `\b`)
	}
	return p
}

// Name returns the platform name
func (p *Platform) Name() string {
	return "telegram"
}

// SetMessageHandler sets the callback for incoming messages
func (p *Platform) SetMessageHandler(handler func(msg router.Message)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messageHandler = handler
}

// SetCommandHandler sets the callback for /commands
func (p *Platform) SetCommandHandler(handler func(ctx context.Context, cmd router.Command) router.Response) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.commandHandler = handler
}

// IsSelf reports whether userID is this bot.
func (p *Platform) IsSelf(userID string) bool {
	return p.selfID != 0 && userID == strconv.FormatInt(p.selfID, 10)
}

// MentionsBot checks the mention captured at receive time and the @username
// in the text.
func (p *Platform) MentionsBot(msg router.Message) bool {
	if msg.Metadata["mentioned"] == "true" {
		return true
	}
	if p.cfg.AddressInPrivate && msg.IsDirect() {
		return true
	}
	return p.mention != nil && p.mention.MatchString(msg.Text)
}

// StripMentions removes @username tokens for the bot
func (p *Platform) StripMentions(text string) string {
	if p.mention == nil {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(p.mention.ReplaceAllString(text, ""))
}

// Start begins listening for Telegram updates
func (p *Platform) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := p.bot.GetUpdatesChan(u)

	go p.handleUpdates(updates)

	logger.Info("[Telegram] Connected as bot: @%s", p.selfName)
	return nil
}

// Stop shuts down the Telegram connection
func (p *Platform) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	if p.bot != nil {
		p.bot.StopReceivingUpdates()
	}
	return nil
}

// Send sends a message to a Telegram chat as plain text
func (p *Platform) Send(ctx context.Context, channelID string, resp router.Response) error {
	chatID, err := parseChatID(channelID)
	if err != nil {
		return err
	}

	for i, part := range splitMessage(resp.Text, maxMessageLength) {
		msg := tgbotapi.NewMessage(chatID, part)
		if i == 0 && resp.ThreadID != "" {
			if msgID, err := parseMessageID(resp.ThreadID); err == nil {
				msg.ReplyToMessageID = msgID
			}
		}
		if _, err := p.bot.Send(msg); err != nil {
			return err
		}
	}
	return nil
}

func (p *Platform) handleUpdates(updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-p.ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			p.handleMessage(update.Message)
		}
	}
}

func (p *Platform) handleMessage(m *tgbotapi.Message) {
	if m.IsCommand() {
		if name, ok := p.commandName(m); ok {
			p.handleCommand(m, name)
			return
		}
	}

	p.mu.RLock()
	handler := p.messageHandler
	p.mu.RUnlock()
	if handler == nil {
		return
	}
	handler(p.toRouterMessage(m))
}

// commandName returns a supported command addressed to this bot. Commands
// suffixed with another bot's username are not ours.
func (p *Platform) commandName(m *tgbotapi.Message) (string, bool) {
	withAt := m.CommandWithAt()
	if at := strings.IndexByte(withAt, '@'); at >= 0 && !strings.EqualFold(withAt[at+1:], p.selfName) {
		return "", false
	}
	switch name := strings.ToLower(m.Command()); name {
	case "actlike", "forget":
		return name, true
	default:
		return "", false
	}
}

func (p *Platform) handleCommand(m *tgbotapi.Message, name string) {
	p.mu.RLock()
	handler := p.commandHandler
	p.mu.RUnlock()
	if handler == nil {
		return
	}

	cmd := router.Command{
		Platform:  "telegram",
		Name:      name,
		Args:      strings.TrimSpace(m.CommandArguments()),
		UserID:    strconv.FormatInt(m.From.ID, 10),
		Username:  getUsername(m.From),
		ChannelID: strconv.FormatInt(m.Chat.ID, 10),
		ScopeID:   scopeID(m.Chat),
	}
	if cmd.ScopeID != "" {
		p.applyMemberStatus(&cmd, m.Chat.ID, m.From.ID)
	}

	resp := handler(p.ctx, cmd)
	resp.ThreadID = strconv.Itoa(m.MessageID)
	if err := p.Send(p.ctx, cmd.ChannelID, resp); err != nil {
		logger.Warn("[Telegram] Failed to answer /%s: %v", name, err)
	}
}

// applyMemberStatus asks Telegram for the caller's role in a group chat.
func (p *Platform) applyMemberStatus(cmd *router.Command, chatID, userID int64) {
	member, err := p.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		logger.Warn("[Telegram] Failed to get chat member %d in %d: %v", userID, chatID, err)
		return
	}
	switch {
	case member.IsCreator():
		cmd.ScopeOwnerID = cmd.UserID
	case member.IsAdministrator():
		cmd.Admin = true
	}
}

func (p *Platform) toRouterMessage(m *tgbotapi.Message) router.Message {
	msg := router.Message{
		ID:        strconv.Itoa(m.MessageID),
		Platform:  "telegram",
		ChannelID: strconv.FormatInt(m.Chat.ID, 10),
		ScopeID:   scopeID(m.Chat),
		Text:      messageText(m),
		Metadata: map[string]string{
			"chat_type": m.Chat.Type,
			"mentioned": strconv.FormatBool(mentionsSelf(m, p.selfID)),
		},
	}
	if m.From != nil {
		msg.UserID = strconv.FormatInt(m.From.ID, 10)
		msg.Username = getUsername(m.From)
		msg.FromSelf = p.selfID != 0 && m.From.ID == p.selfID
	}
	if r := m.ReplyToMessage; r != nil {
		ref := &router.ReplyRef{
			MessageID: strconv.Itoa(r.MessageID),
			Content:   messageText(r),
		}
		if r.From != nil {
			ref.AuthorID = strconv.FormatInt(r.From.ID, 10)
		}
		msg.ReplyTo = ref
	}
	return msg
}

// mentionsSelf detects text_mention entities, which name a user without an
// @username in the text.
func mentionsSelf(m *tgbotapi.Message, selfID int64) bool {
	if selfID == 0 {
		return false
	}
	for _, e := range m.Entities {
		if e.Type == "text_mention" && e.User != nil && e.User.ID == selfID {
			return true
		}
	}
	return false
}

func messageText(m *tgbotapi.Message) string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

// scopeID is the community key for group chats and empty for private chats.
func scopeID(chat *tgbotapi.Chat) string {
	if chat == nil || chat.IsPrivate() {
		return ""
	}
	return strconv.FormatInt(chat.ID, 10)
}

// getUsername returns a human-readable username
func getUsername(user *tgbotapi.User) string {
	if user.UserName != "" {
		return user.UserName
	}
	if user.FirstName != "" {
		name := user.FirstName
		if user.LastName != "" {
			name += " " + user.LastName
		}
		return name
	}
	return strconv.FormatInt(user.ID, 10)
}

func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var parts []string
	for len(runes) > limit {
		parts = append(parts, string(runes[:limit]))
		runes = runes[limit:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

// parseChatID parses a string chat ID to int64
func parseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q: %w", s, err)
	}
	return id, nil
}

// parseMessageID parses a string message ID to int
func parseMessageID(s string) (int, error) {
	return strconv.Atoi(s)
}
