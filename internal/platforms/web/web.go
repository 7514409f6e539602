package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kayz/xenobot/internal/logger"
	"github.com/kayz/xenobot/internal/router"
)

// BotUserID is the author id the console uses for the bot's own lines.
const BotUserID = "xenobot"

const defaultReplyTimeout = 2 * time.Minute

// Config holds web console configuration
type Config struct {
	Addr         string
	ReplyTimeout time.Duration
}

// Platform is a local browser console. Every message typed into it is
// addressed to the bot.
type Platform struct {
	cfg       Config
	startedAt time.Time
	upgrader  websocket.Upgrader
	server    *http.Server

	mu             sync.RWMutex
	messageHandler func(msg router.Message)
	commandHandler func(ctx context.Context, cmd router.Command) router.Response
	pending        map[string]chan router.Response
	sockets        map[string]*socket
}

type socket struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *socket) writeJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

func New(cfg Config) *Platform {
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = defaultReplyTimeout
	}
	return &Platform{
		cfg:       cfg,
		startedAt: time.Now().UTC(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		pending: make(map[string]chan router.Response),
		sockets: make(map[string]*socket),
	}
}

// Name returns the platform name
func (p *Platform) Name() string {
	return "web"
}

func (p *Platform) IsSelf(userID string) bool {
	return userID == BotUserID
}

func (p *Platform) MentionsBot(router.Message) bool {
	return true
}

func (p *Platform) StripMentions(text string) string {
	return strings.TrimSpace(text)
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

// Start serves the console on cfg.Addr
func (p *Platform) Start(ctx context.Context) error {
	if p.cfg.Addr == "" {
		return fmt.Errorf("web console address is required")
	}
	p.server = &http.Server{
		Addr:              p.cfg.Addr,
		Handler:           p.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	go func() {
		if err := p.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("[Web] Server failed: %v", err)
		}
	}()
	logger.Info("[Web] Console listening on http://%s", p.cfg.Addr)
	return nil
}

// Stop shuts down the HTTP server and closes open sockets
func (p *Platform) Stop() error {
	p.mu.Lock()
	for id, s := range p.sockets {
		_ = s.conn.Close()
		delete(p.sockets, id)
	}
	p.mu.Unlock()

	if p.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.server.Shutdown(ctx)
}

// Send delivers a reply to a waiting HTTP request or an open socket
func (p *Platform) Send(_ context.Context, channelID string, resp router.Response) error {
	p.mu.RLock()
	waiter, isPending := p.pending[channelID]
	sock, isSocket := p.sockets[channelID]
	p.mu.RUnlock()

	switch {
	case isPending:
		select {
		case waiter <- resp:
			return nil
		default:
			return fmt.Errorf("reply for %s already delivered", channelID)
		}
	case isSocket:
		return sock.writeJSON(chatResponse{Text: resp.Text, ReplyTo: resp.ThreadID})
	default:
		return fmt.Errorf("unknown web channel: %s", channelID)
	}
}

func (p *Platform) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", p.handleIndex)
	mux.HandleFunc("/api/status", p.handleStatus)
	mux.HandleFunc("/api/chat", p.handleChat)
	mux.HandleFunc("/ws", p.handleSocket)
	return mux
}

func (p *Platform) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (p *Platform) handleStatus(w http.ResponseWriter, _ *http.Request) {
	p.mu.RLock()
	sockets := len(p.sockets)
	p.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"started_at": p.startedAt.Format(time.RFC3339),
		"uptime_sec": int(time.Since(p.startedAt).Seconds()),
		"sockets":    sockets,
	})
}

type chatRequest struct {
	UserID  string `json:"user_id"`
	Text    string `json:"text"`
	ReplyTo string `json:"reply_to,omitempty"` // earlier bot line being replied to
}

type chatResponse struct {
	Text    string `json:"text"`
	ReplyTo string `json:"reply_to,omitempty"`
}

func (req *chatRequest) normalize() {
	req.Text = strings.TrimSpace(req.Text)
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		req.UserID = "web-user"
	}
}

func (p *Platform) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}
	req.normalize()
	if req.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
		return
	}

	channelID := "http-" + uuid.NewString()
	if resp, ok := p.runCommand(r.Context(), channelID, req); ok {
		writeJSON(w, http.StatusOK, chatResponse{Text: resp.Text})
		return
	}

	p.mu.RLock()
	handler := p.messageHandler
	p.mu.RUnlock()
	if handler == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "console is not connected"})
		return
	}

	waiter := make(chan router.Response, 1)
	p.mu.Lock()
	p.pending[channelID] = waiter
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, channelID)
		p.mu.Unlock()
	}()

	handler(p.toRouterMessage(channelID, req))

	timer := time.NewTimer(p.cfg.ReplyTimeout)
	defer timer.Stop()
	select {
	case resp := <-waiter:
		writeJSON(w, http.StatusOK, chatResponse{Text: resp.Text, ReplyTo: resp.ThreadID})
	case <-timer.C:
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": "no reply"})
	case <-r.Context().Done():
	}
}

func (p *Platform) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("[Web] WebSocket upgrade failed: %v", err)
		return
	}

	channelID := "ws-" + uuid.NewString()
	sock := &socket{conn: conn}
	p.mu.Lock()
	p.sockets[channelID] = sock
	p.mu.Unlock()
	logger.Debug("[Web] Socket %s connected", channelID)

	defer func() {
		p.mu.Lock()
		delete(p.sockets, channelID)
		p.mu.Unlock()
		_ = conn.Close()
		logger.Debug("[Web] Socket %s closed", channelID)
	}()

	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("[Web] Socket %s read error: %v", channelID, err)
			}
			return
		}
		req.normalize()
		if req.Text == "" {
			continue
		}
		if resp, ok := p.runCommand(r.Context(), channelID, req); ok {
			if err := sock.writeJSON(chatResponse{Text: resp.Text}); err != nil {
				return
			}
			continue
		}

		p.mu.RLock()
		handler := p.messageHandler
		p.mu.RUnlock()
		if handler != nil {
			handler(p.toRouterMessage(channelID, req))
		}
	}
}

// runCommand handles "/name args" input. The console is a direct scope.
func (p *Platform) runCommand(ctx context.Context, channelID string, req chatRequest) (router.Response, bool) {
	if !strings.HasPrefix(req.Text, "/") {
		return router.Response{}, false
	}
	p.mu.RLock()
	handler := p.commandHandler
	p.mu.RUnlock()
	if handler == nil {
		return router.Response{}, false
	}

	name, args, _ := strings.Cut(strings.TrimPrefix(req.Text, "/"), " ")
	return handler(ctx, router.Command{
		Platform:  "web",
		Name:      name,
		Args:      strings.TrimSpace(args),
		UserID:    req.UserID,
		Username:  req.UserID,
		ChannelID: channelID,
	}), true
}

func (p *Platform) toRouterMessage(channelID string, req chatRequest) router.Message {
	msg := router.Message{
		ID:        uuid.NewString(),
		Platform:  "web",
		ChannelID: channelID,
		UserID:    req.UserID,
		Username:  req.UserID,
		Text:      req.Text,
		Metadata:  map[string]string{"chat_type": "private"},
	}
	if anchor := strings.TrimSpace(req.ReplyTo); anchor != "" {
		msg.ReplyTo = &router.ReplyRef{AuthorID: BotUserID, Content: anchor}
	}
	return msg
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
