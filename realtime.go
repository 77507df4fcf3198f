package macrolog

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

// ============================================================================
// Event Payload Types
// ============================================================================

// AuthenticatedPayload is sent when a real-time connection is authenticated.
type AuthenticatedPayload struct {
	UserID int    `json:"userId"`
	Email  string `json:"email,omitempty"`
}

// LogCreatedPayload is sent when a meal log is created on another device.
type LogCreatedPayload struct {
	Log    MealLog `json:"log"`
	UserID int     `json:"userId"`
}

// SocialPostPayload is sent when someone the user follows posts to the feed.
type SocialPostPayload struct {
	Post SocialPost `json:"post"`
}

// GoalUpdatedPayload is sent when the user's goals change server-side.
type GoalUpdatedPayload struct {
	UserID int   `json:"userId"`
	Goals  Goals `json:"goals"`
}

// RealtimeErrorPayload is sent when a server-side error occurs.
type RealtimeErrorPayload struct {
	Message string `json:"message"`
}

type pongPayload struct {
	RequestID string `json:"requestId"`
}

// realtimeEnvelope is the wire format for all real-time events.
type realtimeEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// realtimeCommand is a client-to-server command.
type realtimeCommand struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	RequestID string      `json:"requestId,omitempty"`
}

// ============================================================================
// Configuration
// ============================================================================

// RealtimeConfig configures the real-time client.
type RealtimeConfig struct {
	Token                string
	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	HeartbeatInterval    time.Duration
}

func (c *RealtimeConfig) defaults() {
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 1 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
}

// RealtimeState represents the connection state.
type RealtimeState string

const (
	StateDisconnected RealtimeState = "disconnected"
	StateConnecting   RealtimeState = "connecting"
	StateConnected    RealtimeState = "connected"
	StateReconnecting RealtimeState = "reconnecting"
)

// ============================================================================
// Reconnector
// ============================================================================

type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
	connectedAt time.Time
}

func newReconnector(config *RealtimeConfig) *reconnector {
	return &reconnector{
		baseDelay:   config.ReconnectBaseDelay,
		maxDelay:    config.ReconnectMaxDelay,
		maxAttempts: config.MaxReconnectAttempts,
	}
}

func (r *reconnector) shouldReconnect() bool {
	return r.maxAttempts == 0 || r.attempt < r.maxAttempts
}

func (r *reconnector) markConnected() {
	r.connectedAt = time.Now()
}

func (r *reconnector) nextDelay() time.Duration {
	if !r.connectedAt.IsZero() && time.Since(r.connectedAt) > 60*time.Second {
		r.attempt = 0
	}
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}

// ============================================================================
// RealtimeClient
// ============================================================================

// RealtimeEventHandler is the generic event callback type.
type RealtimeEventHandler func(eventType string, payload json.RawMessage)

// RealtimeClient is a WebSocket client for MacroLog live events (meal logs
// from other devices, social feed activity, goal changes) with auto-reconnect
// and heartbeat. Its connected/disconnected transitions can drive an
// OfflineManager's connectivity flag via BindOffline.
type RealtimeClient struct {
	baseURL string
	config  *RealtimeConfig

	mu               sync.Mutex
	conn             *websocket.Conn
	state            RealtimeState
	intentionalClose bool
	cancelFn         context.CancelFunc

	handlerMu      sync.RWMutex
	generic        map[string][]RealtimeEventHandler
	onAuth         []func(AuthenticatedPayload)
	onLogCreated   []func(LogCreatedPayload)
	onSocialPost   []func(SocialPostPayload)
	onGoalUpdated  []func(GoalUpdatedPayload)
	onError        []func(RealtimeErrorPayload)
	onConnected    []func()
	onDisconnected []func(reason string)
	onReconnecting []func(attempt int, delay time.Duration)

	recon        *reconnector
	pendingMu    sync.Mutex
	pendingPings map[string]chan pongPayload
}

// NewRealtimeClient creates a real-time client for the client's base URL.
// Call Connect to establish the connection.
func (c *Client) NewRealtimeClient(config *RealtimeConfig) *RealtimeClient {
	var cfg RealtimeConfig
	if config != nil {
		cfg = *config
	}
	cfg.defaults()
	if cfg.Token == "" {
		cfg.Token = c.token
	}
	return &RealtimeClient{
		baseURL:      c.baseURL,
		config:       &cfg,
		state:        StateDisconnected,
		generic:      make(map[string][]RealtimeEventHandler),
		recon:        newReconnector(&cfg),
		pendingPings: make(map[string]chan pongPayload),
	}
}

// BindOffline wires the connection state into an offline manager: the
// manager goes online when the socket authenticates and offline when it
// drops. This is the SDK's connectivity probe for hosts without a native
// online/offline signal.
func (rt *RealtimeClient) BindOffline(o *OfflineManager) {
	rt.OnConnected(func() { o.SetOnline(true) })
	rt.OnDisconnected(func(string) { o.SetOnline(false) })
}

// ============================================================================
// Handler registration
// ============================================================================

func (rt *RealtimeClient) OnAuthenticated(h func(AuthenticatedPayload)) {
	rt.handlerMu.Lock()
	rt.onAuth = append(rt.onAuth, h)
	rt.handlerMu.Unlock()
}

func (rt *RealtimeClient) OnLogCreated(h func(LogCreatedPayload)) {
	rt.handlerMu.Lock()
	rt.onLogCreated = append(rt.onLogCreated, h)
	rt.handlerMu.Unlock()
}

func (rt *RealtimeClient) OnSocialPost(h func(SocialPostPayload)) {
	rt.handlerMu.Lock()
	rt.onSocialPost = append(rt.onSocialPost, h)
	rt.handlerMu.Unlock()
}

func (rt *RealtimeClient) OnGoalUpdated(h func(GoalUpdatedPayload)) {
	rt.handlerMu.Lock()
	rt.onGoalUpdated = append(rt.onGoalUpdated, h)
	rt.handlerMu.Unlock()
}

func (rt *RealtimeClient) OnError(h func(RealtimeErrorPayload)) {
	rt.handlerMu.Lock()
	rt.onError = append(rt.onError, h)
	rt.handlerMu.Unlock()
}

func (rt *RealtimeClient) OnConnected(h func()) {
	rt.handlerMu.Lock()
	rt.onConnected = append(rt.onConnected, h)
	rt.handlerMu.Unlock()
}

func (rt *RealtimeClient) OnDisconnected(h func(reason string)) {
	rt.handlerMu.Lock()
	rt.onDisconnected = append(rt.onDisconnected, h)
	rt.handlerMu.Unlock()
}

func (rt *RealtimeClient) OnReconnecting(h func(attempt int, delay time.Duration)) {
	rt.handlerMu.Lock()
	rt.onReconnecting = append(rt.onReconnecting, h)
	rt.handlerMu.Unlock()
}

// On registers a generic event handler.
func (rt *RealtimeClient) On(eventType string, h RealtimeEventHandler) {
	rt.handlerMu.Lock()
	rt.generic[eventType] = append(rt.generic[eventType], h)
	rt.handlerMu.Unlock()
}

// State returns the current connection state.
func (rt *RealtimeClient) State() RealtimeState {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.state
}

// ============================================================================
// Dispatch
// ============================================================================

func (rt *RealtimeClient) dispatch(env realtimeEnvelope) {
	rt.handlerMu.RLock()
	defer rt.handlerMu.RUnlock()

	switch env.Type {
	case "authenticated":
		var p AuthenticatedPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			for _, h := range rt.onAuth {
				go h(p)
			}
		}
	case "log.created":
		var p LogCreatedPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			for _, h := range rt.onLogCreated {
				go h(p)
			}
		}
	case "social.post":
		var p SocialPostPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			for _, h := range rt.onSocialPost {
				go h(p)
			}
		}
	case "goal.updated":
		var p GoalUpdatedPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			for _, h := range rt.onGoalUpdated {
				go h(p)
			}
		}
	case "error":
		var p RealtimeErrorPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			for _, h := range rt.onError {
				go h(p)
			}
		}
	}

	for _, h := range rt.generic[env.Type] {
		handler := h // capture
		go handler(env.Type, env.Payload)
	}
}

func (rt *RealtimeClient) emitConnected() {
	rt.handlerMu.RLock()
	handlers := append([]func(){}, rt.onConnected...)
	rt.handlerMu.RUnlock()
	for _, h := range handlers {
		go h()
	}
}

func (rt *RealtimeClient) emitDisconnected(reason string) {
	rt.handlerMu.RLock()
	handlers := append([]func(string){}, rt.onDisconnected...)
	rt.handlerMu.RUnlock()
	for _, h := range handlers {
		go h(reason)
	}
}

func (rt *RealtimeClient) emitReconnecting(attempt int, delay time.Duration) {
	rt.handlerMu.RLock()
	handlers := append([]func(int, time.Duration){}, rt.onReconnecting...)
	rt.handlerMu.RUnlock()
	for _, h := range handlers {
		go h(attempt, delay)
	}
}

// ============================================================================
// Connection lifecycle
// ============================================================================

// Connect establishes the WebSocket connection and waits for the server's
// authenticated event.
func (rt *RealtimeClient) Connect(ctx context.Context) error {
	rt.mu.Lock()
	if rt.state == StateConnected || rt.state == StateConnecting {
		rt.mu.Unlock()
		return nil
	}
	rt.state = StateConnecting
	rt.intentionalClose = false
	rt.mu.Unlock()

	wsURL := strings.Replace(rt.baseURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL += "/ws?token=" + rt.config.Token

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		rt.setState(StateDisconnected)
		return fmt.Errorf("websocket dial: %w", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		conn.Close(websocket.StatusNormalClosure, "")
		rt.setState(StateDisconnected)
		return fmt.Errorf("read auth message: %w", err)
	}

	var env realtimeEnvelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type != "authenticated" {
		conn.Close(websocket.StatusNormalClosure, "")
		rt.setState(StateDisconnected)
		return fmt.Errorf("expected 'authenticated', got '%s'", env.Type)
	}

	rt.mu.Lock()
	rt.conn = conn
	rt.state = StateConnected
	rt.mu.Unlock()
	rt.recon.markConnected()

	rt.dispatch(env)
	rt.emitConnected()

	connCtx, cancel := context.WithCancel(ctx)
	rt.mu.Lock()
	rt.cancelFn = cancel
	rt.mu.Unlock()

	go rt.readLoop(connCtx)
	go rt.heartbeatLoop(connCtx)

	return nil
}

// Disconnect gracefully closes the connection.
func (rt *RealtimeClient) Disconnect() error {
	rt.mu.Lock()
	rt.intentionalClose = true
	if rt.cancelFn != nil {
		rt.cancelFn()
		rt.cancelFn = nil
	}
	conn := rt.conn
	rt.conn = nil
	rt.state = StateDisconnected
	rt.mu.Unlock()

	rt.clearPendingPings()

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	rt.emitDisconnected("client disconnect")
	return nil
}

func (rt *RealtimeClient) setState(s RealtimeState) {
	rt.mu.Lock()
	rt.state = s
	rt.mu.Unlock()
}

// Subscribe joins a server-side event channel, e.g. "feed" or "household".
func (rt *RealtimeClient) Subscribe(ctx context.Context, channel string) error {
	return rt.send(ctx, &realtimeCommand{
		Type:    "subscribe",
		Payload: map[string]string{"channel": channel},
	})
}

func (rt *RealtimeClient) send(ctx context.Context, cmd *realtimeCommand) error {
	rt.mu.Lock()
	conn := rt.conn
	rt.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// Ping sends a ping and waits for the matching pong.
func (rt *RealtimeClient) Ping(ctx context.Context) error {
	requestID := uuid.NewString()

	ch := make(chan pongPayload, 1)
	rt.pendingMu.Lock()
	rt.pendingPings[requestID] = ch
	rt.pendingMu.Unlock()

	drop := func() {
		rt.pendingMu.Lock()
		delete(rt.pendingPings, requestID)
		rt.pendingMu.Unlock()
	}

	err := rt.send(ctx, &realtimeCommand{
		Type:    "ping",
		Payload: map[string]string{"requestId": requestID},
	})
	if err != nil {
		drop()
		return err
	}

	select {
	case <-ch:
		return nil
	case <-time.After(10 * time.Second):
		drop()
		return fmt.Errorf("ping timeout")
	case <-ctx.Done():
		drop()
		return ctx.Err()
	}
}

func (rt *RealtimeClient) readLoop(ctx context.Context) {
	// Capture the conn once; Disconnect nils the shared field concurrently.
	rt.mu.Lock()
	conn := rt.conn
	rt.mu.Unlock()
	if conn == nil {
		return
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			rt.mu.Lock()
			intentional := rt.intentionalClose
			rt.mu.Unlock()
			if intentional {
				return
			}

			rt.mu.Lock()
			rt.state = StateDisconnected
			rt.conn = nil
			rt.mu.Unlock()

			rt.emitDisconnected(err.Error())

			if rt.config.AutoReconnect && rt.recon.shouldReconnect() {
				rt.scheduleReconnect(ctx)
			}
			return
		}

		var env realtimeEnvelope
		if json.Unmarshal(data, &env) != nil {
			continue
		}

		if env.Type == "pong" {
			var p pongPayload
			if json.Unmarshal(env.Payload, &p) == nil && p.RequestID != "" {
				rt.pendingMu.Lock()
				ch, ok := rt.pendingPings[p.RequestID]
				if ok {
					delete(rt.pendingPings, p.RequestID)
				}
				rt.pendingMu.Unlock()
				if ok {
					ch <- p
				}
			}
			continue
		}

		rt.dispatch(env)
	}
}

func (rt *RealtimeClient) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(rt.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if rt.State() != StateConnected {
				return
			}
			if err := rt.Ping(ctx); err != nil {
				// Heartbeat failed; force close so readLoop reconnects
				rt.mu.Lock()
				conn := rt.conn
				rt.mu.Unlock()
				if conn != nil {
					conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				}
				return
			}
		}
	}
}

func (rt *RealtimeClient) scheduleReconnect(ctx context.Context) {
	delay := rt.recon.nextDelay()
	rt.setState(StateReconnecting)
	rt.emitReconnecting(rt.recon.attempt, delay)

	time.Sleep(delay)

	if err := rt.Connect(ctx); err != nil {
		if rt.config.AutoReconnect && rt.recon.shouldReconnect() {
			rt.scheduleReconnect(ctx)
		} else {
			rt.setState(StateDisconnected)
		}
	}
}

func (rt *RealtimeClient) clearPendingPings() {
	rt.pendingMu.Lock()
	for k, ch := range rt.pendingPings {
		close(ch)
		delete(rt.pendingPings, k)
	}
	rt.pendingMu.Unlock()
}
