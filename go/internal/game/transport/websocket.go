package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/geoduel/geoduel/go/internal/game/events"
)

// WebSocketConfig holds configuration for the WebSocket transport
type WebSocketConfig struct {
	URL             string // e.g. "wss://play.geoduel.io/gamehub"
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	InvokeTimeout   time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
}

// DefaultWebSocketConfig returns default WebSocket transport configuration
func DefaultWebSocketConfig(url string) WebSocketConfig {
	return WebSocketConfig{
		URL:             url,
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		InvokeTimeout:   15 * time.Second,
		MaxMessageSize:  64 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

// invokeFrame is an outbound remote call
type invokeFrame struct {
	InvokeID string      `json:"invoke_id"`
	Method   string      `json:"method"`
	Args     interface{} `json:"args"`
}

// serverFrame is any inbound message: an invoke reply when InvokeID is set,
// otherwise a pushed game event.
type serverFrame struct {
	InvokeID string          `json:"invoke_id,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`

	ID        string           `json:"id,omitempty"`
	MatchID   string           `json:"match_id,omitempty"`
	Type      events.EventType `json:"type,omitempty"`
	Timestamp time.Time        `json:"timestamp,omitempty"`
	Data      json.RawMessage  `json:"data,omitempty"`
}

type invokeReply struct {
	result json.RawMessage
	err    error
}

// WebSocketClient is the Transport implementation over a single WebSocket
// connection to the game hub.
type WebSocketClient struct {
	config WebSocketConfig
	bus    *Bus

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	send      chan []byte
	done      chan struct{}

	pendingMu sync.Mutex
	pending   map[string]chan invokeReply
}

// NewWebSocketClient creates a WebSocket transport. The bus carries every
// pushed event; subscribe before calling Connect.
func NewWebSocketClient(config WebSocketConfig, bus *Bus) *WebSocketClient {
	return &WebSocketClient{
		config:  config,
		bus:     bus,
		pending: make(map[string]chan invokeReply),
	}
}

// Events returns the bus inbound events are published on
func (c *WebSocketClient) Events() *Bus {
	return c.bus
}

// Connect dials the game hub. It is a no-op when already connected.
func (c *WebSocketClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	dialer := websocket.Dialer{
		ReadBufferSize:  c.config.ReadBufferSize,
		WriteBufferSize: c.config.WriteBufferSize,
	}
	conn, _, err := dialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		return fmt.Errorf("dial game hub: %w", err)
	}

	c.conn = conn
	c.connected = true
	c.send = make(chan []byte, 256)
	c.done = make(chan struct{})

	go c.writePump()
	go c.readPump()

	log.Info().Str("url", c.config.URL).Msg("connected to game hub")
	return nil
}

// Disconnect closes the connection. It always succeeds locally; a failed
// close handshake only gets logged.
func (c *WebSocketClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	done := c.done
	c.connected = false
	c.conn = nil
	c.mu.Unlock()

	deadline := time.Now().Add(c.config.WriteTimeout)
	if err := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline); err != nil {
		log.Warn().Err(err).Msg("close handshake failed")
	}
	conn.Close()
	close(done)
	c.failPending(ErrNotConnected)

	log.Info().Msg("disconnected from game hub")
	return nil
}

// IsConnected reports whether the channel is up
func (c *WebSocketClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// JoinMatchmaking asks the server to queue the player and returns its ack message
func (c *WebSocketClient) JoinMatchmaking(ctx context.Context, playerID string) (string, error) {
	result, err := c.invoke(ctx, "JoinMatchmaking", map[string]string{"playerId": playerID})
	if err != nil {
		return "", err
	}
	var message string
	if len(result) > 0 {
		if err := json.Unmarshal(result, &message); err != nil {
			return "", fmt.Errorf("decode JoinMatchmaking reply: %w", err)
		}
	}
	return message, nil
}

// LeaveMatchmaking removes the player from the queue
func (c *WebSocketClient) LeaveMatchmaking(ctx context.Context, playerID string) error {
	_, err := c.invoke(ctx, "LeaveMatchmaking", map[string]string{"playerId": playerID})
	return err
}

// StartRound requests the next round of a match
func (c *WebSocketClient) StartRound(ctx context.Context, matchID string) error {
	_, err := c.invoke(ctx, "StartRound", map[string]string{"matchId": matchID})
	return err
}

// SubmitGuess sends the local player's guess for the active round
func (c *WebSocketClient) SubmitGuess(ctx context.Context, matchID, playerID string, x, y float64) error {
	_, err := c.invoke(ctx, "SubmitGuess", map[string]interface{}{
		"matchId":  matchID,
		"playerId": playerID,
		"x":        x,
		"y":        y,
	})
	return err
}

// GetMatchStatus requests a reconciliation pull; the answer arrives as a
// MatchStatus push event.
func (c *WebSocketClient) GetMatchStatus(ctx context.Context, matchID string) error {
	_, err := c.invoke(ctx, "GetMatchStatus", map[string]string{"matchId": matchID})
	return err
}

// invoke sends a correlated remote call and waits for its reply
func (c *WebSocketClient) invoke(ctx context.Context, method string, args interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	send := c.send
	c.mu.Unlock()

	frame := invokeFrame{
		InvokeID: uuid.New().String(),
		Method:   method,
		Args:     args,
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("marshal %s invoke: %w", method, err)
	}

	replyCh := make(chan invokeReply, 1)
	c.pendingMu.Lock()
	c.pending[frame.InvokeID] = replyCh
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, frame.InvokeID)
		c.pendingMu.Unlock()
	}()

	select {
	case send <- data:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	timer := time.NewTimer(c.config.InvokeTimeout)
	defer timer.Stop()

	select {
	case reply := <-replyCh:
		return reply.result, reply.err
	case <-timer.C:
		return nil, fmt.Errorf("%s: invoke timed out after %s", method, c.config.InvokeTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// failPending resolves every in-flight invoke with err
func (c *WebSocketClient) failPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		ch <- invokeReply{err: err}
		delete(c.pending, id)
	}
}

// writePump handles sending messages and keepalive pings
func (c *WebSocketClient) writePump() {
	c.mu.Lock()
	conn := c.conn
	send := c.send
	done := c.done
	c.mu.Unlock()
	if conn == nil {
		return
	}

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case message := <-send:
			conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Msg("failed to write message to game hub")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump reads frames until the connection drops, routing invoke replies
// to their waiters and publishing pushed events on the bus
func (c *WebSocketClient) readPump() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	defer func() {
		c.mu.Lock()
		wasConnected := c.connected
		c.connected = false
		c.mu.Unlock()
		if wasConnected {
			conn.Close()
		}
		c.failPending(ErrNotConnected)
	}()

	conn.SetReadLimit(c.config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Msg("unexpected game hub close")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		c.handleFrame(message)
	}
}

// handleFrame decodes one inbound frame and dispatches it
func (c *WebSocketClient) handleFrame(message []byte) {
	var frame serverFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		log.Error().Err(err).Msg("failed to decode frame from game hub")
		return
	}

	if frame.InvokeID != "" {
		c.pendingMu.Lock()
		replyCh, ok := c.pending[frame.InvokeID]
		delete(c.pending, frame.InvokeID)
		c.pendingMu.Unlock()
		if !ok {
			log.Warn().Str("invoke_id", frame.InvokeID).Msg("reply for unknown invoke")
			return
		}
		if frame.Error != "" {
			replyCh <- invokeReply{err: fmt.Errorf("remote: %s", frame.Error)}
		} else {
			replyCh <- invokeReply{result: frame.Result}
		}
		return
	}

	if frame.Type == "" {
		log.Warn().Msg("frame with neither invoke_id nor event type")
		return
	}

	c.bus.Publish(&events.GameEvent{
		ID:        frame.ID,
		MatchID:   frame.MatchID,
		Type:      frame.Type,
		Timestamp: frame.Timestamp,
		Data:      frame.Data,
	})
}
