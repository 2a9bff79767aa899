package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/geoduel/geoduel/go/internal/game/events"
)

// NATSConfig holds configuration for the NATS transport
type NATSConfig struct {
	URL              string
	StreamName       string
	ConsumerName     string
	SubjectFilter    string        // e.g. "game.events.player-123.>"
	RPCSubjectPrefix string        // e.g. "game.rpc."
	RequestTimeout   time.Duration // per outbound call
	MaxDeliver       int           // Max delivery attempts
	AckWait          time.Duration // How long to wait for ack
	MaxAckPending    int           // Max messages pending ack
	MaxReconnects    int
	ReconnectWait    time.Duration
}

// DefaultNATSConfig returns the default NATS transport configuration for a
// player. Delivery is at-least-once: the engine's dedup ledger absorbs the
// replays a durable consumer produces after reconnect.
func DefaultNATSConfig(playerID string) NATSConfig {
	return NATSConfig{
		URL:              nats.DefaultURL,
		StreamName:       "GAME_EVENTS",
		ConsumerName:     "geoduel-agent-" + playerID,
		SubjectFilter:    "game.events." + playerID + ".>",
		RPCSubjectPrefix: "game.rpc.",
		RequestTimeout:   15 * time.Second,
		MaxDeliver:       5,
		AckWait:          30 * time.Second,
		MaxAckPending:    100,
		MaxReconnects:    -1, // Infinite
		ReconnectWait:    2 * time.Second,
	}
}

// rpcRequest is the wire shape of an outbound call over request/reply
type rpcRequest struct {
	Method string      `json:"method"`
	Args   interface{} `json:"args"`
}

// rpcReply is the wire shape of an RPC response
type rpcReply struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// NATSClient is the Transport implementation over NATS: JetStream for the
// pushed event stream, core request/reply for the five outbound calls.
type NATSClient struct {
	config NATSConfig
	bus    *Bus

	mu         sync.Mutex
	nc         *nats.Conn
	js         jetstream.JetStream
	consumer   jetstream.Consumer
	consumeCtx jetstream.ConsumeContext
	connected  bool
}

// NewNATSClient creates a NATS transport publishing inbound events on bus
func NewNATSClient(config NATSConfig, bus *Bus) *NATSClient {
	return &NATSClient{
		config: config,
		bus:    bus,
	}
}

// Events returns the bus inbound events are published on
func (c *NATSClient) Events() *Bus {
	return c.bus
}

// Connect establishes the NATS connection and starts the durable consumer.
// It is a no-op when already connected.
func (c *NATSClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	opts := []nats.Option{
		nats.MaxReconnects(c.config.MaxReconnects),
		nats.ReconnectWait(c.config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(c.config.URL, opts...)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("create JetStream context: %w", err)
	}

	consumer, err := c.ensureConsumer(ctx, js)
	if err != nil {
		nc.Close()
		return fmt.Errorf("ensure consumer: %w", err)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := c.processMessage(msg); err != nil {
			log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to process message")
			if nakErr := msg.Nak(); nakErr != nil {
				log.Error().Err(nakErr).Msg("failed to NAK message")
			}
			return
		}
		if ackErr := msg.Ack(); ackErr != nil {
			log.Error().Err(ackErr).Msg("failed to ACK message")
		}
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("start consumer: %w", err)
	}

	c.nc = nc
	c.js = js
	c.consumer = consumer
	c.consumeCtx = consumeCtx
	c.connected = true

	log.Info().
		Str("url", c.config.URL).
		Str("consumer", c.config.ConsumerName).
		Str("stream", c.config.StreamName).
		Msg("connected to NATS game transport")
	return nil
}

// ensureConsumer creates or gets the durable JetStream consumer
func (c *NATSClient) ensureConsumer(ctx context.Context, js jetstream.JetStream) (jetstream.Consumer, error) {
	stream, err := js.Stream(ctx, c.config.StreamName)
	if err != nil {
		return nil, fmt.Errorf("get stream: %w", err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		Name:          c.config.ConsumerName,
		Durable:       c.config.ConsumerName,
		Description:   "GeoDuel agent event consumer",
		FilterSubject: c.config.SubjectFilter,
		DeliverPolicy: jetstream.DeliverAllPolicy, // Replay missed events after reconnect
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    c.config.MaxDeliver,
		AckWait:       c.config.AckWait,
		MaxAckPending: c.config.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}

	consumer, err := stream.Consumer(ctx, c.config.ConsumerName)
	if err != nil {
		consumer, err = stream.CreateConsumer(ctx, consumerConfig)
		if err != nil {
			return nil, fmt.Errorf("create consumer: %w", err)
		}
		log.Info().
			Str("consumer", c.config.ConsumerName).
			Str("stream", c.config.StreamName).
			Msg("created JetStream consumer")
	} else {
		log.Info().
			Str("consumer", c.config.ConsumerName).
			Str("stream", c.config.StreamName).
			Msg("using existing JetStream consumer")
	}

	return consumer, nil
}

// processMessage decodes one JetStream message and publishes it on the bus
func (c *NATSClient) processMessage(msg jetstream.Msg) error {
	var event events.GameEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		return fmt.Errorf("unmarshal event envelope: %w", err)
	}

	log.Debug().
		Str("event_id", event.ID).
		Str("match_id", event.MatchID).
		Str("event_type", string(event.Type)).
		Str("subject", msg.Subject()).
		Msg("processing game event")

	c.bus.Publish(&event)
	return nil
}

// Disconnect stops the consumer and closes the connection. Always succeeds
// locally.
func (c *NATSClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}
	if c.consumeCtx != nil {
		c.consumeCtx.Stop()
	}
	if c.nc != nil {
		c.nc.Close()
	}
	c.nc = nil
	c.js = nil
	c.consumer = nil
	c.consumeCtx = nil
	c.connected = false

	log.Info().Msg("disconnected from NATS game transport")
	return nil
}

// IsConnected reports whether the channel is up
func (c *NATSClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && c.nc != nil && c.nc.IsConnected()
}

// JoinMatchmaking asks the server to queue the player and returns its ack message
func (c *NATSClient) JoinMatchmaking(ctx context.Context, playerID string) (string, error) {
	result, err := c.request(ctx, "joinMatchmaking", map[string]string{"playerId": playerID})
	if err != nil {
		return "", err
	}
	var message string
	if len(result) > 0 {
		if err := json.Unmarshal(result, &message); err != nil {
			return "", fmt.Errorf("decode joinMatchmaking reply: %w", err)
		}
	}
	return message, nil
}

// LeaveMatchmaking removes the player from the queue
func (c *NATSClient) LeaveMatchmaking(ctx context.Context, playerID string) error {
	_, err := c.request(ctx, "leaveMatchmaking", map[string]string{"playerId": playerID})
	return err
}

// StartRound requests the next round of a match
func (c *NATSClient) StartRound(ctx context.Context, matchID string) error {
	_, err := c.request(ctx, "startRound", map[string]string{"matchId": matchID})
	return err
}

// SubmitGuess sends the local player's guess for the active round
func (c *NATSClient) SubmitGuess(ctx context.Context, matchID, playerID string, x, y float64) error {
	_, err := c.request(ctx, "submitGuess", map[string]interface{}{
		"matchId":  matchID,
		"playerId": playerID,
		"x":        x,
		"y":        y,
	})
	return err
}

// GetMatchStatus requests a reconciliation pull; the answer arrives as a
// MatchStatus push event on the stream.
func (c *NATSClient) GetMatchStatus(ctx context.Context, matchID string) error {
	_, err := c.request(ctx, "getMatchStatus", map[string]string{"matchId": matchID})
	return err
}

// request performs one request/reply RPC against the game server
func (c *NATSClient) request(ctx context.Context, method string, args interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	nc := c.nc
	connected := c.connected
	c.mu.Unlock()
	if !connected || nc == nil {
		return nil, ErrNotConnected
	}

	data, err := json.Marshal(rpcRequest{Method: method, Args: args})
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", method, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	msg, err := nc.RequestWithContext(reqCtx, c.config.RPCSubjectPrefix+method, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	var reply rpcReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("decode %s reply: %w", method, err)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("remote: %s", reply.Error)
	}
	return reply.Result, nil
}
