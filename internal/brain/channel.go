package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/cortexvoice/internal/bus"
)

// DefaultReconnectDelay is the fixed wait between reconnect attempts.
const DefaultReconnectDelay = 2 * time.Second

// Channel is the reconnecting streaming link to the generation backend. It
// multiplexes requests by id and delivers partial/final/error/cancelled
// events. Several ids may be tracked at once (a superseded request's trailing
// frames can arrive after a new request started); only the active id's events
// reach the answer callbacks.
type Channel struct {
	baseURL        string
	reconnectDelay time.Duration
	eventBus       *bus.EventBus
	logger         zerolog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	cancel    context.CancelFunc

	activeID string
	partials map[string]string

	onPartial func(id, text string)
	onAnswer  func(id, text string)
	onError   func(id, message string)
}

// NewChannel creates a generation channel for the given backend base URL.
func NewChannel(baseURL string, reconnectDelay time.Duration, eventBus *bus.EventBus, logger zerolog.Logger) *Channel {
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	return &Channel{
		baseURL:        baseURL,
		reconnectDelay: reconnectDelay,
		eventBus:       eventBus,
		logger:         logger.With().Str("component", "brain").Logger(),
		partials:       make(map[string]string),
	}
}

// OnPartial registers the callback receiving the running total for the
// active request after each partial.
func (c *Channel) OnPartial(fn func(id, text string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPartial = fn
}

// OnAnswer registers the callback receiving the full answer for the active
// request.
func (c *Channel) OnAnswer(fn func(id, text string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAnswer = fn
}

// OnError registers the callback receiving terminal backend errors for the
// active request.
func (c *Channel) OnError(fn func(id, message string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// Connect starts the connection loop. Reconnection after any close uses a
// fixed delay with unbounded retries. Idempotent.
func (c *Channel) Connect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.connectLoop(ctx)
}

// Close tears down the connection and stops reconnection. Idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
}

// Connected reports whether the link is up.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// ActiveID returns the id whose events currently drive the callbacks.
func (c *Channel) ActiveID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}

// Accumulated returns the text accumulated so far for id.
func (c *Channel) Accumulated(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	text, ok := c.partials[id]
	return text, ok
}

// SendQuery transmits a new generation request. The id becomes the active
// request with a fresh accumulator entry only once the frame is handed to
// the transport; a failed send leaves no tracking behind, since the caller
// answers the request elsewhere and the channel would never see a terminal
// event for it. The caller must have minted a unique id beforehand.
func (c *Channel) SendQuery(id, question string) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	if !connected || conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.activeID = id
	c.partials[id] = ""
	c.mu.Unlock()

	msg := QueryMessage{Type: TypeQuery, ID: id, Question: question}
	if err := c.write(conn, msg); err != nil {
		c.mu.Lock()
		delete(c.partials, id)
		if c.activeID == id {
			c.activeID = ""
		}
		c.mu.Unlock()
		return fmt.Errorf("send query: %w", err)
	}

	c.logger.Debug().Str("id", id).Msg("Query sent")
	if c.eventBus != nil {
		c.eventBus.Publish(bus.Event{
			Type: bus.EventTypeGenerationStarted,
			Data: map[string]any{"id": id},
		})
	}
	return nil
}

// SendCancel transmits a cancel for id, fire-and-forget, and discards its
// accumulator entry. The backend acknowledges asynchronously; the client
// does not block on it.
func (c *Channel) SendCancel(id string) error {
	c.mu.Lock()
	delete(c.partials, id)
	if c.activeID == id {
		c.activeID = ""
	}
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()

	if c.eventBus != nil {
		c.eventBus.Publish(bus.Event{
			Type: bus.EventTypeGenerationCancelled,
			Data: map[string]any{"id": id},
		})
	}

	if !connected || conn == nil {
		return ErrNotConnected
	}

	msg := CancelMessage{Type: TypeCancel, ID: id}
	if err := c.write(conn, msg); err != nil {
		return fmt.Errorf("send cancel: %w", err)
	}

	c.logger.Debug().Str("id", id).Msg("Cancel sent")
	return nil
}

// write serializes a frame; a write failure force-closes the connection and
// lets the connect loop recover.
func (c *Channel) write(conn *websocket.Conn, v any) error {
	if err := conn.WriteJSON(v); err != nil {
		c.forceClose(conn)
		return err
	}
	return nil
}

func (c *Channel) forceClose(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn && c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.connected = false
	}
}

// connectLoop maintains the WebSocket connection with a fixed retry delay.
func (c *Channel) connectLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.runConnection(ctx); err != nil {
			c.logger.Warn().Err(err).Dur("retry_in", c.reconnectDelay).Msg("Generation channel disconnected")
		}

		if c.eventBus != nil {
			c.eventBus.Publish(bus.Event{Type: bus.EventTypeReconnecting})
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectDelay):
		}
	}
}

// runConnection dials once and reads frames until the connection drops.
func (c *Channel) runConnection(ctx context.Context) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}

	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}

	c.logger.Info().Str("url", u.String()).Msg("Connecting to generation backend")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.logger.Info().Msg("Connected to generation backend")
	if c.eventBus != nil {
		c.eventBus.Publish(bus.Event{Type: bus.EventTypeConnected})
	}

	defer func() {
		c.forceClose(conn)
		c.failPending("connection lost")
		if c.eventBus != nil {
			c.eventBus.Publish(bus.Event{Type: bus.EventTypeDisconnected})
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		c.dispatch(raw)
	}
}

// failPending discards all tracked requests after a connection loss and
// surfaces a terminal error for the active one. Requests do not survive a
// reconnect; whoever asked must re-issue.
func (c *Channel) failPending(reason string) {
	c.mu.Lock()
	active := c.activeID
	c.activeID = ""
	dropped := len(c.partials)
	c.partials = make(map[string]string)
	cb := c.onError
	c.mu.Unlock()

	if dropped > 0 {
		c.logger.Debug().Int("dropped", dropped).Msg("Discarded in-flight requests on disconnect")
	}
	if active == "" {
		return
	}

	if c.eventBus != nil {
		c.eventBus.Publish(bus.Event{
			Type: bus.EventTypeGenerationError,
			Data: map[string]any{"id": active, "error": reason},
		})
	}
	if cb != nil {
		cb(active, reason)
	}
}

// dispatch routes one inbound frame by type, keyed by id. Malformed frames
// are logged and dropped; they never bring the channel down. Frames for ids
// other than the active one update their accumulator entries only and never
// reach the answer callbacks.
func (c *Channel) dispatch(raw []byte) {
	var msg ServerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.Warn().Err(err).Str("frame", string(raw)).Msg("Dropping malformed frame")
		return
	}

	switch msg.Type {
	case TypePartial:
		c.handlePartial(msg)

	case TypeFinal:
		c.handleFinal(msg)

	case TypeError:
		c.handleError(msg)

	case TypeCancelled:
		// Already handled by the cancel initiator; bookkeeping only.
		c.mu.Lock()
		delete(c.partials, msg.ID)
		c.mu.Unlock()
		c.logger.Debug().Str("id", msg.ID).Msg("Cancellation acknowledged")

	default:
		c.logger.Debug().Str("type", msg.Type).Msg("Unknown frame type")
	}
}

func (c *Channel) handlePartial(msg ServerMessage) {
	c.mu.Lock()
	if _, tracked := c.partials[msg.ID]; !tracked {
		c.mu.Unlock()
		c.logger.Debug().Str("id", msg.ID).Msg("Partial for untracked id, dropped")
		return
	}
	c.partials[msg.ID] += msg.Text
	total := c.partials[msg.ID]
	isActive := msg.ID == c.activeID
	cb := c.onPartial
	c.mu.Unlock()

	if c.eventBus != nil {
		c.eventBus.Publish(bus.Event{
			Type: bus.EventTypeGenerationPartial,
			Data: map[string]any{"id": msg.ID, "text": total},
		})
	}

	if isActive && cb != nil {
		cb(msg.ID, total)
	}
}

func (c *Channel) handleFinal(msg ServerMessage) {
	c.mu.Lock()
	text := msg.Text
	if text == "" {
		text = c.partials[msg.ID]
	}
	delete(c.partials, msg.ID)
	isActive := msg.ID == c.activeID
	if isActive {
		c.activeID = ""
	}
	cb := c.onAnswer
	c.mu.Unlock()

	if !isActive {
		c.logger.Debug().Str("id", msg.ID).Msg("Final for superseded id, dropped")
		return
	}

	c.logger.Debug().Str("id", msg.ID).Int("len", len(text)).Msg("Final answer")
	if c.eventBus != nil {
		c.eventBus.Publish(bus.Event{
			Type: bus.EventTypeGenerationFinal,
			Data: map[string]any{"id": msg.ID, "text": text},
		})
	}

	if cb != nil {
		cb(msg.ID, text)
	}
}

func (c *Channel) handleError(msg ServerMessage) {
	c.mu.Lock()
	delete(c.partials, msg.ID)
	isActive := msg.ID == c.activeID
	if isActive {
		c.activeID = ""
	}
	cb := c.onError
	c.mu.Unlock()

	if !isActive {
		c.logger.Debug().Str("id", msg.ID).Str("error", msg.Error).Msg("Error for superseded id, dropped")
		return
	}

	c.logger.Warn().Str("id", msg.ID).Str("error", msg.Error).Msg("Generation failed")
	if c.eventBus != nil {
		c.eventBus.Publish(bus.Event{
			Type: bus.EventTypeGenerationError,
			Data: map[string]any{"id": msg.ID, "error": msg.Error},
		})
	}

	if cb != nil {
		cb(msg.ID, msg.Error)
	}
}
