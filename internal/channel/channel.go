// Package channel maintains the persistent push connection to the task
// service. Peers exchange task change events over it; the service fans
// them out to every other connected client.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/nhle/taskboard/internal/logging"
	"github.com/nhle/taskboard/internal/metrics"
	"github.com/nhle/taskboard/internal/model"
)

const (
	defaultReconnectDelay = time.Second
	writeWait             = 5 * time.Second
)

// State is the connection state of a Channel.
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Handler receives the raw data of an inbound event.
type Handler func(data json.RawMessage)

// Options configures a Channel.
type Options struct {
	// URL is the websocket endpoint (see URLFromBase).
	URL string

	// ReconnectAttempts bounds consecutive failed dials before giving up.
	ReconnectAttempts int

	// ReconnectDelay is the first backoff; it doubles up to ReconnectDelayMax.
	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration

	// Dialer overrides websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// Header is evaluated on every dial, so a refreshed credential is used.
	Header func() http.Header
}

// Channel is a self-reconnecting push connection. A Channel is owned by one
// session; it is safe for concurrent use.
type Channel struct {
	opts Options
	log  zerolog.Logger

	mu       sync.Mutex
	state    State
	userID   string
	conn     *websocket.Conn
	cancel   context.CancelFunc
	done     chan struct{}
	handlers map[string]map[uint64]Handler
	watchers map[uint64]func(State)
	nextID   uint64

	// writeMu serializes writers; gorilla allows one concurrent writer.
	writeMu sync.Mutex
}

// New creates a closed Channel.
func New(opts Options) *Channel {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.ReconnectDelayMax < opts.ReconnectDelay {
		opts.ReconnectDelayMax = opts.ReconnectDelay
	}
	if opts.ReconnectAttempts < 0 {
		opts.ReconnectAttempts = 0
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Channel{
		opts:     opts,
		log:      logging.WithComponent("channel"),
		handlers: make(map[string]map[uint64]Handler),
		watchers: make(map[uint64]func(State)),
	}
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// UserID returns the identity announced on connect.
func (c *Channel) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Open starts connecting and announces userID on every successful connect.
// Calling Open while connecting or open does not dial again; it records the
// new identity and re-announces it on the live connection. The supervisor
// stops when ctx is cancelled, on Close, or when reconnects are exhausted.
func (c *Channel) Open(ctx context.Context, userID string) {
	c.mu.Lock()
	c.userID = userID
	if c.state != StateClosed {
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			c.announce(conn, userID)
		}
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.state = StateConnecting
	c.mu.Unlock()

	c.notify(StateConnecting)
	go c.run(runCtx, done)
}

// Close tears down the connection and stops reconnecting. It blocks until
// the supervisor has exited. Handlers stay registered.
func (c *Channel) Close() {
	// Cancel under the lock so attach cannot publish a conn we never see.
	c.mu.Lock()
	if c.cancel == nil {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.cancel = nil
	done, conn := c.done, c.conn
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		conn.Close()
	}
	<-done
}

// On registers h for inbound frames named event. Handlers run on the read
// goroutine in frame order and survive reconnects.
func (c *Channel) On(event string, h Handler) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[uint64]Handler)
	}
	c.handlers[event][id] = h
	return &Subscription{remove: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[event], id)
	}}
}

// OnState registers fn for every state transition.
func (c *Channel) OnState(fn func(State)) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.watchers[id] = fn
	return &Subscription{remove: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.watchers, id)
	}}
}

// EmitTaskUpdated broadcasts a task change to peers.
func (c *Channel) EmitTaskUpdated(t model.Task) {
	raw, err := t.FullJSON()
	if err != nil {
		c.log.Warn().Err(err).Str("task_id", t.ID).Msg("encoding task-updated")
		return
	}
	c.Emit(EventTaskUpdated, json.RawMessage(raw))
}

// EmitTaskCreated broadcasts a new task to peers.
func (c *Channel) EmitTaskCreated(t model.Task) {
	c.Emit(EventTaskCreated, t)
}

// EmitTaskDeleted broadcasts a deletion to peers.
func (c *Channel) EmitTaskDeleted(taskID string) {
	c.Emit(EventTaskDeleted, taskID)
}

// EmitTaskAssigned asks the service to notify the assignee.
func (c *Channel) EmitTaskAssigned(a Assignment) {
	c.Emit(EventTaskAssigned, a)
}

// Emit sends one event. It never blocks on reconnection: when the channel is
// not open the event is dropped.
func (c *Channel) Emit(event string, payload any) {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()

	if state != StateOpen || conn == nil {
		metrics.ChannelEventsSent.WithLabelValues(event, "dropped").Inc()
		c.log.Debug().Str("event", event).Str("state", state.String()).Msg("dropping event, channel not open")
		return
	}
	if err := c.write(conn, event, payload); err != nil {
		metrics.ChannelEventsSent.WithLabelValues(event, "error").Inc()
		c.log.Warn().Err(err).Str("event", event).Msg("sending event")
		return
	}
	metrics.ChannelEventsSent.WithLabelValues(event, "ok").Inc()
}

func (c *Channel) write(conn *websocket.Conn, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", event, err)
	}
	frame, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("marshaling %s frame: %w", event, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Channel) announce(conn *websocket.Conn, userID string) {
	if userID == "" {
		return
	}
	if err := c.write(conn, EventUserJoin, userID); err != nil {
		metrics.ChannelEventsSent.WithLabelValues(EventUserJoin, "error").Inc()
		c.log.Warn().Err(err).Msg("announcing user")
		return
	}
	metrics.ChannelEventsSent.WithLabelValues(EventUserJoin, "ok").Inc()
}

// run dials, reads until the connection drops, and redials with backoff.
func (c *Channel) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	failures := 0
	delay := c.opts.ReconnectDelay
	for {
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.finish()
				return
			}
			failures++
			if failures > c.opts.ReconnectAttempts {
				c.log.Error().Err(err).Int("attempts", failures).Msg("giving up on push channel")
				c.finish()
				return
			}
			c.log.Warn().Err(err).Dur("retry_in", delay).Msg("push channel dial failed")
			select {
			case <-ctx.Done():
				c.finish()
				return
			case <-time.After(delay):
			}
			metrics.ChannelReconnects.Inc()
			delay = min(delay*2, c.opts.ReconnectDelayMax)
			continue
		}

		failures = 0
		delay = c.opts.ReconnectDelay
		if !c.attach(ctx, conn) {
			conn.Close()
			c.finish()
			return
		}
		c.readLoop(conn)
		c.detach(ctx, conn)
		if ctx.Err() != nil {
			c.finish()
			return
		}
	}
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	var header http.Header
	if c.opts.Header != nil {
		header = c.opts.Header()
	}
	conn, resp, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing %s: %s: %w", c.opts.URL, resp.Status, err)
		}
		return nil, fmt.Errorf("dialing %s: %w", c.opts.URL, err)
	}
	return conn, nil
}

// attach publishes conn as the live connection and announces the user.
// It reports false if the channel was closed while the dial was in flight.
func (c *Channel) attach(ctx context.Context, conn *websocket.Conn) bool {
	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		return false
	}
	c.conn = conn
	userID := c.userID
	c.mu.Unlock()

	c.announce(conn, userID)
	metrics.ChannelConnected.Set(1)
	c.log.Info().Str("url", c.opts.URL).Msg("push channel connected")
	c.setState(StateOpen)
	c.dispatch(EventConnect, nil)
	return true
}

func (c *Channel) detach(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()

	metrics.ChannelConnected.Set(0)
	c.log.Info().Msg("push channel disconnected")
	c.dispatch(EventDisconnect, nil)
	if ctx.Err() == nil {
		c.setState(StateConnecting)
	}
}

// finish moves the channel to Closed once the supervisor exits.
func (c *Channel) finish() {
	c.mu.Lock()
	c.conn = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	// Closed must be published with cancel cleared, or a concurrent Open
	// sees a live state and skips dialing.
	changed := c.state != StateClosed
	c.state = StateClosed
	c.mu.Unlock()
	metrics.ChannelConnected.Set(0)
	if changed {
		c.notify(StateClosed)
	}
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug().Err(err).Msg("read loop ended")
			}
			return
		}
		var frame Frame
		if err := json.Unmarshal(msg, &frame); err != nil {
			c.log.Warn().Err(err).Msg("discarding malformed frame")
			continue
		}
		metrics.ChannelEventsReceived.WithLabelValues(frame.Event).Inc()
		c.dispatch(frame.Event, frame.Data)
	}
}

func (c *Channel) dispatch(event string, data json.RawMessage) {
	c.mu.Lock()
	registered := c.handlers[event]
	handlers := make([]Handler, 0, len(registered))
	for _, id := range slices.Sorted(maps.Keys(registered)) {
		handlers = append(handlers, registered[id])
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(data)
	}
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()
	c.notify(s)
}

func (c *Channel) notify(s State) {
	c.mu.Lock()
	watchers := make([]func(State), 0, len(c.watchers))
	for _, id := range slices.Sorted(maps.Keys(c.watchers)) {
		watchers = append(watchers, c.watchers[id])
	}
	c.mu.Unlock()

	for _, fn := range watchers {
		fn(s)
	}
}

// Subscription is a registered handler. Close unregisters it; further calls
// are no-ops.
type Subscription struct {
	once   sync.Once
	remove func()
}

// Close unregisters the handler.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(s.remove)
}
