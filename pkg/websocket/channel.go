package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"panicdesk/internal/models"
	"panicdesk/pkg/logger"

	"github.com/gorilla/websocket"
)

// ConnectParams identifies the operator session a channel is opened for.
type ConnectParams struct {
	OperatorID string
	Role       string
	DistrictID string
	AuthToken  string
}

func (p ConnectParams) sameSession(other ConnectParams) bool {
	return p.OperatorID == other.OperatorID && p.DistrictID == other.DistrictID
}

// Envelope is the wire frame exchanged with the backend in both directions.
type Envelope struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// EventHandler receives inbound events. Handlers are registered by identity, so
// implementations must be comparable (pointer receivers work).
type EventHandler interface {
	HandleEvent(event string, data json.RawMessage)
}

// ConnectivityListener is told about every connected/disconnected transition.
type ConnectivityListener interface {
	OnConnectivityChanged(connected bool)
}

type ChannelOptions struct {
	URL               string
	ReadBufferSize    int
	WriteBufferSize   int
	HandshakeTimeout  time.Duration
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	MaxMessageSize    int64
	EnableCompression bool
}

// Channel holds at most one live connection to the backend event stream. It
// never reconnects on its own.
type Channel struct {
	opts   ChannelOptions
	dialer *websocket.Dialer
	logger *logger.Logger

	mu         sync.Mutex
	conn       *connection
	params     ConnectParams
	connecting bool
	attempt    uint64

	handlersMu sync.RWMutex
	handlers   map[string][]EventHandler

	listenersMu sync.RWMutex
	listeners   []ConnectivityListener
}

type connection struct {
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newConnection(ws *websocket.Conn) *connection {
	return &connection{
		ws:   ws,
		send: make(chan []byte, 64),
		done: make(chan struct{}),
	}
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = c.ws.Close()
	})
}

func NewChannel(opts ChannelOptions, log *logger.Logger) *Channel {
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = pongWait
	}
	if opts.PingInterval <= 0 || opts.PingInterval >= opts.PongTimeout {
		opts.PingInterval = (opts.PongTimeout * 9) / 10
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = writeWait
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 64 * 1024
	}

	return &Channel{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:             http.ProxyFromEnvironment,
			HandshakeTimeout:  opts.HandshakeTimeout,
			ReadBufferSize:    opts.ReadBufferSize,
			WriteBufferSize:   opts.WriteBufferSize,
			EnableCompression: opts.EnableCompression,
		},
		logger:   log.WithComponent("event_channel"),
		handlers: make(map[string][]EventHandler),
	}
}

// Connect opens the channel for params. It is a no-op while an attempt is in
// flight or when the same operator and district are already connected; any other
// existing connection is torn down first.
func (c *Channel) Connect(ctx context.Context, params ConnectParams) error {
	c.mu.Lock()
	if c.connecting {
		c.mu.Unlock()
		c.logger.WithOperatorID(params.OperatorID).Debug("Connect ignored, attempt in flight")
		return nil
	}
	if c.conn != nil && c.params.sameSession(params) {
		c.mu.Unlock()
		c.logger.WithOperatorID(params.OperatorID).Debug("Connect ignored, already connected")
		return nil
	}
	old := c.conn
	c.conn = nil
	c.connecting = true
	c.params = params
	c.attempt++
	attempt := c.attempt
	c.mu.Unlock()

	if old != nil {
		old.close()
	}

	ws, err := c.dial(ctx, params)

	c.mu.Lock()
	if attempt != c.attempt {
		// Disconnect or a newer Connect won the race.
		c.mu.Unlock()
		if ws != nil {
			_ = ws.Close()
		}
		return fmt.Errorf("%w: connect superseded", models.ErrConnection)
	}
	c.connecting = false
	if err != nil {
		c.mu.Unlock()
		c.logger.LogConnectivity(params.OperatorID, false, err.Error())
		c.notify(false)
		return err
	}
	conn := newConnection(ws)
	c.conn = conn
	c.mu.Unlock()

	c.logger.LogConnectivity(params.OperatorID, true, "connected")
	c.notify(true)

	go c.writePump(conn)
	go c.readPump(conn)
	return nil
}

func (c *Channel) dial(ctx context.Context, params ConnectParams) (*websocket.Conn, error) {
	target, err := url.Parse(c.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid channel url: %v", models.ErrConnection, err)
	}
	query := target.Query()
	query.Set("operator_id", params.OperatorID)
	query.Set("role", params.Role)
	query.Set("district_id", params.DistrictID)
	target.RawQuery = query.Encode()

	header := http.Header{}
	if params.AuthToken != "" {
		header.Set("Authorization", "Bearer "+params.AuthToken)
	}

	if c.opts.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.HandshakeTimeout)
		defer cancel()
	}

	ws, resp, err := c.dialer.DialContext(ctx, target.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: dial %s: %v (status %d)", models.ErrConnection, target.Host, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: dial %s: %v", models.ErrConnection, target.Host, err)
	}
	return ws, nil
}

// Disconnect tears down the connection, cancels any attempt in flight and
// reports disconnected.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	operatorID := c.params.OperatorID
	c.conn = nil
	c.connecting = false
	c.attempt++
	c.mu.Unlock()

	if conn != nil {
		conn.close()
	}
	c.logger.LogConnectivity(operatorID, false, "disconnect requested")
	c.notify(false)
}

// Params returns the session of the live connection or the attempt in flight.
func (c *Channel) Params() ConnectParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Channel) Subscribe(event string, handler EventHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	for _, existing := range c.handlers[event] {
		if existing == handler {
			return
		}
	}
	c.handlers[event] = append(c.handlers[event], handler)
}

func (c *Channel) Unsubscribe(event string, handler EventHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	handlers := c.handlers[event]
	for i, existing := range handlers {
		if existing == handler {
			c.handlers[event] = append(handlers[:i:i], handlers[i+1:]...)
			break
		}
	}
	if len(c.handlers[event]) == 0 {
		delete(c.handlers, event)
	}
}

func (c *Channel) AddConnectivityListener(listener ConnectivityListener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	for _, existing := range c.listeners {
		if existing == listener {
			return
		}
	}
	c.listeners = append(c.listeners, listener)
}

func (c *Channel) RemoveConnectivityListener(listener ConnectivityListener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	for i, existing := range c.listeners {
		if existing == listener {
			c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
			return
		}
	}
}

// Emit queues an outbound event on the live connection.
func (c *Channel) Emit(event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	frame, err := json.Marshal(Envelope{
		Event:     event,
		Data:      payload,
		Timestamp: getCurrentTimestamp(),
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("%w: not connected", models.ErrConnection)
	}

	select {
	case <-conn.done:
		return fmt.Errorf("%w: connection closed", models.ErrConnection)
	case conn.send <- frame:
		return nil
	default:
		return errors.New("channel send buffer full")
	}
}

func (c *Channel) notify(connected bool) {
	c.listenersMu.RLock()
	listeners := append([]ConnectivityListener(nil), c.listeners...)
	c.listenersMu.RUnlock()

	for _, listener := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.WithField("panic", r).Error("Connectivity listener panicked")
				}
			}()
			listener.OnConnectivityChanged(connected)
		}()
	}
}

// handleDrop runs when a pump exits. Only the current connection reports false.
func (c *Channel) handleDrop(conn *connection, reason string) {
	conn.close()

	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
	}
	operatorID := c.params.OperatorID
	c.mu.Unlock()

	if current {
		c.logger.LogConnectivity(operatorID, false, reason)
		c.notify(false)
	}
}

func (c *Channel) readPump(conn *connection) {
	reason := "connection closed"
	defer func() { c.handleDrop(conn, reason) }()

	conn.ws.SetReadLimit(c.opts.MaxMessageSize)
	_ = conn.ws.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	})
	conn.ws.SetPingHandler(func(appData string) error {
		_ = conn.ws.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
		return conn.ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.opts.WriteTimeout))
	})

	for {
		_, message, err := conn.ws.ReadMessage()
		if err != nil {
			select {
			case <-conn.done:
				return
			default:
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.WithError(err).Warn("Event channel read failed")
			}
			reason = err.Error()
			return
		}
		c.dispatch(message)
	}
}

func (c *Channel) writePump(conn *connection) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.handleDrop(conn, "write failed")
	}()

	for {
		select {
		case <-conn.done:
			return

		case message := <-conn.send:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := conn.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.WithError(err).Warn("Event channel write failed")
				return
			}

		case <-ticker.C:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Channel) dispatch(message []byte) {
	var envelope Envelope
	if err := json.Unmarshal(message, &envelope); err != nil || envelope.Event == "" {
		c.logger.WithField("size", len(message)).Warn("Dropping unreadable channel frame")
		return
	}

	c.handlersMu.RLock()
	handlers := append([]EventHandler(nil), c.handlers[envelope.Event]...)
	c.handlersMu.RUnlock()

	if len(handlers) == 0 {
		c.logger.WithField("event", envelope.Event).Debug("No handler for channel event")
		return
	}
	for _, handler := range handlers {
		c.safeHandle(handler, envelope)
	}
}

func (c *Channel) safeHandle(handler EventHandler, envelope Envelope) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithFields(map[string]interface{}{
				"event": envelope.Event,
				"panic": r,
			}).Error("Channel event handler panicked")
		}
	}()
	handler.HandleEvent(envelope.Event, envelope.Data)
}
