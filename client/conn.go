package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"intake-relay/adapters"
	"intake-relay/models"
)

const (
	DefaultRetryDelay = time.Second
	writeWait         = 10 * time.Second
)

var (
	ErrClosed       = errors.New("connection closed")
	ErrNotConnected = errors.New("not connected")
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: "15:04:05",
})

type Option func(*Conn)

// WithRetryDelay sets the pause between reconnect attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Conn) { c.retryDelay = d }
}

func WithHeader(h http.Header) Option {
	return func(c *Conn) { c.header = h }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Conn) { c.log = l }
}

type handler struct {
	id uint64
	fn func(json.RawMessage)
}

// Conn is a client's single connection to the relay. It speaks WebSocket only,
// with no fallback transport. Rooms passed to Join are remembered and joined
// again whenever Run reconnects, since the relay forgets a connection's rooms
// when it drops.
type Conn struct {
	url        string
	header     http.Header
	dialer     *websocket.Dialer
	retryDelay time.Duration
	log        zerolog.Logger

	// guards ws, rooms and closed; also serialises writes
	mu     sync.Mutex
	ws     *websocket.Conn
	rooms  []string
	closed bool

	hmu      sync.RWMutex
	handlers map[string][]handler
	nextID   uint64
}

// Dial connects to the relay at url, e.g. ws://localhost:4000/ws.
func Dial(ctx context.Context, url string, opts ...Option) (*Conn, error) {
	c := &Conn{
		url:        url,
		dialer:     websocket.DefaultDialer,
		retryDelay: DefaultRetryDelay,
		log:        logger,
		handlers:   make(map[string][]handler),
	}
	for _, opt := range opts {
		opt(c)
	}
	ws, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.ws = ws
	return c, nil
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	ws, _, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", c.url, err)
	}
	return ws, nil
}

// Emit sends v as the data of a frame named event.
func (c *Conn) Emit(event string, v interface{}) error {
	msg, err := adapters.EncodeEvent(event, v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(msg)
}

func (c *Conn) writeLocked(msg []byte) error {
	if c.closed {
		return ErrClosed
	}
	if c.ws == nil {
		return ErrNotConnected
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("failed to write %s: %w", c.url, err)
	}
	return nil
}

// Join asks the relay to add this connection to room sessionID. The relay
// never answers.
func (c *Conn) Join(sessionID string) error {
	msg, err := adapters.EncodeEvent(models.EventSessionJoin, sessionID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	known := false
	for _, r := range c.rooms {
		if r == sessionID {
			known = true
			break
		}
	}
	if !known {
		c.rooms = append(c.rooms, sessionID)
	}
	return c.writeLocked(msg)
}

// On registers fn for frames named event and returns a function removing it.
// Handlers run on the Run goroutine in arrival order.
func (c *Conn) On(event string, fn func(data json.RawMessage)) (off func()) {
	c.hmu.Lock()
	c.nextID++
	id := c.nextID
	c.handlers[event] = append(c.handlers[event], handler{id: id, fn: fn})
	c.hmu.Unlock()

	return func() {
		c.hmu.Lock()
		defer c.hmu.Unlock()
		hs := c.handlers[event]
		for i, h := range hs {
			if h.id == id {
				c.handlers[event] = append(hs[:i:i], hs[i+1:]...)
				return
			}
		}
	}
}

func (c *Conn) dispatch(frame models.Frame) {
	c.hmu.RLock()
	hs := append([]handler(nil), c.handlers[frame.Event]...)
	c.hmu.RUnlock()
	for _, h := range hs {
		h.fn(frame.Data)
	}
}

// Run reads frames and dispatches them to handlers until Close is called or ctx
// is done, reconnecting after a pause whenever the connection drops. Cancelling
// ctx closes the connection.
func (c *Conn) Run(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-stop:
		}
	}()

	for {
		c.mu.Lock()
		ws, closed := c.ws, c.closed
		c.mu.Unlock()
		if closed {
			return ctx.Err()
		}

		err := c.readLoop(ws)

		c.mu.Lock()
		closed = c.closed
		c.ws = nil
		c.mu.Unlock()
		if closed {
			return ctx.Err()
		}
		c.log.Warn().Err(err).Str("url", c.url).Msg("connection lost, reconnecting")

		if err := c.reconnect(ctx); err != nil {
			return err
		}
	}
}

func (c *Conn) readLoop(ws *websocket.Conn) error {
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		frame, err := adapters.DecodeFrame(msg)
		if err != nil {
			c.log.Debug().Err(err).Msg("dropping undecodable frame")
			continue
		}
		c.dispatch(frame)
	}
}

func (c *Conn) reconnect(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelay):
		}

		ws, err := c.dial(ctx)
		if err != nil {
			c.log.Warn().Err(err).Msg("reconnect failed")
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			ws.Close()
			return ctx.Err()
		}
		c.ws = ws
		var rejoinErr error
		for _, room := range c.rooms {
			msg, err := adapters.EncodeEvent(models.EventSessionJoin, room)
			if err == nil {
				err = c.writeLocked(msg)
			}
			if err != nil {
				rejoinErr = err
				break
			}
		}
		c.mu.Unlock()
		if rejoinErr != nil {
			c.log.Warn().Err(rejoinErr).Msg("failed to rejoin rooms")
			// the next read fails on the same connection and we retry from there
		}
		c.log.Info().Str("url", c.url).Msg("reconnected")
		return nil
	}
}

// Close shuts the connection down for good. It is safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.ws == nil {
		return nil
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.ws.Close()
}
