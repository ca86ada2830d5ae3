package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"intake-relay/adapters"
	"intake-relay/models"
	"intake-relay/relay"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	DefaultQueueSize = 64
)

// conn is one upgraded client connection. It satisfies relay.Member.
type conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
	log  zerolog.Logger
}

func (c *conn) ID() string { return c.id }

// Send queues msg for the write pump. It never blocks: a closed connection or a
// full queue drops the frame.
func (c *conn) Send(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

type WSHandler struct {
	relay          *relay.Relay
	metrics        *relay.Metrics
	allowedOrigins map[string]bool
	queueSize      int
	upgrader       websocket.Upgrader
}

// NewWSHandler returns a handler that upgrades requests and hands every frame
// to r. An empty allowedOrigins list accepts any origin. metrics may be nil.
func NewWSHandler(r *relay.Relay, metrics *relay.Metrics, allowedOrigins []string, queueSize int) *WSHandler {
	origins := make(map[string]bool)
	for _, o := range allowedOrigins {
		if o != "" {
			origins[o] = true
		}
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	h := &WSHandler{
		relay:          r,
		metrics:        metrics,
		allowedOrigins: origins,
		queueSize:      queueSize,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // allow non-browser clients
	}
	return h.allowedOrigins[origin]
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	id := uuid.New().String()
	c := &conn{
		id:   id,
		ws:   ws,
		send: make(chan []byte, h.queueSize),
		done: make(chan struct{}),
		log:  hlog.FromRequest(r).With().Str("conn", id).Logger(),
	}
	h.metrics.ConnOpened()
	c.log.Debug().Msg("connected")

	defer func() {
		if rec := recover(); rec != nil {
			sentry.CurrentHub().Recover(rec)
			c.log.Error().Interface("panic", rec).Msg("recovered panic in connection handler")
		}
		h.relay.Disconnect(c)
		c.close()
		h.metrics.ConnClosed()
		c.log.Debug().Msg("disconnected")
	}()

	go h.writePump(c)
	h.readLoop(c)
}

func (h *WSHandler) readLoop(c *conn) {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Info().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}

		frame, err := adapters.DecodeFrame(message)
		if err != nil {
			h.metrics.Dropped(relay.DropBadFrame)
			c.log.Debug().Err(err).Msg("dropping undecodable frame")
			continue
		}
		h.dispatch(c, frame.Event, frame.Data)
	}
}

func (h *WSHandler) dispatch(c *conn, event string, data json.RawMessage) {
	if event != models.EventSessionJoin {
		h.relay.Forward(c, event, data)
		return
	}
	key, ok := adapters.JoinKey(data)
	if !ok {
		h.metrics.Dropped(relay.DropBadFrame)
		c.log.Debug().Msg("session:join without a string session id")
		return
	}
	h.relay.Join(c, key)
}

func (h *WSHandler) writePump(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		// unblocks the read loop if the write side failed first
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Info().Err(err).Msg("failed to write to websocket")
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
