package relay

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"intake-relay/adapters"
	"intake-relay/models"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: "15:04:05",
})

// forwardedAs maps the patient events the relay recognises to the event name
// delivered to the rest of the room.
var forwardedAs = map[string]string{
	models.EventPatientUpdate: models.EventStaffUpdate,
	models.EventPatientSubmit: models.EventStaffUpdate,
}

// Member is one connection as seen by the relay.
type Member interface {
	ID() string
	// Send queues an encoded frame without blocking. It returns false if the
	// frame was dropped.
	Send(msg []byte) bool
}

// Relay groups members into rooms keyed by session id and forwards patient
// events to every other member of the addressed room. It never inspects the
// payload beyond its sessionId and never reports errors to senders.
type Relay struct {
	mu sync.RWMutex
	// room key -> members
	rooms map[string]map[Member]struct{}
	// member -> room keys, so Disconnect does not scan every room
	joined map[Member]map[string]struct{}

	metrics *Metrics
}

// New returns an empty relay. metrics may be nil.
func New(metrics *Metrics) *Relay {
	return &Relay{
		rooms:   make(map[string]map[Member]struct{}),
		joined:  make(map[Member]map[string]struct{}),
		metrics: metrics,
	}
}

// Join adds m to the room named key. Any key is accepted, including the empty
// string, and joining a room twice is a no-op. Earlier memberships are kept.
func (r *Relay) Join(m Member, key string) {
	r.mu.Lock()
	room, ok := r.rooms[key]
	if !ok {
		room = make(map[Member]struct{})
		r.rooms[key] = room
	}
	room[m] = struct{}{}
	keys, ok := r.joined[m]
	if !ok {
		keys = make(map[string]struct{})
		r.joined[m] = keys
	}
	keys[key] = struct{}{}
	numRooms := len(r.rooms)
	r.mu.Unlock()

	r.metrics.joined(numRooms)
	logger.Debug().Str("conn", m.ID()).Str("room", key).Msg("joined room")
}

// Forward delivers data as a staff:update to every member of the room named by
// data.sessionId except origin. Unknown events, payloads without a string
// sessionId and rooms nobody joined are dropped silently.
func (r *Relay) Forward(origin Member, event string, data json.RawMessage) {
	out, ok := forwardedAs[event]
	if !ok {
		r.metrics.Dropped(DropUnknownEvent)
		logger.Debug().Str("conn", origin.ID()).Str("event", event).Msg("ignoring unknown event")
		return
	}
	key, ok := adapters.RoomKey(data)
	if !ok {
		r.metrics.Dropped(DropNoSessionID)
		logger.Debug().Str("conn", origin.ID()).Str("event", event).Msg("payload has no sessionId")
		return
	}

	peers := r.Members(key)
	if len(peers) == 0 {
		r.metrics.Dropped(DropNoRoom)
		return
	}

	msg, err := adapters.EncodeFrame(out, data)
	if err != nil {
		// data came from a frame that already decoded, so this only happens for
		// callers passing invalid JSON directly
		r.metrics.Dropped(DropBadFrame)
		logger.Warn().Err(err).Str("conn", origin.ID()).Msg("failed to encode forwarded frame")
		return
	}
	for _, peer := range peers {
		if peer == origin {
			continue
		}
		if !peer.Send(msg) {
			r.metrics.Dropped(DropQueueFull)
			logger.Warn().Str("conn", peer.ID()).Str("room", key).Msg("send queue full, dropping frame")
			continue
		}
		r.metrics.forwardedFrame(out)
	}
}

// Disconnect removes m from every room it joined. Other members are not told.
func (r *Relay) Disconnect(m Member) {
	r.mu.Lock()
	for key := range r.joined[m] {
		room := r.rooms[key]
		delete(room, m)
		if len(room) == 0 {
			delete(r.rooms, key)
		}
	}
	delete(r.joined, m)
	numRooms := len(r.rooms)
	r.mu.Unlock()

	r.metrics.setRooms(numRooms)
}

// Members returns a snapshot of the room named key. The slice is safe to use
// after the lock is released.
func (r *Relay) Members(key string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room := r.rooms[key]
	if len(room) == 0 {
		return nil
	}
	out := make([]Member, 0, len(room))
	for m := range room {
		out = append(out, m)
	}
	return out
}

// Rooms returns the number of non-empty rooms.
func (r *Relay) Rooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// SetLogLevel adjusts the package logger.
func SetLogLevel(level zerolog.Level) {
	logger = logger.Level(level)
}
