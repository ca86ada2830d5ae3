package adapters

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"intake-relay/models"
)

var (
	ErrMissingEvent = errors.New("frame has no event name")
	ErrInvalidData  = errors.New("frame data is not valid JSON")
)

// DecodeFrame parses a raw WebSocket text message into a Frame. Data is kept as
// the exact bytes the sender wrote.
func DecodeFrame(raw []byte) (models.Frame, error) {
	var frame models.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return models.Frame{}, fmt.Errorf("failed to unmarshal frame: %w", err)
	}
	if frame.Event == "" {
		return models.Frame{}, ErrMissingEvent
	}
	return frame, nil
}

// EncodeFrame builds an outbound message around data. The data bytes are copied
// verbatim; json.Marshal would compact and HTML-escape them.
func EncodeFrame(event string, data json.RawMessage) ([]byte, error) {
	name, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event name: %w", err)
	}
	if len(data) == 0 {
		return []byte(`{"event":` + string(name) + `}`), nil
	}
	if !json.Valid(data) {
		return nil, ErrInvalidData
	}
	b := make([]byte, 0, len(name)+len(data)+19)
	b = append(b, `{"event":`...)
	b = append(b, name...)
	b = append(b, `,"data":`...)
	b = append(b, data...)
	b = append(b, '}')
	return b, nil
}

// EncodeEvent marshals v and wraps it in a frame named event.
func EncodeEvent(event string, v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return EncodeFrame(event, data)
}

// RoomKey returns the sessionId field of an update payload. ok is false when the
// field is absent or not a string, in which case no room can be addressed.
func RoomKey(data json.RawMessage) (key string, ok bool) {
	res := gjson.GetBytes(data, "sessionId")
	if res.Type != gjson.String {
		return "", false
	}
	return res.String(), true
}

// JoinKey decodes the data of a session:join frame, which must be a JSON string.
func JoinKey(data json.RawMessage) (key string, ok bool) {
	res := gjson.ParseBytes(data)
	if res.Type != gjson.String {
		return "", false
	}
	return res.String(), true
}
