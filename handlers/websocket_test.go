package handlers

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intake-relay/models"
	"intake-relay/relay"
)

func newTestServer(t *testing.T, allowedOrigins ...string) (*httptest.Server, *relay.Relay) {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics := relay.NewMetrics(reg)
	r := relay.New(metrics)
	ws := NewWSHandler(r, metrics, allowedOrigins, 0)
	srv := httptest.NewServer(NewRouter(ws, reg, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return srv, r
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func send(t *testing.T, c *websocket.Conn, event string, data string) {
	t.Helper()
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"event":"`+event+`","data":`+data+`}`)))
}

func join(t *testing.T, r *relay.Relay, c *websocket.Conn, room string, wantMembers int) {
	t.Helper()
	send(t, c, models.EventSessionJoin, `"`+room+`"`)
	require.Eventually(t, func() bool {
		return len(r.Members(room)) == wantMembers
	}, 2*time.Second, 10*time.Millisecond)
}

func readFrame(t *testing.T, c *websocket.Conn) models.Frame {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := c.ReadMessage()
	require.NoError(t, err)
	var frame models.Frame
	require.NoError(t, json.Unmarshal(msg, &frame))
	return frame
}

func assertSilent(t *testing.T, c *websocket.Conn) {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, msg, err := c.ReadMessage()
	require.Error(t, err, "unexpected frame %s", msg)
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestEndToEndRoomScenario(t *testing.T) {
	srv, r := newTestServer(t)
	a := dial(t, srv)
	b := dial(t, srv)
	c := dial(t, srv)

	join(t, r, a, "ABC123", 1)
	join(t, r, b, "ABC123", 2)
	join(t, r, c, "XYZ999", 1)

	update := `{"sessionId":"ABC123","draft":{"firstName":"Jane"},"status":"FILLING","lastActiveAt":1000}`
	send(t, a, models.EventPatientUpdate, update)

	frame := readFrame(t, b)
	assert.Equal(t, models.EventStaffUpdate, frame.Event)
	assert.Equal(t, update, string(frame.Data))

	var p models.UpdatePayload
	require.NoError(t, json.Unmarshal(frame.Data, &p))
	assert.Equal(t, "ABC123", p.SessionID)
	assert.Equal(t, "Jane", p.Draft["firstName"])
	assert.Equal(t, models.StatusFilling, p.Status)
	assert.Equal(t, int64(1000), p.LastActiveAt)

	assertSilent(t, c)
	assertSilent(t, a)
}

func TestSubmitIsForwarded(t *testing.T) {
	srv, r := newTestServer(t)
	a := dial(t, srv)
	b := dial(t, srv)
	join(t, r, a, "S", 1)
	join(t, r, b, "S", 2)

	submit := `{"sessionId":"S","draft":{"firstName":"Jane","lastName":"Doe"},"status":"SUBMITTED","lastActiveAt":5000}`
	send(t, a, models.EventPatientSubmit, submit)

	frame := readFrame(t, b)
	assert.Equal(t, models.EventStaffUpdate, frame.Event)
	assert.Equal(t, submit, string(frame.Data))
}

func TestLateJoinerSeesNothingUntilNextEmit(t *testing.T) {
	srv, r := newTestServer(t)
	a := dial(t, srv)
	join(t, r, a, "L", 1)
	send(t, a, models.EventPatientUpdate, `{"sessionId":"L","lastActiveAt":1}`)
	// frames from one connection are handled in order, so once this join
	// lands the update above has been relayed to nobody
	join(t, r, a, "barrier", 1)

	b := dial(t, srv)
	join(t, r, b, "L", 2)

	// the first frame b sees must be the one emitted after it joined
	send(t, a, models.EventPatientUpdate, `{"sessionId":"L","lastActiveAt":2}`)
	frame := readFrame(t, b)
	assert.Equal(t, `{"sessionId":"L","lastActiveAt":2}`, string(frame.Data))
}

func TestBadFramesDoNotCloseTheConnection(t *testing.T) {
	srv, r := newTestServer(t)
	a := dial(t, srv)
	b := dial(t, srv)
	join(t, r, a, "G", 1)
	join(t, r, b, "G", 2)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`garbage`)))
	send(t, a, models.EventSessionJoin, `{"not":"a string"}`)
	send(t, a, "unknown:event", `{"sessionId":"G"}`)
	send(t, a, models.EventPatientUpdate, `{"draft":{}}`)
	send(t, a, models.EventPatientUpdate, `{"sessionId":"G"}`)

	frame := readFrame(t, b)
	assert.Equal(t, `{"sessionId":"G"}`, string(frame.Data))
}

func TestDisconnectLeavesRooms(t *testing.T) {
	srv, r := newTestServer(t)
	a := dial(t, srv)
	b := dial(t, srv)
	join(t, r, a, "D", 1)
	join(t, r, b, "D", 2)

	require.NoError(t, b.Close())
	require.Eventually(t, func() bool {
		return len(r.Members("D")) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOriginAllowList(t *testing.T) {
	srv, _ := newTestServer(t, "http://allowed.example")

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"http://allowed.example"}}
	c, _, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.NoError(t, err)
	c.Close()
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body models.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)

	metricsResp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	assert.Equal(t, http.StatusOK, metricsResp.StatusCode)
}
