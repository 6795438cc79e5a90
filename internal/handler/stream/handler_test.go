package stream

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhouzirui/synthesis-talk/backend/internal/apperr"
	"github.com/zhouzirui/synthesis-talk/backend/internal/service/command"
)

type fakeDispatcher struct {
	deltas []string
	reply  command.Reply
	err    error
	got    []command.Request
}

func (f *fakeDispatcher) HandleStream(_ context.Context, req command.Request, onDelta func(string)) (command.Reply, error) {
	f.got = append(f.got, req)
	for _, d := range f.deltas {
		onDelta(d)
	}
	return f.reply, f.err
}

func newServer(t *testing.T, d Dispatcher) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	New(d, zap.NewNop()).RegisterRoutes(r)
	NewWebSocketHandler(d, []string{"*"}, zap.NewNop()).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

type sseEvent struct {
	name string
	data string
}

func readEvents(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()
	var events []sseEvent
	var current sseEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			events = append(events, current)
			current = sseEvent{}
		}
	}
	require.NoError(t, scanner.Err())
	return events
}

func eventNames(events []sseEvent) []string {
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.name
	}
	return names
}

func TestSSEStreamsDeltasThenMessage(t *testing.T) {
	d := &fakeDispatcher{deltas: []string{"Hel", "lo"}, reply: command.Reply{Text: "Hello"}}
	srv := newServer(t, d)

	resp, err := http.Get(srv.URL + "/chat/stream?session_id=s1&message=hi&format=bullet")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	events := readEvents(t, resp)
	assert.Equal(t, []string{"start", "delta", "delta", "message", "end"}, eventNames(events))
	assert.JSONEq(t, `{"content":"Hel"}`, events[1].data)
	assert.JSONEq(t, `{"reply":"Hello"}`, events[3].data)

	require.Len(t, d.got, 1)
	assert.Equal(t, command.Request{SessionID: "s1", Message: "hi", Format: "bullet"}, d.got[0])
}

func TestSSEChartEvent(t *testing.T) {
	srv := newServer(t, &fakeDispatcher{reply: command.Reply{Chart: "data:image/png;base64,AA=="}})

	resp, err := http.Get(srv.URL + "/chat/stream?session_id=s1&format=bar")
	require.NoError(t, err)
	defer resp.Body.Close()

	events := readEvents(t, resp)
	assert.Equal(t, []string{"start", "chart", "end"}, eventNames(events))
}

func TestSSEErrorEvent(t *testing.T) {
	d := &fakeDispatcher{err: apperr.E(apperr.KindUpstream, "completion", errors.New("secret detail"))}
	srv := newServer(t, d)

	resp, err := http.Get(srv.URL + "/chat/stream?session_id=s1&message=hi")
	require.NoError(t, err)
	defer resp.Body.Close()

	events := readEvents(t, resp)
	assert.Equal(t, []string{"start", "error"}, eventNames(events))
	assert.JSONEq(t, `{"error":"upstream service failed"}`, events[1].data)
}

func TestSSERequiresSession(t *testing.T) {
	srv := newServer(t, &fakeDispatcher{})

	resp, err := http.Get(srv.URL + "/chat/stream?message=hi")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketRoundTrip(t *testing.T) {
	d := &fakeDispatcher{deltas: []string{"a", "b"}, reply: command.Reply{Text: "ab", Download: "/exports/x.txt"}}
	srv := newServer(t, d)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(InboundMessage{SessionID: "s1", Message: "export txt"}))

	var frames []OutboundMessage
	for i := 0; i < 3; i++ {
		var out OutboundMessage
		require.NoError(t, conn.ReadJSON(&out))
		frames = append(frames, out)
	}
	assert.Equal(t, "delta", frames[0].Type)
	assert.Equal(t, "a", frames[0].Content)
	assert.Equal(t, "delta", frames[1].Type)
	assert.Equal(t, OutboundMessage{Type: "reply", SessionID: "s1", Reply: "ab", Download: "/exports/x.txt"}, frames[2])

	require.NoError(t, conn.WriteJSON(InboundMessage{Message: "no session"}))
	var out OutboundMessage
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, "error", out.Type)
	assert.Equal(t, "session_id is required", out.Error)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://app.local"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://app.local")
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://evil.test")
	assert.False(t, check(req))
}
