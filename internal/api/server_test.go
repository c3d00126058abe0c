package api

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/portalcast/internal/cast"
	"github.com/bryanchriswhite/portalcast/internal/display"
	"github.com/bryanchriswhite/portalcast/internal/screencast"
	"github.com/bryanchriswhite/portalcast/internal/session"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type worker uint32

func (w worker) NodeID() uint32 { return uint32(w) }
func (w worker) Stop() error    { return nil }

type fakeStatus struct {
	mu         sync.Mutex
	sessions   []session.Session
	casts      []cast.Binding
	outputs    []display.Output
	outputsErr error
	closed     []string
	subs       chan chan screencast.Event

	unsubscribed map[chan screencast.Event]bool
}

func newFakeStatus() *fakeStatus {
	return &fakeStatus{subs: make(chan chan screencast.Event, 1)}
}

func (f *fakeStatus) Sessions() []session.Session { return f.sessions }
func (f *fakeStatus) Casts() []cast.Binding       { return f.casts }

func (f *fakeStatus) Outputs(context.Context) ([]display.Output, error) {
	return f.outputs, f.outputsErr
}

func (f *fakeStatus) CloseSession(handle string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.Handle == handle {
			f.closed = append(f.closed, handle)
			return true
		}
	}
	return false
}

func (f *fakeStatus) Subscribe() chan screencast.Event {
	ch := make(chan screencast.Event, 4)
	f.subs <- ch
	return ch
}

func (f *fakeStatus) Unsubscribe(ch chan screencast.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unsubscribed[ch] {
		return
	}
	if f.unsubscribed == nil {
		f.unsubscribed = make(map[chan screencast.Event]bool)
	}
	f.unsubscribed[ch] = true
	close(ch)
}

const handle = "/org/freedesktop/portal/desktop/session/1_42/s1"

func testServer(t *testing.T, status *fakeStatus) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(status, "test").Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, v interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp
}

func TestHealth(t *testing.T) {
	status := newFakeStatus()
	status.sessions = []session.Session{session.New(handle, session.SessionTypeScreenCast)}
	srv := testServer(t, status)

	var body map[string]interface{}
	resp := getJSON(t, srv.URL+"/api/health", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.EqualValues(t, 1, body["sessions"])
	assert.EqualValues(t, 0, body["casts"])
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestSessionsAndCasts(t *testing.T) {
	status := newFakeStatus()
	s := session.New(handle, session.SessionTypeScreenCast)
	s.AppID = "org.example.App"
	status.sessions = []session.Session{s}
	out := display.Output{Name: "DP-1", Position: image.Pt(0, 0), Width: 1920, Height: 1080}
	status.casts = []cast.Binding{{Handle: handle, Worker: worker(77), Output: out}}
	srv := testServer(t, status)

	var sessions []map[string]interface{}
	getJSON(t, srv.URL+"/api/sessions", &sessions)
	require.Len(t, sessions, 1)
	assert.Equal(t, handle, sessions[0]["handle"])
	assert.Equal(t, "org.example.App", sessions[0]["app_id"])

	var casts []CastView
	getJSON(t, srv.URL+"/api/casts", &casts)
	require.Len(t, casts, 1)
	assert.EqualValues(t, 77, casts[0].NodeID)
	assert.Equal(t, "DP-1", casts[0].Output.Name)
}

func TestOutputs(t *testing.T) {
	status := newFakeStatus()
	status.outputs = []display.Output{{Name: "HDMI-1", Width: 1280, Height: 720}}
	srv := testServer(t, status)

	var outputs []display.Output
	resp := getJSON(t, srv.URL+"/api/outputs", &outputs)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, status.outputs, outputs)

	broken := newFakeStatus()
	broken.outputsErr = errors.New("no X display")
	resp = getJSON(t, testServer(t, broken).URL+"/api/outputs", &outputs)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestCloseSession(t *testing.T) {
	status := newFakeStatus()
	status.sessions = []session.Session{session.New(handle, session.SessionTypeScreenCast)}
	srv := testServer(t, status)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/sessions"+handle, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	status.mu.Lock()
	assert.Equal(t, []string{handle}, status.closed)
	status.mu.Unlock()

	req, err = http.NewRequest(http.MethodDelete, srv.URL+"/api/sessions/org/freedesktop/portal/desktop/session/1_42/gone", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEventsWebSocket(t *testing.T) {
	status := newFakeStatus()
	srv := testServer(t, status)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var events chan screencast.Event
	select {
	case events = <-status.subs:
	case <-time.After(2 * time.Second):
		t.Fatal("server never subscribed")
	}
	events <- screencast.Event{Type: screencast.EventStarted, Handle: handle, NodeID: 9}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev screencast.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, screencast.EventStarted, ev.Type)
	assert.Equal(t, handle, ev.Handle)
	assert.EqualValues(t, 9, ev.NodeID)
}

func TestCheckLoopback(t *testing.T) {
	assert.NoError(t, checkLoopback("127.0.0.1:8787"))
	assert.NoError(t, checkLoopback("[::1]:8787"))
	assert.NoError(t, checkLoopback("localhost:0"))
	assert.Error(t, checkLoopback("0.0.0.0:8787"))
	assert.Error(t, checkLoopback(":8787"))
	assert.Error(t, checkLoopback("8787"))
}

func TestStartRefusesPublicAddress(t *testing.T) {
	s := NewServer(newFakeStatus(), "test")
	err := s.Start(context.Background(), "0.0.0.0:0")
	assert.ErrorContains(t, err, "non-loopback")
}

func TestAllowedOrigin(t *testing.T) {
	assert.True(t, allowedOrigin(""))
	assert.True(t, allowedOrigin("http://127.0.0.1:8787"))
	assert.True(t, allowedOrigin("http://localhost:3000"))
	assert.True(t, allowedOrigin("http://[::1]:8787"))
	assert.False(t, allowedOrigin("https://evil.example"))
	assert.False(t, allowedOrigin("http://192.168.1.10:8787"))
	assert.False(t, allowedOrigin("null"))
}

func TestForeignOriginRejected(t *testing.T) {
	status := newFakeStatus()
	status.sessions = []session.Session{session.New(handle, session.SessionTypeScreenCast)}
	srv := testServer(t, status)

	do := func(method, url string) *http.Response {
		req, err := http.NewRequest(method, url, nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "https://evil.example")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	preflight := do(http.MethodOptions, srv.URL+"/api/sessions"+handle)
	assert.Equal(t, http.StatusForbidden, preflight.StatusCode)
	assert.Empty(t, preflight.Header.Get("Access-Control-Allow-Origin"))

	del := do(http.MethodDelete, srv.URL+"/api/sessions"+handle)
	assert.Equal(t, http.StatusForbidden, del.StatusCode)
	status.mu.Lock()
	assert.Empty(t, status.closed)
	status.mu.Unlock()

	list := do(http.MethodGet, srv.URL+"/api/sessions")
	assert.Equal(t, http.StatusForbidden, list.StatusCode)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestLoopbackOriginAllowed(t *testing.T) {
	status := newFakeStatus()
	srv := testServer(t, status)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://127.0.0.1:8787")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "http://127.0.0.1:8787", resp.Header.Get("Access-Control-Allow-Origin"))
}
