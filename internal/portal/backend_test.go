package portal

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/portalcast/internal/capture"
	"github.com/bryanchriswhite/portalcast/internal/cast"
	"github.com/bryanchriswhite/portalcast/internal/display"
	"github.com/bryanchriswhite/portalcast/internal/screencast"
	"github.com/bryanchriswhite/portalcast/internal/selector"
	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticOutputs []display.Output

func (s staticOutputs) ListOutputs(context.Context) ([]display.Output, error) { return s, nil }

type staticSelector struct {
	region *selector.Region
	err    error
}

func (s staticSelector) SelectRegion(context.Context, selector.Kind) (*selector.Region, error) {
	return s.region, s.err
}

type nodeWorker uint32

func (w nodeWorker) NodeID() uint32 { return uint32(w) }
func (w nodeWorker) Stop() error    { return nil }

type starter struct {
	mu     sync.Mutex
	params []capture.Params
}

func (s *starter) Start(ctx context.Context, p capture.Params) (cast.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = append(s.params, p)
	return nodeWorker(42), nil
}

type nopPublisher struct{}

func (nopPublisher) PublishRequest(string, context.CancelFunc) (func(), error) { return func() {}, nil }
func (nopPublisher) PublishSession(string, func()) error                         { return nil }
func (nopPublisher) UnpublishSession(string)                                      {}

func newTestBackend(sel selector.Selector) (*Backend, *starter) {
	workers := &starter{}
	coord := screencast.New(screencast.Deps{
		Outputs: staticOutputs{
			{Name: "HDMI-1", Position: image.Pt(0, 0), Width: 1920, Height: 1080},
		},
		Selector:  sel,
		Workers:   workers,
		Publisher: nopPublisher{},
	})
	return NewBackend(context.Background(), coord), workers
}

const (
	testSession = dbus.ObjectPath("/org/freedesktop/portal/desktop/session/1_7/abc")
	testRequest = dbus.ObjectPath("/org/freedesktop/portal/desktop/request/1_7/r1")
)

func TestBackendFullFlow(t *testing.T) {
	b, workers := newTestBackend(staticSelector{region: &selector.Region{Position: image.Pt(0, 0)}})

	code, res, derr := b.CreateSession(testRequest, testSession, "org.example.App", nil)
	require.Nil(t, derr)
	assert.EqualValues(t, 0, code)
	assert.Equal(t, string(testSession), res["handle_token"].Value())

	code, _, derr = b.SelectSources(testRequest, testSession, "org.example.App", map[string]dbus.Variant{
		"cursor_mode": dbus.MakeVariant(uint32(2)),
	})
	require.Nil(t, derr)
	assert.EqualValues(t, 0, code)

	code, res, derr = b.Start(testRequest, testSession, "org.example.App", "", nil)
	require.Nil(t, derr)
	assert.EqualValues(t, 0, code)

	streams := res["streams"].Value().([]stream)
	require.Len(t, streams, 1)
	assert.EqualValues(t, 42, streams[0].NodeID)
	assert.True(t, workers.params[0].ShowCursor)
}

func TestBackendDuplicateCreateIsOther(t *testing.T) {
	b, _ := newTestBackend(staticSelector{})

	_, _, derr := b.CreateSession(testRequest, testSession, "", nil)
	require.Nil(t, derr)
	code, res, derr := b.CreateSession(testRequest, testSession, "", nil)
	assert.Nil(t, derr)
	assert.EqualValues(t, 2, code)
	assert.Empty(t, res)
}

func TestBackendCancelledStart(t *testing.T) {
	b, _ := newTestBackend(staticSelector{})

	b.CreateSession(testRequest, testSession, "", nil)
	code, res, derr := b.Start(testRequest, testSession, "", "", nil)
	assert.Nil(t, derr)
	assert.EqualValues(t, 1, code)
	assert.Empty(t, res)
}

func TestBackendFailureIsDBusError(t *testing.T) {
	b, _ := newTestBackend(staticSelector{err: errors.New("picker crashed")})

	b.CreateSession(testRequest, testSession, "", nil)
	_, _, derr := b.Start(testRequest, testSession, "", "", nil)
	require.NotNil(t, derr)
	assert.Equal(t, "org.freedesktop.DBus.Error.Failed", derr.Name)
	assert.Contains(t, derr.Error(), "picker crashed")
}

// TestServeOnSessionBus exercises the exported object over a real bus.
func TestServeOnSessionBus(t *testing.T) {
	server, err := dbus.ConnectSessionBus()
	if err != nil {
		t.Skipf("no session bus: %v", err)
	}
	defer server.Close()
	client, err := dbus.ConnectSessionBus()
	require.NoError(t, err)
	defer client.Close()

	b, _ := newTestBackend(staticSelector{})
	path := dbus.ObjectPath("/org/freedesktop/portal/desktop")
	srv, err := Export(server, b, path)
	require.NoError(t, err)
	defer srv.Close()

	obj := client.Object(server.Names()[0], path)

	v, err := obj.GetProperty(ScreenCastInterface + ".version")
	require.NoError(t, err)
	assert.Equal(t, uint32(4), v.Value())

	v, err = obj.GetProperty(ScreenCastInterface + ".AvailableCursorModes")
	require.NoError(t, err)
	assert.Equal(t, uint32(3), v.Value())

	v, err = obj.GetProperty(ScreenCastInterface + ".AvailableSourceTypes")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v.Value())

	var code uint32
	var results map[string]dbus.Variant
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = obj.CallWithContext(ctx, ScreenCastInterface+".CreateSession", 0,
		testRequest, testSession, "org.example.App", map[string]dbus.Variant{}).Store(&code, &results)
	require.NoError(t, err)
	assert.EqualValues(t, 0, code)
}

func TestObjectsOnSessionBus(t *testing.T) {
	server, err := dbus.ConnectSessionBus()
	if err != nil {
		t.Skipf("no session bus: %v", err)
	}
	defer server.Close()
	client, err := dbus.ConnectSessionBus()
	require.NoError(t, err)
	defer client.Close()

	objects := NewObjects(server)
	peer := server.Names()[0]

	ctx, cancel := context.WithCancel(context.Background())
	release, err := objects.PublishRequest(string(testRequest), cancel)
	require.NoError(t, err)
	require.NoError(t, client.Object(peer, testRequest).Call(RequestInterface+".Close", 0).Err)
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Request.Close did not cancel")
	}
	release()

	closed := make(chan struct{})
	require.NoError(t, objects.PublishSession(string(testSession), func() {
		objects.UnpublishSession(string(testSession))
		close(closed)
	}))
	assert.Error(t, objects.PublishSession(string(testSession), func() {}), "path already in use")
	assert.Equal(t, 1, objects.Len())

	v, err := client.Object(peer, testSession).GetProperty(SessionInterface + ".version")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v.Value())

	require.NoError(t, client.Object(peer, testSession).Call(SessionInterface+".Close", 0).Err)
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Session.Close did not reach the handler")
	}
	assert.Zero(t, objects.Len())
}
