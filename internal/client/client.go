package client

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/bryanchriswhite/portalcast/internal/logger"
	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
)

const (
	screenCastIface = "org.freedesktop.impl.portal.ScreenCast"
	sessionIface    = "org.freedesktop.impl.portal.Session"
	requestIface    = "org.freedesktop.impl.portal.Request"
	requestRoot     = "/org/freedesktop/portal/desktop/request/probe/"
	sessionRoot     = "/org/freedesktop/portal/desktop/session/probe/"
)

// Source types for SelectSources
const (
	SourceTypeMonitor = 1 << 0
	SourceTypeWindow  = 1 << 1
	SourceTypeVirtual = 1 << 2
)

// Cursor modes for SelectSources
const (
	CursorModeHidden   = 1 << 0
	CursorModeEmbedded = 1 << 1
	CursorModeMetadata = 1 << 2
)

// Client drives a ScreenCast backend directly over the impl interface,
// the same way xdg-desktop-portal does.
type Client struct {
	conn *dbus.Conn
	obj  dbus.BusObject
	dest string
}

// Properties are the backend's advertised capabilities
type Properties struct {
	Version              uint32
	AvailableCursorModes uint32
	AvailableSourceTypes uint32
}

// Stream is one stream returned by Start
type Stream struct {
	NodeID     uint32
	Position   image.Point
	Size       image.Point
	SourceType uint32
}

// ProbeOptions selects what the probe asks for
type ProbeOptions struct {
	AppID      string
	CursorMode uint32
	// Keep leaves the session open after Start.
	Keep bool
}

// ProbeResult is what one CreateSession/SelectSources/Start round produced
type ProbeResult struct {
	SessionHandle dbus.ObjectPath
	Response      uint32
	Streams       []Stream
}

// New creates a client for the backend at dest/path on conn
func New(conn *dbus.Conn, dest string, path dbus.ObjectPath) *Client {
	return &Client{
		conn: conn,
		obj:  conn.Object(dest, path),
		dest: dest,
	}
}

// Connect opens a private session bus connection
func Connect(dest string, path dbus.ObjectPath) (*Client, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return New(conn, dest, path), nil
}

// Close closes the bus connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Properties reads the backend's advertised capabilities
func (c *Client) Properties(ctx context.Context) (Properties, error) {
	var p Properties
	for name, dst := range map[string]*uint32{
		"version":              &p.Version,
		"AvailableCursorModes": &p.AvailableCursorModes,
		"AvailableSourceTypes": &p.AvailableSourceTypes,
	} {
		var v dbus.Variant
		err := c.obj.CallWithContext(ctx, "org.freedesktop.DBus.Properties.Get", 0, screenCastIface, name).Store(&v)
		if err != nil {
			return p, fmt.Errorf("failed to read %s: %w", name, err)
		}
		n, ok := v.Value().(uint32)
		if !ok {
			return p, fmt.Errorf("property %s has type %s, want u", name, v.Signature())
		}
		*dst = n
	}
	return p, nil
}

// Probe runs CreateSession, SelectSources and Start against the backend.
// Start blocks until the user finishes picking a region.
func (c *Client) Probe(ctx context.Context, opts ProbeOptions) (*ProbeResult, error) {
	log := logger.WithComponent("client")

	sessionHandle := dbus.ObjectPath(sessionRoot + token())
	res := &ProbeResult{SessionHandle: sessionHandle}

	code, _, err := c.call(ctx, "CreateSession", dbus.ObjectPath(requestRoot+token()), sessionHandle, opts.AppID, map[string]dbus.Variant{})
	if err != nil {
		return nil, fmt.Errorf("CreateSession call failed: %w", err)
	}
	if code != 0 {
		res.Response = code
		return res, nil
	}
	log.Debug().Str("session", string(sessionHandle)).Msg("Created session")

	if !opts.Keep {
		defer c.CloseSession(sessionHandle)
	}

	options := map[string]dbus.Variant{
		"types":    dbus.MakeVariant(uint32(SourceTypeMonitor)),
		"multiple": dbus.MakeVariant(false),
	}
	if opts.CursorMode != 0 {
		options["cursor_mode"] = dbus.MakeVariant(opts.CursorMode)
	}
	code, _, err = c.call(ctx, "SelectSources", dbus.ObjectPath(requestRoot+token()), sessionHandle, opts.AppID, options)
	if err != nil {
		return nil, fmt.Errorf("SelectSources call failed: %w", err)
	}
	if code != 0 {
		res.Response = code
		return res, nil
	}
	log.Debug().Msg("Selected sources")

	request := dbus.ObjectPath(requestRoot + token())
	stop := context.AfterFunc(ctx, func() {
		// Mirror the frontend: closing the request cancels a pending Start.
		c.conn.Object(c.dest, request).Call(requestIface+".Close", 0)
	})
	defer stop()

	log.Info().Msg("Waiting for Start (pick a screen)")
	code, results, err := c.call(context.WithoutCancel(ctx), "Start", request, sessionHandle, opts.AppID, "", map[string]dbus.Variant{})
	if err != nil {
		return nil, fmt.Errorf("Start call failed: %w", err)
	}
	res.Response = code
	if code != 0 {
		return res, nil
	}

	streams, ok := results["streams"]
	if !ok {
		return nil, fmt.Errorf("no streams in response")
	}
	res.Streams, err = ParseStreams(streams)
	if err != nil {
		return nil, err
	}
	log.Info().Int("streams", len(res.Streams)).Msg("Screen sharing started")
	return res, nil
}

// CloseSession calls Session.Close on handle
func (c *Client) CloseSession(handle dbus.ObjectPath) error {
	return c.conn.Object(c.dest, handle).Call(sessionIface+".Close", 0).Err
}

func (c *Client) call(ctx context.Context, method string, args ...interface{}) (uint32, map[string]dbus.Variant, error) {
	var code uint32
	var results map[string]dbus.Variant
	err := c.obj.CallWithContext(ctx, screenCastIface+"."+method, 0, args...).Store(&code, &results)
	return code, results, err
}

func token() string {
	return "t" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ParseStreams decodes an a(ua{sv}) value as received from the bus
func ParseStreams(v dbus.Variant) ([]Stream, error) {
	var entries [][]interface{}
	switch raw := v.Value().(type) {
	case [][]interface{}:
		entries = raw
	case []interface{}:
		for _, e := range raw {
			fields, ok := e.([]interface{})
			if !ok {
				return nil, fmt.Errorf("unexpected stream entry type %T", e)
			}
			entries = append(entries, fields)
		}
	default:
		return nil, fmt.Errorf("unknown streams format %T", raw)
	}

	streams := make([]Stream, 0, len(entries))
	for _, fields := range entries {
		if len(fields) != 2 {
			return nil, fmt.Errorf("stream has %d fields, want 2", len(fields))
		}
		nodeID, ok := fields[0].(uint32)
		if !ok {
			return nil, fmt.Errorf("stream node id has type %T", fields[0])
		}
		props, ok := fields[1].(map[string]dbus.Variant)
		if !ok {
			return nil, fmt.Errorf("stream properties have type %T", fields[1])
		}

		s := Stream{NodeID: nodeID}
		if p, ok := props["position"]; ok {
			s.Position = parsePair(p)
		}
		if p, ok := props["size"]; ok {
			s.Size = parsePair(p)
		}
		if p, ok := props["source_type"]; ok {
			s.SourceType, _ = p.Value().(uint32)
		}
		streams = append(streams, s)
	}
	return streams, nil
}

func parsePair(v dbus.Variant) image.Point {
	fields, ok := v.Value().([]interface{})
	if !ok || len(fields) != 2 {
		return image.Point{}
	}
	x, _ := fields[0].(int32)
	y, _ := fields[1].(int32)
	return image.Pt(int(x), int(y))
}
