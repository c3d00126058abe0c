package portal

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bryanchriswhite/portalcast/internal/logger"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
)

const sessionVersion uint32 = 1

// Objects exports per-call request objects and per-session session objects
// on a bus connection.
type Objects struct {
	conn *dbus.Conn

	mu       sync.Mutex
	sessions map[dbus.ObjectPath]*sessionObject
}

// NewObjects creates a publisher bound to conn.
func NewObjects(conn *dbus.Conn) *Objects {
	return &Objects{
		conn:     conn,
		sessions: make(map[dbus.ObjectPath]*sessionObject),
	}
}

type requestObject struct {
	path   dbus.ObjectPath
	cancel context.CancelFunc
}

// Close is org.freedesktop.impl.portal.Request.Close.
func (r *requestObject) Close() *dbus.Error {
	logger.WithComponent("portal").Debug().Str("request", string(r.path)).Msg("Request closed by client")
	r.cancel()
	return nil
}

type sessionObject struct {
	path     dbus.ObjectPath
	onClose  func()
	byClient atomic.Bool
}

// Close is org.freedesktop.impl.portal.Session.Close.
func (s *sessionObject) Close() *dbus.Error {
	s.byClient.Store(true)
	s.onClose()
	return nil
}

// PublishRequest exports a request object at path until release is called.
func (o *Objects) PublishRequest(path string, cancel context.CancelFunc) (func(), error) {
	p := dbus.ObjectPath(path)
	if !p.IsValid() {
		return nil, fmt.Errorf("invalid request path %q", path)
	}
	if err := o.conn.Export(&requestObject{path: p, cancel: cancel}, p, RequestInterface); err != nil {
		return nil, fmt.Errorf("failed to export request %s: %w", path, err)
	}
	return func() {
		if err := o.conn.Export(nil, p, RequestInterface); err != nil {
			logger.WithComponent("portal").Warn().Err(err).Str("request", path).Msg("Failed to unexport request")
		}
	}, nil
}

// PublishSession exports a session object with its version property.
func (o *Objects) PublishSession(path string, onClose func()) error {
	p := dbus.ObjectPath(path)
	if !p.IsValid() {
		return fmt.Errorf("invalid session path %q", path)
	}

	obj := &sessionObject{path: p, onClose: onClose}

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.sessions[p]; exists {
		return fmt.Errorf("session object %s already exported", path)
	}
	if err := o.conn.Export(obj, p, SessionInterface); err != nil {
		return fmt.Errorf("failed to export session %s: %w", path, err)
	}
	_, err := prop.Export(o.conn, p, prop.Map{
		SessionInterface: {
			"version": {Value: sessionVersion, Writable: false, Emit: prop.EmitFalse},
		},
	})
	if err != nil {
		o.conn.Export(nil, p, SessionInterface)
		return fmt.Errorf("failed to export session properties %s: %w", path, err)
	}
	o.sessions[p] = obj
	return nil
}

// UnpublishSession removes a session object. When the session was not closed
// by the client itself, the Closed signal is emitted first.
func (o *Objects) UnpublishSession(path string) {
	p := dbus.ObjectPath(path)

	o.mu.Lock()
	obj, ok := o.sessions[p]
	delete(o.sessions, p)
	o.mu.Unlock()
	if !ok {
		return
	}

	log := logger.WithSession("portal", path)
	if !obj.byClient.Load() {
		if err := o.conn.Emit(p, SessionInterface+".Closed"); err != nil {
			log.Warn().Err(err).Msg("Failed to emit Closed")
		}
	}
	o.conn.Export(nil, p, SessionInterface)
	o.conn.Export(nil, p, "org.freedesktop.DBus.Properties")
	log.Debug().Msg("Session object removed")
}

// Len reports how many session objects are exported.
func (o *Objects) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}
