package portal

import (
	"fmt"

	"github.com/bryanchriswhite/portalcast/internal/logger"
	"github.com/bryanchriswhite/portalcast/internal/screencast"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
)

// Server owns the exported ScreenCast object and the well-known bus name.
type Server struct {
	conn  *dbus.Conn
	path  dbus.ObjectPath
	name  string
	props *prop.Properties
}

// Export publishes backend at path with its properties and introspection
// data. It does not claim a bus name.
func Export(conn *dbus.Conn, backend *Backend, path dbus.ObjectPath) (*Server, error) {
	if !path.IsValid() {
		return nil, fmt.Errorf("invalid object path %q", path)
	}

	if err := conn.Export(backend, path, ScreenCastInterface); err != nil {
		return nil, fmt.Errorf("failed to export %s: %w", ScreenCastInterface, err)
	}

	props, err := prop.Export(conn, path, prop.Map{
		ScreenCastInterface: {
			"version":              {Value: screencast.Version, Emit: prop.EmitFalse},
			"AvailableCursorModes": {Value: screencast.AvailableCursorModes.Bits(), Emit: prop.EmitFalse},
			"AvailableSourceTypes": {Value: screencast.AvailableSourceTypes.Bits(), Emit: prop.EmitFalse},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to export properties: %w", err)
	}

	node := &introspect.Node{
		Name: string(path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name:       ScreenCastInterface,
				Methods:    introspect.Methods(backend),
				Properties: props.Introspection(ScreenCastInterface),
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), path, "org.freedesktop.DBus.Introspectable"); err != nil {
		return nil, fmt.Errorf("failed to export introspection: %w", err)
	}

	return &Server{conn: conn, path: path, props: props}, nil
}

// Serve exports backend and claims name on the bus.
func Serve(conn *dbus.Conn, backend *Backend, name string, path dbus.ObjectPath) (*Server, error) {
	s, err := Export(conn, backend, path)
	if err != nil {
		return nil, err
	}

	reply, err := conn.RequestName(name, dbus.NameFlagDoNotQueue)
	if err != nil {
		s.unexport()
		return nil, fmt.Errorf("failed to request name %s: %w", name, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		s.unexport()
		return nil, fmt.Errorf("bus name %s is already owned", name)
	}
	s.name = name

	logger.WithComponent("portal").Info().
		Str("name", name).
		Str("path", string(path)).
		Msg("ScreenCast backend is on the bus")
	return s, nil
}

// Close releases the bus name and removes the exported objects.
func (s *Server) Close() error {
	if s.name != "" {
		if _, err := s.conn.ReleaseName(s.name); err != nil {
			return fmt.Errorf("failed to release %s: %w", s.name, err)
		}
		s.name = ""
	}
	s.unexport()
	return nil
}

func (s *Server) unexport() {
	s.conn.Export(nil, s.path, ScreenCastInterface)
	s.conn.Export(nil, s.path, "org.freedesktop.DBus.Properties")
	s.conn.Export(nil, s.path, "org.freedesktop.DBus.Introspectable")
}
