package portal

import (
	"fmt"

	"github.com/bryanchriswhite/portalcast/internal/screencast"
	"github.com/bryanchriswhite/portalcast/internal/session"
	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
)

// point is marshalled as the D-Bus struct (ii).
type point struct {
	X, Y int32
}

// stream is marshalled as (ua{sv}).
type stream struct {
	NodeID     uint32
	Properties map[string]dbus.Variant
}

// decodeSelectOptions pulls the known SelectSources keys out of the
// options dictionary. Keys with the wrong variant type or an out of range
// value are logged and left unset. Source types and cursor modes are held to
// what the backend advertises.
func decodeSelectOptions(opts map[string]dbus.Variant, log *zerolog.Logger) session.Preferences {
	var p session.Preferences

	if v, ok := opts["types"]; ok {
		if bits, ok := uint32Option(v, "types", log); ok {
			if t, err := session.ParseSourceType(bits); err != nil {
				log.Warn().Err(err).Msg("Ignoring types option")
			} else if supported := t & screencast.AvailableSourceTypes; supported == 0 {
				log.Warn().Stringer("types", t).Msg("Ignoring types option with no supported source type")
			} else {
				if supported != t {
					log.Warn().Stringer("requested", t).Stringer("kept", supported).Msg("Dropping unsupported source types")
				}
				p.Types = &supported
			}
		}
	}

	if v, ok := opts["multiple"]; ok {
		if b, ok := v.Value().(bool); ok {
			p.Multiple = &b
		} else {
			warnType(log, "multiple", "b", v)
		}
	}

	if v, ok := opts["cursor_mode"]; ok {
		if bits, ok := uint32Option(v, "cursor_mode", log); ok {
			if m, err := session.ParseCursorMode(bits); err != nil {
				log.Warn().Err(err).Msg("Ignoring cursor_mode option")
			} else if m == 0 || m&^screencast.AvailableCursorModes != 0 {
				log.Warn().Stringer("cursor_mode", m).Msg("Ignoring unsupported cursor_mode option")
			} else {
				p.CursorMode = &m
			}
		}
	}

	if v, ok := opts["restore_token"]; ok {
		if s, ok := v.Value().(string); ok {
			p.RestoreToken = &s
		} else {
			warnType(log, "restore_token", "s", v)
		}
	}

	if v, ok := opts["persist_mode"]; ok {
		if n, ok := uint32Option(v, "persist_mode", log); ok {
			if m, err := session.ParsePersistMode(n); err != nil {
				log.Warn().Err(err).Msg("Ignoring persist_mode option")
			} else {
				p.PersistMode = &m
			}
		}
	}

	return p
}

func uint32Option(v dbus.Variant, key string, log *zerolog.Logger) (uint32, bool) {
	n, ok := v.Value().(uint32)
	if !ok {
		warnType(log, key, "u", v)
	}
	return n, ok
}

func warnType(log *zerolog.Logger, key, want string, v dbus.Variant) {
	log.Warn().
		Str("key", key).
		Str("want", want).
		Str("got", v.Signature().String()).
		Msg("Ignoring option with unexpected type")
}

func encodeStreams(streams []screencast.Stream) []stream {
	out := make([]stream, 0, len(streams))
	for _, s := range streams {
		out = append(out, stream{
			NodeID: s.NodeID,
			Properties: map[string]dbus.Variant{
				"id":          dbus.MakeVariant(fmt.Sprint(s.NodeID)),
				"position":    dbus.MakeVariant(point{X: int32(s.Position.X), Y: int32(s.Position.Y)}),
				"size":        dbus.MakeVariant(point{X: int32(s.Size.X), Y: int32(s.Size.Y)}),
				"source_type": dbus.MakeVariant(s.SourceType.Bits()),
			},
		})
	}
	return out
}

func encodeStartResult(res screencast.StartResult) map[string]dbus.Variant {
	out := map[string]dbus.Variant{
		"streams":      dbus.MakeVariant(encodeStreams(res.Streams)),
		"persist_mode": dbus.MakeVariant(uint32(res.PersistMode)),
	}
	if res.RestoreToken != "" {
		out["restore_token"] = dbus.MakeVariant(res.RestoreToken)
	}
	return out
}
