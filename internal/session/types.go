package session

import (
	"fmt"
	"strings"
)

// SessionType identifies which portal interface owns a session.
// Only ScreenCast sessions are handled by this backend; the others exist so
// that a shared registry can hold them without confusing the coordinator.
type SessionType uint32

const (
	SessionTypeScreenCast SessionType = iota
	SessionTypeRemoteDesktop
	SessionTypeGlobalShortcuts
)

func (t SessionType) String() string {
	switch t {
	case SessionTypeScreenCast:
		return "screencast"
	case SessionTypeRemoteDesktop:
		return "remote-desktop"
	case SessionTypeGlobalShortcuts:
		return "global-shortcuts"
	default:
		return fmt.Sprintf("session-type(%d)", uint32(t))
	}
}

// CursorMode is a bit-set over cursor policies. Wire values:
//
//	bit 0 (1)  Hidden    pointer not part of the stream
//	bit 1 (2)  Embedded  pointer drawn into the frames
//	bit 2 (4)  Metadata  pointer sent as stream metadata
type CursorMode uint32

const (
	CursorHidden   CursorMode = 1 << 0
	CursorEmbedded CursorMode = 1 << 1
	CursorMetadata CursorMode = 1 << 2

	cursorModeMask = CursorHidden | CursorEmbedded | CursorMetadata
)

// ParseCursorMode decodes a wire value, rejecting unknown bits.
func ParseCursorMode(v uint32) (CursorMode, error) {
	m := CursorMode(v)
	if m&^cursorModeMask != 0 {
		return 0, fmt.Errorf("invalid cursor mode %#x", v)
	}
	return m, nil
}

// Has reports whether every bit of flag is set in m.
func (m CursorMode) Has(flag CursorMode) bool { return flag != 0 && m&flag == flag }

// ShowCursor reports whether the capture worker should draw the pointer.
func (m CursorMode) ShowCursor() bool { return m.Has(CursorEmbedded) }

// Bits returns the wire encoding.
func (m CursorMode) Bits() uint32 { return uint32(m) }

func (m CursorMode) String() string {
	return flagString(uint32(m), []string{"hidden", "embedded", "metadata"})
}

// SourceType is a bit-set over capturable source kinds. Wire values:
//
//	bit 0 (1)  Monitor
//	bit 1 (2)  Window
//	bit 2 (4)  Virtual
type SourceType uint32

const (
	SourceMonitor SourceType = 1 << 0
	SourceWindow  SourceType = 1 << 1
	SourceVirtual SourceType = 1 << 2

	sourceTypeMask = SourceMonitor | SourceWindow | SourceVirtual
)

// ParseSourceType decodes a wire value, rejecting unknown bits.
func ParseSourceType(v uint32) (SourceType, error) {
	s := SourceType(v)
	if s&^sourceTypeMask != 0 {
		return 0, fmt.Errorf("invalid source types %#x", v)
	}
	return s, nil
}

// Has reports whether every bit of flag is set in s.
func (s SourceType) Has(flag SourceType) bool { return flag != 0 && s&flag == flag }

// Bits returns the wire encoding.
func (s SourceType) Bits() uint32 { return uint32(s) }

func (s SourceType) String() string {
	return flagString(uint32(s), []string{"monitor", "window", "virtual"})
}

// PersistMode controls how long a granted permission may be restored.
type PersistMode uint32

const (
	PersistNone         PersistMode = 0
	PersistWhileRunning PersistMode = 1
	PersistUntilRevoked PersistMode = 2
)

// ParsePersistMode decodes a wire value.
func ParsePersistMode(v uint32) (PersistMode, error) {
	if v > uint32(PersistUntilRevoked) {
		return 0, fmt.Errorf("invalid persist mode %d", v)
	}
	return PersistMode(v), nil
}

func (p PersistMode) String() string {
	switch p {
	case PersistNone:
		return "do-not-persist"
	case PersistWhileRunning:
		return "while-running"
	case PersistUntilRevoked:
		return "until-revoked"
	default:
		return fmt.Sprintf("persist-mode(%d)", uint32(p))
	}
}

func flagString(v uint32, names []string) string {
	if v == 0 {
		return "none"
	}
	var parts []string
	for i, name := range names {
		if v&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}
