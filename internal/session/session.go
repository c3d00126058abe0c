package session

// Session is the accumulated state of one screencast negotiation.
// Values handed out by the Registry are snapshots; changing one has no effect
// until it is written back through Registry.Update.
type Session struct {
	Handle       string      `json:"handle"`
	Type         SessionType `json:"type"`
	AppID        string      `json:"app_id"`
	CursorMode   CursorMode  `json:"cursor_mode"`
	SourceTypes  SourceType  `json:"source_types"`
	Multiple     bool        `json:"multiple"`
	PersistMode  PersistMode `json:"persist_mode"`
	RestoreToken string      `json:"restore_token,omitempty"`
}

// New returns a session with default capture preferences: a single monitor,
// hidden cursor, no persistence.
func New(handle string, typ SessionType) Session {
	return Session{
		Handle:      handle,
		Type:        typ,
		CursorMode:  CursorHidden,
		SourceTypes: SourceMonitor,
		PersistMode: PersistNone,
	}
}

// Preferences is a partial update to a session's capture settings.
// Nil fields are left untouched.
type Preferences struct {
	Types        *SourceType
	Multiple     *bool
	CursorMode   *CursorMode
	RestoreToken *string
	PersistMode  *PersistMode
}

// Apply overwrites the fields present in p.
func (s *Session) Apply(p Preferences) {
	if p.Types != nil {
		s.SourceTypes = *p.Types
	}
	if p.Multiple != nil {
		s.Multiple = *p.Multiple
	}
	if p.CursorMode != nil {
		s.CursorMode = *p.CursorMode
	}
	if p.RestoreToken != nil {
		s.RestoreToken = *p.RestoreToken
	}
	if p.PersistMode != nil {
		s.PersistMode = *p.PersistMode
	}
}
