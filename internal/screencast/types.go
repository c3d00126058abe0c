package screencast

import (
	"context"
	"image"

	"github.com/bryanchriswhite/portalcast/internal/capture"
	"github.com/bryanchriswhite/portalcast/internal/cast"
	"github.com/bryanchriswhite/portalcast/internal/session"
)

// Version is the org.freedesktop.impl.portal.ScreenCast revision implemented.
const Version uint32 = 4

// AvailableCursorModes lists the cursor modes a client may request.
const AvailableCursorModes = session.CursorHidden | session.CursorEmbedded

// AvailableSourceTypes lists the source kinds this backend can capture.
const AvailableSourceTypes = session.SourceMonitor

// Response is the portal response code returned alongside results.
type Response uint32

const (
	ResponseSuccess   Response = 0
	ResponseCancelled Response = 1
	ResponseOther     Response = 2
)

func (r Response) String() string {
	switch r {
	case ResponseSuccess:
		return "success"
	case ResponseCancelled:
		return "cancelled"
	default:
		return "other"
	}
}

// CreateRequest is the input of CreateSession.
type CreateRequest struct {
	RequestHandle string
	SessionHandle string
	AppID         string
}

// CreateResult is returned by a successful CreateSession.
type CreateResult struct {
	HandleToken string
}

// SelectRequest is the input of SelectSources.
type SelectRequest struct {
	RequestHandle string
	SessionHandle string
	AppID         string
	Preferences   session.Preferences
}

// StartRequest is the input of Start.
type StartRequest struct {
	RequestHandle string
	SessionHandle string
	AppID         string
	ParentWindow  string
}

// Stream describes one live capture stream handed to the client.
type Stream struct {
	NodeID     uint32
	Position   image.Point
	Size       image.Point
	SourceType session.SourceType
}

// StartResult is returned by a successful Start.
type StartResult struct {
	Streams      []Stream
	PersistMode  session.PersistMode
	RestoreToken string
}

// WorkerStarter launches capture workers.
type WorkerStarter interface {
	Start(ctx context.Context, p capture.Params) (cast.Worker, error)
}

// Publisher makes request and session objects addressable by clients.
type Publisher interface {
	// PublishRequest exposes a request object at path until release is
	// called. Closing the request invokes cancel.
	PublishRequest(path string, cancel context.CancelFunc) (release func(), err error)
	// PublishSession exposes a session object at path. Closing it invokes
	// onClose.
	PublishSession(path string, onClose func()) error
	// UnpublishSession removes a session object. Unknown paths are ignored.
	UnpublishSession(path string)
}
