package portal

import (
	"context"

	"github.com/bryanchriswhite/portalcast/internal/logger"
	"github.com/bryanchriswhite/portalcast/internal/screencast"
	"github.com/godbus/dbus/v5"
)

// D-Bus interface names of the backend side of xdg-desktop-portal.
const (
	ScreenCastInterface = "org.freedesktop.impl.portal.ScreenCast"
	RequestInterface    = "org.freedesktop.impl.portal.Request"
	SessionInterface    = "org.freedesktop.impl.portal.Session"
)

// Backend is the object exported as org.freedesktop.impl.portal.ScreenCast.
// Its exported methods are the D-Bus methods; each returns a response code
// and result dictionary, and a *dbus.Error only on backend failure.
type Backend struct {
	ctx   context.Context
	coord *screencast.Coordinator
}

// NewBackend wraps a coordinator. ctx bounds every call the backend serves.
func NewBackend(ctx context.Context, coord *screencast.Coordinator) *Backend {
	return &Backend{ctx: ctx, coord: coord}
}

func (b *Backend) CreateSession(
	handle, sessionHandle dbus.ObjectPath,
	appID string,
	options map[string]dbus.Variant,
) (uint32, map[string]dbus.Variant, *dbus.Error) {
	resp, res, err := b.coord.CreateSession(b.ctx, screencast.CreateRequest{
		RequestHandle: string(handle),
		SessionHandle: string(sessionHandle),
		AppID:         appID,
	})
	if err != nil {
		return b.fail("CreateSession", sessionHandle, err)
	}
	results := map[string]dbus.Variant{}
	if resp == screencast.ResponseSuccess {
		results["handle_token"] = dbus.MakeVariant(res.HandleToken)
	}
	return uint32(resp), results, nil
}

func (b *Backend) SelectSources(
	handle, sessionHandle dbus.ObjectPath,
	appID string,
	options map[string]dbus.Variant,
) (uint32, map[string]dbus.Variant, *dbus.Error) {
	log := logger.WithSession("portal", string(sessionHandle))
	resp, err := b.coord.SelectSources(b.ctx, screencast.SelectRequest{
		RequestHandle: string(handle),
		SessionHandle: string(sessionHandle),
		AppID:         appID,
		Preferences:   decodeSelectOptions(options, log),
	})
	if err != nil {
		return b.fail("SelectSources", sessionHandle, err)
	}
	return uint32(resp), map[string]dbus.Variant{}, nil
}

func (b *Backend) Start(
	handle, sessionHandle dbus.ObjectPath,
	appID, parentWindow string,
	options map[string]dbus.Variant,
) (uint32, map[string]dbus.Variant, *dbus.Error) {
	resp, res, err := b.coord.Start(b.ctx, screencast.StartRequest{
		RequestHandle: string(handle),
		SessionHandle: string(sessionHandle),
		AppID:         appID,
		ParentWindow:  parentWindow,
	})
	if err != nil {
		return b.fail("Start", sessionHandle, err)
	}
	if resp != screencast.ResponseSuccess {
		return uint32(resp), map[string]dbus.Variant{}, nil
	}
	return uint32(resp), encodeStartResult(res), nil
}

func (b *Backend) fail(method string, sessionHandle dbus.ObjectPath, err error) (uint32, map[string]dbus.Variant, *dbus.Error) {
	logger.WithSession("portal", string(sessionHandle)).Error().Err(err).Str("method", method).Msg("Backend failure")
	return uint32(screencast.ResponseOther), nil, dbus.MakeFailedError(err)
}
