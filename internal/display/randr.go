package display

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/portalcast/internal/logger"
)

// RandREnumerator lists outputs through the X RandR extension. Under a
// Wayland compositor this talks to XWayland, which mirrors the compositor's
// output layout.
type RandREnumerator struct {
	conn *xgb.Conn
	root xproto.Window
	mu   sync.Mutex
}

// NewRandREnumerator connects to the X server named by $DISPLAY
func NewRandREnumerator() (*RandREnumerator, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	if err := randr.Init(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("RandR extension not available: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	return &RandREnumerator{
		conn: conn,
		root: screen.Root,
	}, nil
}

// Close closes the X connection
func (e *RandREnumerator) Close() error {
	e.conn.Close()
	return nil
}

// ListOutputs returns every connected output that drives a CRTC, in the
// server's resource order.
func (e *RandREnumerator) ListOutputs(ctx context.Context) ([]Output, error) {
	// xgb requests are not cancellable; only the entry check honours ctx.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	log := logger.WithComponent("display")

	res, err := randr.GetScreenResourcesCurrent(e.conn, e.root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}

	outputs := make([]Output, 0, len(res.Outputs))
	for _, id := range res.Outputs {
		info, err := randr.GetOutputInfo(e.conn, id, res.ConfigTimestamp).Reply()
		if err != nil {
			log.Debug().Err(err).Uint32("output", uint32(id)).Msg("Skipping output without info")
			continue
		}
		if info.Connection != randr.ConnectionConnected || info.Crtc == 0 {
			continue
		}

		crtc, err := randr.GetCrtcInfo(e.conn, info.Crtc, res.ConfigTimestamp).Reply()
		if err != nil {
			log.Debug().Err(err).Str("output", string(info.Name)).Msg("Skipping output without CRTC info")
			continue
		}
		if crtc.Width == 0 || crtc.Height == 0 {
			continue
		}

		outputs = append(outputs, Output{
			Name:     string(info.Name),
			ID:       uint32(id),
			Position: image.Pt(int(crtc.X), int(crtc.Y)),
			Width:    int(crtc.Width),
			Height:   int(crtc.Height),
		})
	}

	log.Debug().Int("count", len(outputs)).Msg("Enumerated outputs")
	return outputs, nil
}
