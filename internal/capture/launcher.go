package capture

import (
	"context"
	"fmt"

	"github.com/bryanchriswhite/portalcast/internal/cast"
	"github.com/bryanchriswhite/portalcast/internal/logger"
	"github.com/google/uuid"
)

// Launcher starts capture workers on the configured backend.
type Launcher struct {
	cfg Config
}

// NewLauncher validates cfg and returns a launcher
func NewLauncher(cfg Config) (*Launcher, error) {
	cfg = cfg.withDefaults()
	switch cfg.Backend {
	case BackendSubprocess, BackendGStreamer:
	default:
		return nil, fmt.Errorf("unknown capture backend %q (use %q or %q)", cfg.Backend, BackendSubprocess, BackendGStreamer)
	}
	return &Launcher{cfg: cfg}, nil
}

// Backend returns the backend name in use
func (l *Launcher) Backend() string {
	return l.cfg.Backend
}

// Start launches a pipeline for p and waits until its PipeWire node is
// visible. On error nothing is left running.
func (l *Launcher) Start(ctx context.Context, p Params) (cast.Worker, error) {
	if p.Output.Width <= 0 || p.Output.Height <= 0 {
		return nil, fmt.Errorf("output %q has no usable mode", p.Output.Name)
	}

	nodeName := "portalcast-" + uuid.NewString()
	desc := pipelineDescription(p, l.cfg.Framerate, nodeName)

	log := logger.WithComponent("capture")
	log.Debug().
		Str("backend", l.cfg.Backend).
		Str("node_name", nodeName).
		Str("pipeline", desc).
		Msg("Starting capture worker")

	var (
		w   cast.Worker
		err error
	)
	switch l.cfg.Backend {
	case BackendGStreamer:
		w, err = startGstWorker(ctx, l.cfg, desc, nodeName)
	default:
		w, err = startSubprocessWorker(ctx, l.cfg, desc, nodeName)
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("backend", l.cfg.Backend).
		Uint32("node_id", w.NodeID()).
		Str("output", p.Output.Name).
		Bool("show_cursor", p.ShowCursor).
		Msg("Capture worker started")
	return w, nil
}
