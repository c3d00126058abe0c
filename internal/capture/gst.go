package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/bryanchriswhite/portalcast/internal/logger"
	"github.com/tinyzimmer/go-gst/gst"
)

var gstInit sync.Once

// GstWorker runs the pipeline inside this process through go-gst.
type GstWorker struct {
	nodeID   uint32
	pipeline *gst.Pipeline
	stopOnce sync.Once
	stopErr  error
}

func startGstWorker(ctx context.Context, cfg Config, desc, nodeName string) (*GstWorker, error) {
	gstInit.Do(func() { gst.Init(nil) })

	pipeline, err := gst.NewPipelineFromString(desc)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	w := &GstWorker{pipeline: pipeline}
	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.Unref()
		return nil, fmt.Errorf("failed to start pipeline: %w", err)
	}

	// The in-process pipeline has no exit notification; rely on the timeout.
	nodeID, err := waitForNode(ctx, cfg.PwDump, nodeName, cfg.NodeTimeout, nil)
	if err != nil {
		w.Stop()
		return nil, err
	}
	w.nodeID = nodeID

	logger.WithComponent("capture").Debug().Uint32("node_id", nodeID).Msg("In-process pipeline playing")
	return w, nil
}

// NodeID returns the PipeWire node id of the stream
func (w *GstWorker) NodeID() uint32 {
	return w.nodeID
}

// Stop tears the pipeline down
func (w *GstWorker) Stop() error {
	w.stopOnce.Do(func() {
		if err := w.pipeline.SetState(gst.StateNull); err != nil {
			w.stopErr = fmt.Errorf("failed to stop pipeline: %w", err)
		}
		w.pipeline.Unref()
	})
	return w.stopErr
}
