package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/bryanchriswhite/portalcast/internal/logger"
)

// SubprocessWorker runs the pipeline in a gst-launch-1.0 child process so
// GStreamer crashes cannot take the portal down with them.
type SubprocessWorker struct {
	nodeID   uint32
	nodeName string
	cmd      *exec.Cmd
	exited   chan struct{}
	stopOnce sync.Once
	stopErr  error
}

func startSubprocessWorker(ctx context.Context, cfg Config, desc, nodeName string) (*SubprocessWorker, error) {
	log := logger.WithComponent("capture")

	// The child outlives the request that started it, so it is not bound to ctx.
	args := append([]string{"-q"}, strings.Fields(desc)...)
	cmd := exec.Command(cfg.GstLaunch, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", cfg.GstLaunch, err)
	}

	w := &SubprocessWorker{
		nodeName: nodeName,
		cmd:      cmd,
		exited:   make(chan struct{}),
	}

	go w.logStderr(stderr)
	go func() {
		err := cmd.Wait()
		close(w.exited)
		log.Debug().Err(err).Str("node_name", nodeName).Msg("gst-launch exited")
	}()

	nodeID, err := waitForNode(ctx, cfg.PwDump, nodeName, cfg.NodeTimeout, w.exited)
	if err != nil {
		w.Stop()
		return nil, err
	}
	w.nodeID = nodeID

	log.Debug().Int("pid", cmd.Process.Pid).Uint32("node_id", nodeID).Msg("gst-launch running")
	return w, nil
}

// NodeID returns the PipeWire node id of the stream
func (w *SubprocessWorker) NodeID() uint32 {
	return w.nodeID
}

// Stop kills the child and waits for it to exit
func (w *SubprocessWorker) Stop() error {
	w.stopOnce.Do(func() {
		select {
		case <-w.exited:
			w.stopErr = fmt.Errorf("capture process for %s had already exited", w.nodeName)
			return
		default:
		}
		if err := w.cmd.Process.Kill(); err != nil {
			w.stopErr = fmt.Errorf("failed to kill capture process: %w", err)
		}
		<-w.exited
	})
	return w.stopErr
}

func (w *SubprocessWorker) logStderr(r io.Reader) {
	log := logger.WithComponent("capture")
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "ERROR") || strings.Contains(line, "WARN") {
			log.Warn().Str("gst", line).Str("node_name", w.nodeName).Msg("GStreamer message")
		} else {
			log.Debug().Str("gst", line).Str("node_name", w.nodeName).Msg("GStreamer output")
		}
	}
}
