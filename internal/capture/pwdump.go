package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"
)

const pwNodeType = "PipeWire:Interface:Node"

type pwObject struct {
	ID   uint32 `json:"id"`
	Type string `json:"type"`
	Info *struct {
		Props map[string]any `json:"props"`
	} `json:"info"`
}

// findNodeID scans pw-dump JSON for a node whose node.name equals name.
func findNodeID(data []byte, name string) (uint32, bool, error) {
	var objects []pwObject
	if err := json.Unmarshal(data, &objects); err != nil {
		return 0, false, fmt.Errorf("failed to parse pw-dump output: %w", err)
	}
	for _, obj := range objects {
		if obj.Type != pwNodeType || obj.Info == nil {
			continue
		}
		if n, _ := obj.Info.Props["node.name"].(string); n == name {
			return obj.ID, true, nil
		}
	}
	return 0, false, nil
}

// waitForNode polls pw-dump until the named node appears, timeout elapses,
// or ctx is done. exited reports early termination of the producer.
func waitForNode(ctx context.Context, pwDump, name string, timeout time.Duration, exited <-chan struct{}) (uint32, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		out, err := exec.CommandContext(ctx, pwDump).Output()
		if err == nil {
			id, ok, perr := findNodeID(out, name)
			if perr != nil {
				return 0, perr
			}
			if ok {
				return id, nil
			}
		} else if ctx.Err() == nil {
			return 0, fmt.Errorf("%s failed: %w", pwDump, err)
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-exited:
			return 0, fmt.Errorf("capture pipeline exited before node %s appeared", name)
		case <-deadline.C:
			return 0, fmt.Errorf("timeout waiting for PipeWire node %s", name)
		case <-ticker.C:
		}
	}
}
