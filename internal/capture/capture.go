package capture

import (
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/bryanchriswhite/portalcast/internal/display"
)

// Backend names accepted in config.
const (
	BackendSubprocess = "subprocess"
	BackendGStreamer  = "gstreamer"
)

// Params describes one stream to start.
type Params struct {
	// ShowCursor draws the pointer into the frames.
	ShowCursor bool
	// Width and Height are the stream's pixel dimensions.
	Width  int
	Height int
	// Region restricts capture to part of the output. Nil captures the
	// whole output.
	Region *image.Rectangle
	// Output is the display being captured.
	Output display.Output
}

// Config holds worker settings shared by all streams.
type Config struct {
	Backend     string
	Framerate   int
	NodeTimeout time.Duration
	// GstLaunch and PwDump are the helper binaries.
	GstLaunch string
	PwDump    string
}

func (c Config) withDefaults() Config {
	if c.Backend == "" {
		c.Backend = BackendSubprocess
	}
	if c.Framerate <= 0 {
		c.Framerate = 30
	}
	if c.NodeTimeout <= 0 {
		c.NodeTimeout = 5 * time.Second
	}
	if c.GstLaunch == "" {
		c.GstLaunch = "gst-launch-1.0"
	}
	if c.PwDump == "" {
		c.PwDump = "pw-dump"
	}
	return c
}

// captureRect returns the screen rectangle to grab.
func (p Params) captureRect() image.Rectangle {
	if p.Region != nil && !p.Region.Empty() {
		return *p.Region
	}
	return p.Output.Bounds()
}

// pipelineDescription builds a gst-launch style pipeline that grabs the
// capture rectangle and publishes it as a PipeWire Video/Source node named
// nodeName.
func pipelineDescription(p Params, framerate int, nodeName string) string {
	r := p.captureRect()
	width, height := p.Width, p.Height
	if width <= 0 || height <= 0 {
		width, height = r.Dx(), r.Dy()
	}

	// ximagesrc end coordinates are inclusive.
	parts := []string{
		fmt.Sprintf("ximagesrc use-damage=false show-pointer=%t startx=%d starty=%d endx=%d endy=%d",
			p.ShowCursor, r.Min.X, r.Min.Y, r.Max.X-1, r.Max.Y-1),
		fmt.Sprintf("video/x-raw,framerate=%d/1", framerate),
		"videoconvert",
		"videoscale",
		fmt.Sprintf("video/x-raw,format=BGRx,width=%d,height=%d", width, height),
		fmt.Sprintf("pipewiresink mode=provide stream-properties=\"properties,node.name=%s,media.class=Video/Source,node.description=%s\"",
			nodeName, p.Output.Name),
	}
	return strings.Join(parts, " ! ")
}
