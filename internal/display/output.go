package display

import (
	"context"
	"fmt"
	"image"
)

// Output is one enumerated display surface in global compositor coordinates.
type Output struct {
	// Name is the connector name reported by the server, e.g. "DP-1".
	Name string `json:"name"`
	// ID is the backend's own identifier for the output (RandR output XID).
	ID uint32 `json:"id"`
	// Position is the top-left corner of the output.
	Position image.Point `json:"position"`
	// Width and Height are the current mode's pixel dimensions.
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Bounds returns the output rectangle in global coordinates.
func (o Output) Bounds() image.Rectangle {
	return image.Rectangle{
		Min: o.Position,
		Max: o.Position.Add(image.Pt(o.Width, o.Height)),
	}
}

func (o Output) String() string {
	return fmt.Sprintf("%s %dx%d+%d+%d", o.Name, o.Width, o.Height, o.Position.X, o.Position.Y)
}

// Enumerator lists the outputs currently known to the display server.
type Enumerator interface {
	ListOutputs(ctx context.Context) ([]Output, error)
}

// Match returns the first output whose top-left corner is exactly at. Outputs
// sharing a position are not disambiguated; enumeration order decides.
func Match(outputs []Output, at image.Point) (Output, bool) {
	for _, o := range outputs {
		if o.Position == at {
			return o, true
		}
	}
	return Output{}, false
}
