package selector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"unicode"

	"github.com/bryanchriswhite/portalcast/internal/logger"
)

// Kind is what the user is asked to pick.
type Kind int

const (
	// KindScreen picks a whole output.
	KindScreen Kind = iota
	// KindArea picks a free-form rectangle.
	KindArea
)

func (k Kind) String() string {
	if k == KindArea {
		return "area"
	}
	return "screen"
}

// Region is the user's pick in global compositor coordinates.
type Region struct {
	Position image.Point
	Width    int
	Height   int
}

// Rect returns the region as a rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rectangle{Min: r.Position, Max: r.Position.Add(image.Pt(r.Width, r.Height))}
}

// Selector asks the user for a region. A nil region with a nil error means
// the user cancelled. Implementations must not time out on their own.
type Selector interface {
	SelectRegion(ctx context.Context, kind Kind) (*Region, error)
}

// cancelExitCode is what slurp and slop exit with when the user aborts.
const cancelExitCode = 1

// Command runs an external picker such as slurp or slop and parses the four
// integers x, y, width and height from its stdout.
type Command struct {
	// Screen is the argv used for KindScreen.
	Screen []string
	// Area is the argv used for KindArea. Falls back to Screen when empty.
	Area []string
}

// DefaultScreenCommand picks a whole output with the picker that fits the
// running session: slurp on Wayland, slop on X11.
func DefaultScreenCommand() []string {
	return ScreenCommandFor(os.Getenv)
}

// DefaultAreaCommand picks a rectangle with the session's picker.
func DefaultAreaCommand() []string {
	return AreaCommandFor(os.Getenv)
}

// ScreenCommandFor resolves the screen picker against getenv.
func ScreenCommandFor(getenv func(string) string) []string {
	if IsWayland(getenv) {
		return []string{"slurp", "-o", "-f", regionFormat}
	}
	return []string{"slop", "-f", regionFormat}
}

// AreaCommandFor resolves the area picker against getenv.
func AreaCommandFor(getenv func(string) string) []string {
	if IsWayland(getenv) {
		return []string{"slurp", "-f", regionFormat}
	}
	return []string{"slop", "-f", regionFormat}
}

// IsWayland reports whether getenv describes a Wayland session.
func IsWayland(getenv func(string) string) bool {
	return getenv("WAYLAND_DISPLAY") != "" || getenv("XDG_SESSION_TYPE") == "wayland"
}

const regionFormat = "%x %y %w %h"

// NewCommand creates a command-backed selector. An empty screen argv is
// resolved for the current session.
func NewCommand(screen, area []string) *Command {
	if len(screen) == 0 {
		screen = DefaultScreenCommand()
	}
	return &Command{Screen: screen, Area: area}
}

// SelectRegion runs the picker and blocks until it exits. Cancelling ctx
// kills the picker and is reported as a user cancellation.
func (c *Command) SelectRegion(ctx context.Context, kind Kind) (*Region, error) {
	argv := c.Screen
	if kind == KindArea && len(c.Area) > 0 {
		argv = c.Area
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("no selector command configured")
	}

	log := logger.WithComponent("selector")
	log.Debug().Strs("argv", argv).Stringer("kind", kind).Msg("Waiting for user selection")

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()

	if ctx.Err() != nil {
		log.Info().Msg("Selection aborted by request")
		return nil, nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == cancelExitCode && len(strings.TrimSpace(string(out))) == 0 {
			log.Info().Str("stderr", strings.TrimSpace(stderr.String())).Msg("Selection cancelled by user")
			return nil, nil
		}
		return nil, fmt.Errorf("%s failed: %w: %s", argv[0], err, strings.TrimSpace(stderr.String()))
	}

	region, err := ParseRegion(string(out))
	if err != nil {
		return nil, err
	}

	log.Info().
		Int("x", region.Position.X).
		Int("y", region.Position.Y).
		Int("width", region.Width).
		Int("height", region.Height).
		Msg("Region selected")
	return region, nil
}

// ParseRegion extracts x, y, width and height from picker output. Both
// "x y w h" and slurp's default "x,y wxh" layouts are accepted.
func ParseRegion(output string) (*Region, error) {
	fields := strings.FieldsFunc(strings.TrimSpace(output), func(r rune) bool {
		return !unicode.IsDigit(r) && r != '-'
	})
	if len(fields) != 4 {
		return nil, fmt.Errorf("unexpected selector output %q", strings.TrimSpace(output))
	}

	var nums [4]int
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("unexpected selector output %q: %w", strings.TrimSpace(output), err)
		}
		nums[i] = n
	}
	if nums[2] <= 0 || nums[3] <= 0 {
		return nil, fmt.Errorf("selector returned empty region %dx%d", nums[2], nums[3])
	}

	return &Region{
		Position: image.Pt(nums[0], nums[1]),
		Width:    nums[2],
		Height:   nums[3],
	}, nil
}
