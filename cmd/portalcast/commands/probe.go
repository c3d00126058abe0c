package commands

import (
	"fmt"

	"github.com/bryanchriswhite/portalcast/internal/client"
	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Drive a screencast against a running backend",
	Long: `Call CreateSession, SelectSources and Start on a running backend the way
xdg-desktop-portal does, then print the PipeWire node id it returns.

Start waits for you to pick an output. Interrupt to cancel the request.`,
	Example: `  # Probe the configured backend
  portalcast probe

  # Ask for an embedded cursor and leave the stream running
  portalcast probe --cursor embedded --keep`,
	RunE: runProbe,
}

var (
	probeCursor string
	probeKeep   bool
	probeAppID  string
)

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().StringVar(&probeCursor, "cursor", "", "cursor mode to request (hidden or embedded)")
	probeCmd.Flags().BoolVar(&probeKeep, "keep", false, "leave the session open after Start")
	probeCmd.Flags().StringVar(&probeAppID, "app-id", "org.freedesktop.portalcast.Probe", "app id sent with each call")
}

func runProbe(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	opts := client.ProbeOptions{AppID: probeAppID, Keep: probeKeep}
	switch probeCursor {
	case "":
	case "hidden":
		opts.CursorMode = client.CursorModeHidden
	case "embedded":
		opts.CursorMode = client.CursorModeEmbedded
	default:
		return fmt.Errorf("unsupported cursor mode: %s (use 'hidden' or 'embedded')", probeCursor)
	}

	c, err := client.Connect(cfg.BusName, dbus.ObjectPath(cfg.ObjectPath))
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signalContext(cmd)
	defer stop()

	props, err := c.Properties(ctx)
	if err != nil {
		return fmt.Errorf("backend %s is not reachable: %w", cfg.BusName, err)
	}
	fmt.Printf("Backend version %d, cursor modes %#b, source types %#b\n",
		props.Version, props.AvailableCursorModes, props.AvailableSourceTypes)

	res, err := c.Probe(ctx, opts)
	if err != nil {
		return err
	}

	switch res.Response {
	case 0:
	case 1:
		fmt.Println("Cancelled.")
		return nil
	default:
		return fmt.Errorf("backend refused the request (response %d)", res.Response)
	}

	for _, s := range res.Streams {
		fmt.Printf("✅ node %d  %dx%d at %d,%d\n", s.NodeID, s.Size.X, s.Size.Y, s.Position.X, s.Position.Y)
	}
	if probeKeep {
		fmt.Printf("Session %s left open\n", res.SessionHandle)
	}
	return nil
}
