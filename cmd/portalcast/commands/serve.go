package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/portalcast/internal/api"
	"github.com/bryanchriswhite/portalcast/internal/capture"
	"github.com/bryanchriswhite/portalcast/internal/config"
	"github.com/bryanchriswhite/portalcast/internal/display"
	"github.com/bryanchriswhite/portalcast/internal/logger"
	"github.com/bryanchriswhite/portalcast/internal/portal"
	"github.com/bryanchriswhite/portalcast/internal/screencast"
	"github.com/bryanchriswhite/portalcast/internal/selector"
	"github.com/godbus/dbus/v5"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ScreenCast backend on the session bus",
	Long: `Claim the backend bus name and serve org.freedesktop.impl.portal.ScreenCast
until interrupted. xdg-desktop-portal normally starts this through D-Bus
activation.`,
	Example: `  # Run with the configured bus name
  portalcast serve

  # Run with debug logging and the status API
  portalcast serve --log-level debug --api-listen 127.0.0.1:8787`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Init(cfg.LogLevel, cfg.LogPretty)
	log := logger.WithComponent("serve")
	log.Info().Str("config", configMgr.GetConfigPath()).Msg("Configuration loaded")

	ctx, stop := signalContext(cmd)
	defer stop()

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer conn.Close()

	outputs, err := display.NewRandREnumerator()
	if err != nil {
		return fmt.Errorf("failed to initialize output enumeration: %w", err)
	}
	defer outputs.Close()

	launcher, err := capture.NewLauncher(capture.Config{
		Backend:     cfg.Capture.Backend,
		Framerate:   cfg.Capture.Framerate,
		NodeTimeout: cfg.Capture.NodeTimeout,
		GstLaunch:   cfg.Capture.GstLaunch,
		PwDump:      cfg.Capture.PwDump,
	})
	if err != nil {
		return err
	}

	coord := screencast.New(screencast.Deps{
		Outputs:   outputs,
		Selector:  selector.NewCommand(cfg.Selector.Command, selector.DefaultAreaCommand()),
		Workers:   launcher,
		Publisher: portal.NewObjects(conn),
	})
	defer coord.Shutdown()

	srv, err := portal.Serve(conn, portal.NewBackend(ctx, coord), cfg.BusName, dbus.ObjectPath(cfg.ObjectPath))
	if err != nil {
		return err
	}
	defer srv.Close()

	err = configMgr.Watch(ctx, func(next *config.Config) {
		applyOverrides(next)
		logger.SetLevel(next.LogLevel)
		log.Info().Str("log_level", next.LogLevel).Msg("Applied config change")
	})
	if err != nil {
		log.Warn().Err(err).Msg("Config changes will need a restart")
	}

	var wg conc.WaitGroup
	if cfg.API.Enabled {
		wg.Go(func() {
			if err := api.NewServer(coord, Version).Start(ctx, cfg.API.Listen); err != nil {
				log.Error().Err(err).Msg("Status API stopped")
			}
		})
	}

	log.Info().
		Str("bus_name", cfg.BusName).
		Str("capture_backend", launcher.Backend()).
		Bool("api", cfg.API.Enabled).
		Msg("portalcast is running")

	<-ctx.Done()
	log.Info().Msg("Shutting down gracefully...")
	wg.Wait()
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
