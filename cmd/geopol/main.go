// Package main provides the entry point for the geopol CLI application
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/geopol/geopol-go/internal/api"
	"github.com/geopol/geopol-go/internal/app"
	"github.com/geopol/geopol-go/internal/config"
	"github.com/geopol/geopol-go/internal/geo"
	"github.com/geopol/geopol-go/internal/logging"
	"github.com/geopol/geopol-go/internal/maphost"
	"github.com/geopol/geopol-go/internal/overlay"
	"github.com/geopol/geopol-go/internal/profile"
	"github.com/geopol/geopol-go/internal/status"
	"github.com/geopol/geopol-go/internal/storage"
	"github.com/geopol/geopol-go/internal/theme"
)

// options holds the global flags
type options struct {
	server     string
	profile    string
	theme      string
	configPath string
	logLevel   string
	noStatus   bool
	listThemes bool
	exportDir  string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "geopol",
		Short: "geopol - Geopolitical Map Dashboard",
		Long: `geopol - Geopolitical Map Dashboard

Terminal map with geopolitical entities, SDR receivers, weather and
earthquake overlays. Overlay selections are saved as named profiles.
Settings saved to ~/.config/geopol/settings.json

Profiles:
  geopol profiles list            List built-in and saved profiles
  geopol profiles save NAME       Save the remembered view under NAME
  geopol profiles export NAME     Write a profile to a JSON file
  geopol profiles import FILE     Validate and save a profile file

Export:
  [X] Markers to CSV              Export markers of enabled overlays
  [C] Capture map                 Save the map view as plain text

Examples:
  geopol --profile analyst
  geopol --server http://geo.local:5000 --theme satellite
  geopol status`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, opts)
		},
	}

	// Global flags (available to all commands)
	cmd.PersistentFlags().StringVar(&opts.server, "server", "", "Backend base URL")
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Settings file (default ~/.config/geopol/settings.json)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	// Root command flags
	cmd.Flags().StringVar(&opts.profile, "profile", "", "Profile to apply at start (default: last used)")
	cmd.Flags().StringVar(&opts.theme, "theme", "", "Color theme (light, dark, satellite)")
	cmd.Flags().BoolVar(&opts.noStatus, "no-status", false, "Disable the backend liveness monitor")
	cmd.Flags().BoolVar(&opts.listThemes, "list-themes", false, "List available themes")
	cmd.Flags().StringVar(&opts.exportDir, "export-dir", "", "Directory for export files (default: current directory)")

	// Add subcommands
	cmd.AddCommand(newProfilesCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))

	return cmd
}

// errReported signals a failure the user has already been told about
var errReported = errors.New("operation failed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// loadConfig reads the settings file and applies flag overrides
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	// Apply command line overrides
	if opts.server != "" {
		cfg.Connection.ServerURL = strings.TrimRight(opts.server, "/")
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.theme != "" {
		if !theme.Valid(opts.theme) {
			return nil, fmt.Errorf("unknown theme %q (available: %s)", opts.theme, strings.Join(theme.List(), ", "))
		}
		cfg.Display.Theme = opts.theme
	}
	if opts.exportDir != "" {
		absPath, err := filepath.Abs(opts.exportDir)
		if err == nil {
			cfg.Export.Directory = absPath
		} else {
			cfg.Export.Directory = opts.exportDir
		}
	}
	return cfg, nil
}

// environment is the set of components shared by every command
type environment struct {
	cfg      *config.Config
	log      zerolog.Logger
	client   *api.Client
	store    *storage.Store
	host     *maphost.Host
	overlays *overlay.Registry
	themes   *theme.Selector
	profiles *profile.Manager

	closers []io.Closer
}

// setup builds the components from configuration. onUpdate receives overlay
// phase changes; profileOpts configure the profile manager.
func setup(opts *options, onUpdate func(overlay.Update), profileOpts ...profile.Option) (*environment, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	log, logCloser, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return nil, err
	}
	env := &environment{cfg: cfg, log: log, closers: []io.Closer{logCloser}}

	env.client = api.New(cfg.Connection.ServerURL,
		api.WithTimeout(cfg.FetchTimeout()),
		api.WithLogger(log.With().Str("component", "api").Logger()))

	store, err := storage.Open(cfg.Storage.CachePath, log.With().Str("component", "storage").Logger())
	if err != nil {
		// Profiles still work against the backend alone
		log.Warn().Err(err).Str("path", cfg.Storage.CachePath).Msg("Local profile cache unavailable")
	} else {
		env.store = store
		env.closers = append(env.closers, store)
	}

	env.host = maphost.New(
		maphost.WithZoomBounds(cfg.Map.MinZoom, cfg.Map.MaxZoom),
		maphost.WithLogger(log.With().Str("component", "map").Logger()))
	if err := env.host.Initialize("map", maphost.Viewport{
		Center: geo.LatLng{Lat: cfg.Map.CenterLat, Lng: cfg.Map.CenterLng},
		Zoom:   cfg.Map.Zoom,
	}); err != nil {
		env.Close()
		return nil, err
	}

	env.overlays, err = overlay.Build(env.host, env.client, cfg, log, onUpdate)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.themes = theme.NewSelector(cfg.Display.Theme)

	deps := profile.Deps{
		Remote:   env.client,
		Overlays: env.overlays,
		Host:     env.host,
		Themes:   env.themes,
	}
	if env.store != nil {
		deps.Local = env.store
	}
	profileOpts = append([]profile.Option{
		profile.WithLogger(log.With().Str("component", "profiles").Logger()),
		profile.WithExportDir(cfg.Export.Directory),
	}, profileOpts...)
	env.profiles = profile.New(deps, profileOpts...)

	return env, nil
}

// Close stops the overlays and releases the cache and log file
func (e *environment) Close() {
	if e.overlays != nil {
		e.overlays.StopAll()
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			e.log.Warn().Err(err).Msg("Close failed")
		}
	}
}

func runTUI(cmd *cobra.Command, opts *options) error {
	// List themes if requested
	if opts.listThemes {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "\nAvailable Themes:")
		for _, t := range theme.GetInfo() {
			fmt.Fprintf(out, "  %-12s %-12s - %s\n", t.Key, t.Name, t.Description)
		}
		fmt.Fprintln(out)
		return nil
	}

	bridge := app.NewBridge()
	env, err := setup(opts, bridge.OverlayUpdate,
		profile.WithConfirmer(bridge),
		profile.WithNotifier(bridge))
	if err != nil {
		return err
	}
	defer env.Close()
	env.profiles.OnChange(bridge.ProfileEvent)

	var monitor *status.Monitor
	if !opts.noStatus {
		monitor = newMonitor(env)
	}

	model := app.New(app.Deps{
		Config:         env.cfg,
		Host:           env.host,
		Overlays:       env.overlays,
		Profiles:       env.profiles,
		Themes:         env.themes,
		Monitor:        monitor,
		Bridge:         bridge,
		InitialProfile: opts.profile,
		Log:            env.log.With().Str("component", "app").Logger(),
	})

	env.log.Info().Str("server", env.cfg.Connection.ServerURL).Msg("Starting geopol")

	// Create and run the Bubble Tea program
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\n  Session closed.\n\n")
	return nil
}

// newMonitor creates the liveness monitor, streaming when configured
func newMonitor(env *environment) *status.Monitor {
	monOpts := []status.Option{
		status.WithInterval(env.cfg.StatusInterval()),
		status.WithReconnectDelay(time.Duration(env.cfg.Status.ReconnectDelaySec) * time.Second),
		status.WithLogger(env.log.With().Str("component", "status").Logger()),
	}
	if env.cfg.Status.Stream {
		if url, err := status.StreamURL(env.cfg.Connection.ServerURL); err == nil {
			monOpts = append(monOpts, status.WithStream(url))
		} else {
			env.log.Warn().Err(err).Msg("Status stream disabled")
		}
	}
	return status.New(env.client, monOpts...)
}

// promptConfirmer asks on the command's stderr and reads the answer from its
// stdin. assumeYes answers every question with yes.
func promptConfirmer(cmd *cobra.Command, assumeYes bool) profile.ConfirmFunc {
	reader := bufio.NewReader(cmd.InOrStdin())
	return func(question string) bool {
		if assumeYes {
			return true
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s [y/N]: ", question)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		default:
			return false
		}
	}
}

// stderrNotifier prints notices to the command's stderr
func stderrNotifier(cmd *cobra.Command) profile.NotifyFunc {
	return func(level profile.Level, message string) {
		prefix := "✓"
		if level == profile.LevelAlert {
			prefix = "⚠"
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", prefix, message)
	}
}

// commandContext bounds a one-shot command by the fetch timeout
func commandContext(cmd *cobra.Command, env *environment) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, 4*env.cfg.FetchTimeout())
}
