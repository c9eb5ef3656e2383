package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/labdeck/pkg/api"
	"github.com/cuemby/labdeck/pkg/config"
	"github.com/cuemby/labdeck/pkg/events"
	"github.com/cuemby/labdeck/pkg/health"
	"github.com/cuemby/labdeck/pkg/log"
	"github.com/cuemby/labdeck/pkg/manager"
	"github.com/cuemby/labdeck/pkg/metrics"
	"github.com/cuemby/labdeck/pkg/poller"
	"github.com/cuemby/labdeck/pkg/security"
	"github.com/cuemby/labdeck/pkg/storage"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "labdeck",
	Short: "Labdeck - home-lab control panel backend",
	Long: `Labdeck keeps track of the services running in a home lab
(Jexactyl panels, qBittorrent WebUIs, Glances agents) and pushes their
status, torrent progress and server metrics to connected browsers over
a websocket.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Labdeck version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to labdeck.yaml")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit JSON logs")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file named by --config and applies the
// persistent flag overrides, then initializes logging from the result
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if jsonOut, _ := cmd.Flags().GetBool("log-json"); jsonOut {
		cfg.Log.JSON = true
	}

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
	return cfg, nil
}

// openSecrets returns nil when no secret key is configured. Instances
// with passwords cannot be added in that mode.
func openSecrets(cfg *config.Config) (*security.SecretsManager, error) {
	if cfg.SecretKey == "" {
		return nil, nil
	}
	sm, err := security.NewSecretsManagerFromPassword(cfg.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create secrets manager: %v", err)
	}
	return sm, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Labdeck version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the realtime hub, the pollers and the API server",
	Long: `Run labdeck in the foreground.

This starts the websocket hub, the Glances and qBittorrent pollers, the
instance reachability monitor and the HTTP API. Ctrl+C (or SIGTERM)
closes every connection and shuts down cleanly.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "Listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Listen = listen
	}

	logger := log.WithComponent("labdeck")
	logger.Info().
		Str("version", Version).
		Str("listen", cfg.Listen).
		Str("data_dir", cfg.DataDir).
		Msg("Starting labdeck")

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %v", err)
	}
	defer store.Close()

	secrets, err := openSecrets(cfg)
	if err != nil {
		return err
	}
	var creds poller.Credentials
	if secrets != nil {
		creds = secrets
	} else {
		logger.Warn().Msg("No secretKey configured; instance credentials are disabled")
	}

	hub := events.NewHub()

	hc := metrics.NewHealthChecker(Version, "storage", "hub", "api")
	hc.Set("storage", true, "")
	hc.Set("hub", true, "")
	hc.SetCounters(func() map[string]int {
		st := hub.Stats()
		return map[string]int{
			"users":       st.Users,
			"connections": st.Connections,
		}
	})

	collector := metrics.NewCollector(store)
	collector.Start()
	defer collector.Stop()

	mgr := manager.NewManager(store, secrets, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsPoller := poller.NewMetricsPoller(store, creds, hub, poller.Config{
		Interval: cfg.Poll.MetricsInterval,
		Timeout:  cfg.Poll.Timeout,
	})
	torrentPoller := poller.NewTorrentPoller(store, creds, hub, poller.Config{
		Interval: cfg.Poll.TorrentInterval,
		Timeout:  cfg.Poll.Timeout,
	})
	monitor := health.NewMonitor(store, hub, health.Config{
		Interval: cfg.Poll.HealthInterval,
		Timeout:  cfg.Poll.Timeout,
		Retries:  cfg.Health.Retries,
	})

	metricsPoller.Start(ctx)
	torrentPoller.Start(ctx)
	monitor.Start(ctx)
	fmt.Println("✓ Pollers started")

	server := api.NewServer(api.Config{
		Hub:            hub,
		Manager:        mgr,
		Health:         hc,
		SendBuffer:     cfg.WebSocket.SendBuffer,
		AllowedOrigins: cfg.WebSocket.AllowedOrigins,
	})
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Listen); err != nil {
			errCh <- fmt.Errorf("API server error: %v", err)
		}
	}()
	hc.Set("api", true, "")
	fmt.Printf("✓ API listening on %s\n", cfg.Listen)

	fmt.Println()
	fmt.Println("Labdeck is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case runErr = <-errCh:
		fmt.Fprintf(os.Stderr, "\nError: %v\n", runErr)
	}

	hc.Set("api", false, "shutting down")
	metricsPoller.Stop()
	torrentPoller.Stop()
	monitor.Stop()
	hub.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("API server shutdown failed")
	}

	fmt.Println("✓ Shutdown complete")
	return runErr
}
