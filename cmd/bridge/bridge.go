package bridge

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/rf2bridge/internal/bridge"
	"github.com/tphakala/rf2bridge/internal/buildinfo"
	"github.com/tphakala/rf2bridge/internal/conf"
	"github.com/tphakala/rf2bridge/internal/hub"
	"github.com/tphakala/rf2bridge/internal/logger"
	"github.com/tphakala/rf2bridge/internal/mapped"
	"github.com/tphakala/rf2bridge/internal/mqtt"
	"github.com/tphakala/rf2bridge/internal/observability"
	"github.com/tphakala/rf2bridge/internal/publish"
	"github.com/tphakala/rf2bridge/internal/rf2"
	"github.com/tphakala/rf2bridge/internal/shm"
)

// Command creates the command that runs the bridge service.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Run the telemetry bridge",
		Long:  "Wait for the simulator, then publish the player's tire temperatures every tick until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(ctx, settings)
		},
	}

	// Set up flags specific to the 'bridge' command
	if err := setupFlags(cmd); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().Duration("interval", 0, "Polling interval (default from config, 200ms)")
	cmd.Flags().String("readpolicy", "", "Shared memory read policy: partial or full")
	cmd.Flags().String("listen", "", "Listen address of the web server")
	cmd.Flags().Bool("mqtt", false, "Publish to the configured MQTT broker")

	for key, flag := range map[string]string{
		"bridge.interval":   "interval",
		"bridge.readpolicy": "readpolicy",
		"webserver.listen":  "listen",
		"mqtt.enabled":      "mqtt",
	} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}
	}
	return nil
}

// Run wires the readers, transports and supervisor and blocks until ctx is
// cancelled or a server fails.
func Run(ctx context.Context, settings *conf.Settings) error {
	log := logger.Global().Module("main")
	logHostInfo(log)

	cfg, err := bridge.ConfigFromSettings(&settings.Bridge)
	if err != nil {
		return err
	}

	backend, err := shm.New(settings.SharedMemory.ResolvedBackend(), settings.SharedMemory.Dir)
	if err != nil {
		return err
	}

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	readerOpts := []mapped.Option{
		mapped.WithLockTimeout(settings.Bridge.LockTimeout),
		mapped.WithMetrics(m.SharedMemory),
	}
	tel := rf2.NewTelemetryReader(backend, settings.Bridge.Telemetry, readerOpts...)
	sc := rf2.NewScoringReader(backend, settings.Bridge.Scoring, readerOpts...)

	latest := publish.NewLatestCache(publish.DefaultLatestTTL)
	wsHub := hub.NewHub(m.Transport)
	defer wsHub.Close()

	publishers := []publish.Publisher{latest, wsHub}
	if settings.MQTT.Enabled {
		client, err := mqtt.NewClient(mqtt.ConfigFromSettings(&settings.MQTT), m.MQTT)
		if err != nil {
			return err
		}
		// paho keeps retrying in the background after a failed first connect
		if err := client.Connect(ctx); err != nil {
			log.Warn("MQTT broker not reachable at startup", logger.Error(err))
		}
		defer client.Disconnect()
		publishers = append(publishers, client)
	}
	pub := publish.NewMulti(m.Transport, publishers...)

	supervisor := bridge.NewSupervisor(tel, sc, pub, cfg, bridge.WithBridgeMetrics(m.Bridge))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return supervisor.Run(gctx) })

	if settings.WebServer.Enabled {
		serverCfg := hub.Config{Listen: settings.WebServer.Listen}
		if settings.Metrics.Enabled && settings.Metrics.Listen == "" {
			serverCfg.Metrics = m.Handler()
		}
		server := hub.NewServer(serverCfg, wsHub, latest, supervisor)
		g.Go(func() error { return server.Run(gctx) })
	}

	if settings.Metrics.Enabled && settings.Metrics.Listen != "" {
		endpoint := observability.NewEndpoint(settings.Metrics.Listen, m)
		g.Go(func() error { return endpoint.Run(gctx) })
	}

	log.Info("rf2bridge starting",
		logger.String("version", buildinfo.Current().GetVersion()),
		logger.String("backend", backend.Kind()),
		logger.String("read_policy", cfg.Policy.String()),
		logger.Int("publishers", pub.Len()))

	err = g.Wait()
	log.Info("rf2bridge stopped")
	return err
}

func logHostInfo(log logger.Logger) {
	info, err := host.Info()
	if err != nil {
		log.Warn("Error retrieving host info", logger.Error(err))
		return
	}
	log.Info("System details",
		logger.String("os", info.OS),
		logger.String("platform", info.Platform),
		logger.String("platform_version", info.PlatformVersion),
		logger.String("kernel_arch", info.KernelArch))
}
