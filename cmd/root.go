package cmd

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/rf2bridge/cmd/bridge"
	"github.com/tphakala/rf2bridge/cmd/config"
	"github.com/tphakala/rf2bridge/cmd/dump"
	"github.com/tphakala/rf2bridge/cmd/simulate"
	"github.com/tphakala/rf2bridge/internal/buildinfo"
	"github.com/tphakala/rf2bridge/internal/conf"
	"github.com/tphakala/rf2bridge/internal/errors"
	"github.com/tphakala/rf2bridge/internal/logger"
)

const sentryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command. settings is filled in
// before any subcommand runs.
func RootCommand(settings *conf.Settings) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "rf2bridge",
		Short:         "rFactor 2 tire telemetry bridge",
		Version:       buildinfo.Current().GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, &configFile); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		bridge.Command(settings),
		dump.Command(settings),
		simulate.Command(settings),
		config.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		*settings = *loaded
		return initialize(settings)
	}

	cobra.OnFinalize(finalize)

	return rootCmd
}

// initialize sets up logging and optional error reporting once settings are loaded.
func initialize(settings *conf.Settings) error {
	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)

	if settings.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              settings.Sentry.DSN,
			SampleRate:       1.0,
			AttachStacktrace: false,
			ServerName:       "", // keep the hostname out of reports
			Release:          "rf2bridge@" + buildinfo.Current().GetVersion(),
		}); err != nil {
			return fmt.Errorf("sentry initialization failed: %w", err)
		}
		errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	}
	return nil
}

func finalize() {
	if conf.GetSettings() != nil && conf.GetSettings().Sentry.Enabled {
		sentry.Flush(sentryFlushTimeout)
	}
	_ = logger.Global().Close()
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	rootCmd.PersistentFlags().StringVarP(configFile, "config", "c", "", "Path to config.yaml (default: search the standard locations)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
