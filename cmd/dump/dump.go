package dump

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tphakala/rf2bridge/internal/bridge"
	"github.com/tphakala/rf2bridge/internal/conf"
	"github.com/tphakala/rf2bridge/internal/mapped"
	"github.com/tphakala/rf2bridge/internal/observability/metrics"
	"github.com/tphakala/rf2bridge/internal/publish"
	"github.com/tphakala/rf2bridge/internal/rf2"
	"github.com/tphakala/rf2bridge/internal/shm"
	"github.com/tphakala/rf2bridge/internal/snapshot"
)

var reasons = map[string]string{
	metrics.OutcomeGateClosed:  "session is not under green flag or a vehicle array is empty",
	metrics.OutcomeNoPlayer:    "no vehicle is flagged as the local player",
	metrics.OutcomeNoTelemetry: "player vehicle has no telemetry entry",
	metrics.OutcomeLockTimeout: "shared memory lock was busy",
}

// Command creates the one-shot read command.
func Command(settings *conf.Settings) *cobra.Command {
	var partial bool

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Read both channels once and print the tire message",
		Long:  "Connect to the simulator, read telemetry and scoring once, print the player's message as JSON or the reason none was produced, then disconnect.",
		RunE: func(cmd *cobra.Command, args []string) error {
			policy := mapped.PolicyFull
			if partial {
				policy = mapped.PolicyPartial
			}
			backend, err := shm.New(settings.SharedMemory.ResolvedBackend(), settings.SharedMemory.Dir)
			if err != nil {
				return err
			}
			return Run(cmd.Context(), backend, &settings.Bridge, policy, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&partial, "partial", false, "Copy only the bytes the writer marked as updated")

	return cmd
}

// Run performs a single tick against opener and writes the result to out.
// Both channels are disconnected before it returns.
func Run(ctx context.Context, opener shm.Opener, s *conf.BridgeSettings, policy mapped.Policy, out io.Writer) error {
	cfg, err := bridge.ConfigFromSettings(s)
	if err != nil {
		return err
	}
	cfg.Policy = policy

	tel := rf2.NewTelemetryReader(opener, s.Telemetry, mapped.WithLockTimeout(s.LockTimeout))
	sc := rf2.NewScoringReader(opener, s.Scoring, mapped.WithLockTimeout(s.LockTimeout))
	defer func() {
		_ = tel.Disconnect()
		_ = sc.Disconnect()
	}()

	if err := tel.Connect(); err != nil {
		return err
	}
	if err := sc.Connect(); err != nil {
		return err
	}

	printer := publish.Func(func(_ context.Context, msg *snapshot.Message) error {
		data, err := json.MarshalIndent(msg, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	})

	driver := bridge.NewDriver(tel, sc, printer, cfg, uuid.NewString(), nil)
	outcome, err := driver.Tick(ctx)
	if err != nil {
		return err
	}
	if reason, ok := reasons[outcome]; ok {
		_, err = fmt.Fprintf(out, "no message: %s\n", reason)
	}
	return err
}
