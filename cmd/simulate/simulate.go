package simulate

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/rf2bridge/internal/conf"
	"github.com/tphakala/rf2bridge/internal/errors"
	"github.com/tphakala/rf2bridge/internal/shm"
	"github.com/tphakala/rf2bridge/internal/simulator"
)

// Command creates the command that plays a synthetic session into shared memory.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		interval time.Duration
		vehicles int
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Write a synthetic green flag session to shared memory",
		Long:  "Create the telemetry and scoring channels and update them like the game plugin does, for running the bridge without the simulator.",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := settings.SharedMemory.ResolvedBackend()
			if kind == shm.KindMemory {
				return errors.Newf("the memory backend is not shared between processes").
					Component("simulate").
					Category(errors.CategoryConfiguration).
					Build()
			}
			backend, err := shm.New(kind, settings.SharedMemory.Dir)
			if err != nil {
				return err
			}

			sim, err := simulator.New(backend, &settings.Bridge, vehicles)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return sim.Run(ctx, interval)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 20*time.Millisecond, "Update period")
	cmd.Flags().IntVar(&vehicles, "vehicles", simulator.DefaultVehicles, "Number of cars on track, the first is the player")

	return cmd
}
