package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sitesage/sitesage/internal/scheduler"
	"github.com/sitesage/sitesage/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Keep the index fresh on a schedule",
	Long: `Runs an update immediately, then again every updateFrequencyMinutes
until interrupted. If a refresh is still running when the next tick
arrives, that tick is skipped.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, closeStore, err := service.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	task := func(ctx context.Context) error {
		_, err := svc.TriggerUpdate(ctx)
		if errors.Is(err, service.ErrUpdateInProgress) {
			logger.Info("previous update still running, skipping this tick")
			return nil
		}
		return err
	}

	sched := scheduler.New(cfg.UpdateInterval(), task, logger)
	defer sched.Stop()

	logger.Info("serving", "target", cfg.TargetURL, "interval", cfg.UpdateInterval())
	if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shut down")
	return nil
}
