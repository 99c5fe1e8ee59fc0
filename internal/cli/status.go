package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sitesage/sitesage/internal/service"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the index currently holds",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, closeStore, err := service.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	st, err := svc.Status(ctx)
	if err != nil {
		return err
	}
	printStatus(cmd, st)
	return nil
}

func printStatus(cmd *cobra.Command, st service.Status) {
	cmd.Printf("Target URL:       %s\n", st.TargetURL)
	cmd.Printf("Last generation:  %d\n", st.LastGeneration)
	if st.LastUpdateTime.IsZero() {
		cmd.Printf("Last update:      never\n")
	} else {
		cmd.Printf("Last update:      %s\n", st.LastUpdateTime.Format(time.RFC3339))
	}
	cmd.Printf("Indexed chunks:   %d\n", st.IndexedChunkCount)
	cmd.Printf("Update running:   %v\n", st.UpdateInProgress)
}
