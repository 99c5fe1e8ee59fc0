package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sitesage/sitesage/internal/service"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Crawl the site once and refresh the index",
	Args:  cobra.NoArgs,
	RunE:  runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, closeStore, err := service.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	res, err := svc.TriggerUpdate(ctx)
	if err != nil {
		return err
	}
	printUpdate(cmd, res)
	return nil
}

func printUpdate(cmd *cobra.Command, res service.UpdateResult) {
	if res.Changed {
		cmd.Printf("Indexed %d chunks from %d pages (generation %d).\n",
			res.ChunksIndexed, res.PagesCrawled, res.Generation)
	} else {
		cmd.Printf("No changes across %d pages, index left as is (generation %d).\n",
			res.PagesCrawled, res.Generation)
	}
}
