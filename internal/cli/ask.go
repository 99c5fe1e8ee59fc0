package cli

import (
	"bufio"
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sitesage/sitesage/internal/answer"
	"github.com/sitesage/sitesage/internal/service"
)

var (
	askSources int
	askStream  bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about the site's content",
	Long: `With a question argument, answers it once and exits. Without one,
starts an interactive session where each line is a question; the words
update, status and quit are treated as commands instead.`,
	Args: cobra.ArbitraryArgs,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askSources, "sources", "n", 0, "number of sources to retrieve (0 uses the configured default)")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "print the answer as it is generated")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, closeStore, err := service.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if st, err := svc.Status(ctx); err == nil && st.IndexedChunkCount == 0 {
		cmd.Println("The index is empty; run \"sitesage update\" first (the memory backend does not persist between runs).")
	}

	if len(args) > 0 {
		return askOnce(ctx, cmd, svc, strings.Join(args, " "))
	}
	return interact(ctx, cmd, svc)
}

func askOnce(ctx context.Context, cmd *cobra.Command, svc *service.Service, question string) error {
	ans, err := answerQuestion(ctx, cmd, svc, question)
	if err != nil {
		return err
	}
	printAnswer(cmd, ans)
	return nil
}

// answerQuestion asks through the service, printing deltas as they arrive
// when streaming is on. The answer text itself is printed here in that case;
// printAnswer only adds the trailer.
func answerQuestion(ctx context.Context, cmd *cobra.Command, svc *service.Service, question string) (answer.Answer, error) {
	if askStream {
		ans, err := svc.AskStream(ctx, question, askSources, func(delta string) {
			cmd.Print(delta)
		})
		cmd.Println()
		return ans, err
	}
	ans, err := svc.Ask(ctx, question, askSources)
	if err != nil {
		return ans, err
	}
	cmd.Printf("%s\n", ans.Text)
	return ans, nil
}

func printAnswer(cmd *cobra.Command, ans answer.Answer) {
	cmd.Printf("\nConfidence: %s\n", ans.Confidence)
	if len(ans.Citations) == 0 {
		return
	}
	cmd.Println("Sources:")
	for _, c := range ans.Citations {
		if c.Title != "" {
			cmd.Printf("  [%d] %s (%s)\n", c.Source, c.Title, c.URL)
		} else {
			cmd.Printf("  [%d] %s\n", c.Source, c.URL)
		}
	}
}

func interact(ctx context.Context, cmd *cobra.Command, svc *service.Service) error {
	cmd.Println("Interactive session. Type a question, or: update, status, quit.")
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		cmd.Print("\n> ")
		if !scanner.Scan() {
			cmd.Println()
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch strings.ToLower(line) {
		case "quit", "exit", "q":
			return nil
		case "update":
			res, err := svc.TriggerUpdate(ctx)
			if err != nil {
				cmd.Printf("update failed: %v\n", err)
				continue
			}
			printUpdate(cmd, res)
			continue
		case "status":
			st, err := svc.Status(ctx)
			if err != nil {
				cmd.Printf("status failed: %v\n", err)
				continue
			}
			printStatus(cmd, st)
			continue
		}

		ans, err := answerQuestion(ctx, cmd, svc, line)
		if err != nil {
			cmd.Printf("error: %v\n", err)
			continue
		}
		printAnswer(cmd, ans)
	}
}
