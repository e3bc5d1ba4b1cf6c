package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fwdctl/internal/server"
)

var (
	logsFollow   bool
	logsInterval time.Duration
)

var logsCmd = &cobra.Command{
	Use:   "logs <id-or-name>",
	Short: "Print the kubectl output captured for a forward",
	Long: `Print the stdout and stderr lines kubectl wrote for a forward since it was
last started. The lines of a failed forward are kept until it is started again.

With --follow the command keeps polling the daemon and prints new lines as
they arrive, until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runLogs,
}

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Keep printing new lines")
	logsCmd.Flags().DurationVar(&logsInterval, "interval", time.Second, "Polling interval for --follow")
}

func runLogs(cmd *cobra.Command, args []string) error {
	if logsFollow && logsInterval <= 0 {
		return fmt.Errorf("--interval must be positive, got %s", logsInterval)
	}

	printer, err := newPrinter(cmd)
	if err != nil {
		return err
	}
	c, err := newAPIClient()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	snap, err := c.Resolve(ctx, args[0])
	cancel()
	if err != nil {
		return err
	}
	id := snap.Definition.ID

	if !logsFollow {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		resp, err := c.Logs(ctx, id)
		if err != nil {
			return err
		}
		printer.PrintLogs(resp.Logs)
		return nil
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(logsInterval)
	defer ticker.Stop()

	printed, run := 0, -1
	for {
		ctx, cancel := commandContext(cmd)
		resp, err := c.Logs(ctx, id)
		cancel()
		if err != nil {
			return err
		}
		next := newLogLines(resp, run, printed)
		printer.PrintLogs(next)
		run, printed = resp.Run, len(resp.Logs)

		select {
		case <-sigCh:
			return nil
		case <-ticker.C:
		}
	}
}

// newLogLines returns the lines of resp not yet printed. A different run
// means the buffer was cleared, so all of it is new.
func newLogLines(resp server.LogsResponse, run, printed int) []string {
	if resp.Run != run || printed > len(resp.Logs) {
		return resp.Logs
	}
	return resp.Logs[printed:]
}
