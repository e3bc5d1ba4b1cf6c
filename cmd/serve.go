package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"fwdctl/internal/app"
)

// serveDebug enables verbose logging, including every kubectl output line.
var serveDebug bool

// serveCmd starts the daemon that owns the kubectl processes.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the fwdctl daemon",
	Long: `Starts the fwdctl daemon in the foreground.

The daemon loads the saved forward definitions, starts every forward that is
enabled and serves a local control API that the other fwdctl commands use.
On Ctrl+C (SIGINT) or SIGTERM every kubectl process it started is killed.
The enabled flag of each forward is kept, so the same set comes back on the
next start.

Settings:
  fwdctl reads ~/.config/fwdctl/config.yaml and ./.fwdctl/config.yaml,
  or the single file given with --config.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// runServe is the main entry point for the serve command
func runServe(cmd *cobra.Command, args []string) error {
	cfg := app.NewConfig(serveDebug, configPath)

	application, err := app.NewApplication(cfg, rootCmd.Version)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
}
