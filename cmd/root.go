package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath replaces the layered settings lookup with one file.
	configPath string

	// apiURL overrides the daemon address derived from the settings.
	apiURL string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fwdctl",
	Short: "Keep kubectl port-forwards running",
	Long: `fwdctl supervises a set of kubectl port-forward processes.

Each forward is started by the fwdctl daemon ('fwdctl serve'), watched for
exits, restarted automatically when kubectl loses its connection to the pod,
and marked failed for any other error. Forward definitions are persisted so
enabled forwards come back when the daemon restarts.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. unknown forward, daemon not running)
	SilenceUsage: true,
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "fwdctl version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "settings file (default is layered ~/.config/fwdctl/config.yaml and ./.fwdctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "URL of the fwdctl daemon (default from settings, http://127.0.0.1:7531)")
}
