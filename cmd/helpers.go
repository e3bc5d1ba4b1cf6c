package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"fwdctl/internal/cli"
	"fwdctl/internal/client"
	"fwdctl/internal/config"
)

var (
	outputFormat string
	quiet        bool
)

// newAPIClient builds a client for the daemon named by --api-url or, failing
// that, by the api section of the settings.
var newAPIClient = func() (*client.Client, error) {
	if apiURL != "" {
		return client.New(apiURL, nil), nil
	}

	var (
		settings config.Settings
		err      error
	)
	if configPath != "" {
		settings, err = config.LoadSettingsFromPath(configPath)
	} else {
		settings, err = config.LoadSettings()
	}
	if err != nil {
		return nil, err
	}
	return client.New(settings.API.URL(), nil), nil
}

func newPrinter(cmd *cobra.Command) (*cli.Printer, error) {
	format, err := cli.ParseOutputFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	return &cli.Printer{Out: cmd.OutOrStdout(), Format: format, Quiet: quiet}, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, 30*time.Second)
}

// addOutputFlags registers --output and --quiet on cmd.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json, yaml)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")
}
