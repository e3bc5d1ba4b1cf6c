package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"fwdctl/internal/kube"
)

var defaultsCmd = &cobra.Command{
	Use:   "defaults",
	Short: "Show the kube context and namespace new forwards use by default",
	Long: `Shows the current context and namespace from the kubeconfig.

A forward without its own context or namespace is started against these
values, as kubectl itself would pick them.`,
	Args: cobra.NoArgs,
	RunE: runDefaults,
}

func init() {
	rootCmd.AddCommand(defaultsCmd)
}

func runDefaults(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if kubeContext, ok := kube.CurrentContext(); ok {
		fmt.Fprintf(out, "Context:   %s\n", kubeContext)
	} else {
		fmt.Fprintln(out, "Context:   (none)")
	}
	fmt.Fprintf(out, "Namespace: %s\n", kube.EffectiveNamespace())
	return nil
}
