package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fwdctl/internal/kube"
	"fwdctl/internal/server"
)

var (
	addLocalPort string
	addContext   string
	addNamespace string
	addPin       bool

	editName       string
	editRemotePort string
	editLocalPort  string
	editContext    string
	editNamespace  string
	editRestart    bool
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all forwards with their status",
	Args:    cobra.NoArgs,
	RunE:    runList,
}

var showCmd = &cobra.Command{
	Use:   "show <id-or-name>",
	Short: "Show one forward in detail",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var addCmd = &cobra.Command{
	Use:   "add <resource> <remote-port>",
	Short: "Add a forward and start it",
	Long: `Add a forward and start it right away.

The resource is anything kubectl port-forward accepts, for example
"svc/prometheus", "deployment/api" or a pod name.

Without --context and --namespace kubectl uses whatever is current when the
forward is started. --pin records the current context and namespace in the
forward instead, so later context switches do not affect it.`,
	Example: `  fwdctl add svc/prometheus 9090
  fwdctl add svc/api 80 --local-port 8080 --namespace payments
  fwdctl add pod/db-0 5432 --pin`,
	Args: cobra.ExactArgs(2),
	RunE: runAdd,
}

var removeCmd = &cobra.Command{
	Use:     "remove <id-or-name>",
	Aliases: []string{"rm"},
	Short:   "Stop a forward and delete it",
	Args:    cobra.ExactArgs(1),
	RunE:    runRemove,
}

var startCmd = &cobra.Command{
	Use:   "start <id-or-name>",
	Short: "Start a forward",
	Long: `Start a forward that is disabled or failed.

Starting a forward that already has a running process does nothing.`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop <id-or-name>",
	Short: "Stop a forward",
	Long: `Stop a forward, kill its kubectl process and clear its logs.

Stopping a forward that is not running does nothing.`,
	Args: cobra.ExactArgs(1),
	RunE: runStop,
}

var editCmd = &cobra.Command{
	Use:   "edit <id-or-name>",
	Short: "Change a forward's target, ports, context or namespace",
	Long: `Change the fields of a forward. Only the flags given are changed; pass an
empty value (e.g. --namespace "") to clear an optional field.

A running process keeps its old arguments. Use --restart to stop and start
the forward so the change takes effect.`,
	Args: cobra.ExactArgs(1),
	RunE: runEdit,
}

func init() {
	rootCmd.AddCommand(listCmd, showCmd, addCmd, removeCmd, startCmd, stopCmd, editCmd)

	addOutputFlags(listCmd)
	addOutputFlags(showCmd)

	addCmd.Flags().StringVarP(&addLocalPort, "local-port", "l", "", "Local port (default: same as remote port)")
	addCmd.Flags().StringVar(&addContext, "context", "", "kubeconfig context to use")
	addCmd.Flags().StringVarP(&addNamespace, "namespace", "n", "", "Namespace of the resource")
	addCmd.Flags().BoolVar(&addPin, "pin", false, "Record the current kube context and namespace in the forward")

	editCmd.Flags().StringVar(&editName, "resource", "", "New resource to forward to")
	editCmd.Flags().StringVar(&editRemotePort, "remote-port", "", "New remote port")
	editCmd.Flags().StringVarP(&editLocalPort, "local-port", "l", "", "New local port")
	editCmd.Flags().StringVar(&editContext, "context", "", "New kubeconfig context")
	editCmd.Flags().StringVarP(&editNamespace, "namespace", "n", "", "New namespace")
	editCmd.Flags().BoolVar(&editRestart, "restart", false, "Stop and start the forward so the change applies now")
}

func runList(cmd *cobra.Command, args []string) error {
	printer, err := newPrinter(cmd)
	if err != nil {
		return err
	}
	c, err := newAPIClient()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	snaps, err := c.List(ctx)
	if err != nil {
		return err
	}
	return printer.PrintForwards(snaps)
}

func runShow(cmd *cobra.Command, args []string) error {
	printer, err := newPrinter(cmd)
	if err != nil {
		return err
	}
	c, err := newAPIClient()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	snap, err := c.Resolve(ctx, args[0])
	if err != nil {
		return err
	}
	return printer.PrintForward(snap)
}

// addRequest builds the create request from the add flags.
func addRequest(resource, remotePort string) server.ForwardRequest {
	req := server.ForwardRequest{
		Name:       resource,
		RemotePort: remotePort,
		LocalPort:  optionalFlag(addLocalPort),
		Context:    optionalFlag(addContext),
		Namespace:  optionalFlag(addNamespace),
	}
	if addPin {
		if req.Context == nil {
			if kubeContext, ok := kube.CurrentContext(); ok {
				req.Context = &kubeContext
			}
		}
		if req.Namespace == nil {
			if namespace, ok := kube.CurrentNamespace(); ok {
				req.Namespace = &namespace
			}
		}
	}
	return req
}

func runAdd(cmd *cobra.Command, args []string) error {
	c, err := newAPIClient()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	snap, err := c.Create(ctx, addRequest(args[0], args[1]))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s), starting\n", snap.Definition.Label(), snap.Definition.ID)
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	c, err := newAPIClient()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	snap, err := c.Resolve(ctx, args[0])
	if err != nil {
		return err
	}
	if err := c.Delete(ctx, snap.Definition.ID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s (%s)\n", snap.Definition.Label(), snap.Definition.ID)
	return nil
}

func runStart(cmd *cobra.Command, args []string) error {
	c, err := newAPIClient()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	snap, err := c.Resolve(ctx, args[0])
	if err != nil {
		return err
	}
	if _, err := c.Start(ctx, snap.Definition.ID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Starting %s\n", snap.Definition.Label())
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	c, err := newAPIClient()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	snap, err := c.Resolve(ctx, args[0])
	if err != nil {
		return err
	}
	if _, err := c.Stop(ctx, snap.Definition.ID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stopped %s\n", snap.Definition.Label())
	return nil
}

// editRequest applies the changed edit flags onto the current values.
func editRequest(cmd *cobra.Command, current server.ForwardRequest) server.ForwardRequest {
	req := current
	flags := cmd.Flags()
	if flags.Changed("resource") {
		req.Name = editName
	}
	if flags.Changed("remote-port") {
		req.RemotePort = editRemotePort
	}
	if flags.Changed("local-port") {
		req.LocalPort = optionalFlag(editLocalPort)
	}
	if flags.Changed("context") {
		req.Context = optionalFlag(editContext)
	}
	if flags.Changed("namespace") {
		req.Namespace = optionalFlag(editNamespace)
	}
	return req
}

func runEdit(cmd *cobra.Command, args []string) error {
	c, err := newAPIClient()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	snap, err := c.Resolve(ctx, args[0])
	if err != nil {
		return err
	}
	def := snap.Definition
	current := server.ForwardRequest{
		Name:       def.Name,
		Context:    def.Context,
		Namespace:  def.Namespace,
		LocalPort:  def.LocalPort,
		RemotePort: def.RemotePort,
	}

	updated, err := c.Update(ctx, def.ID, editRequest(cmd, current))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", updated.Definition.Label())

	if editRestart && updated.Definition.Enabled {
		if _, err := c.Stop(ctx, def.ID); err != nil {
			return err
		}
		if _, err := c.Start(ctx, def.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restarting %s\n", updated.Definition.Label())
	}
	return nil
}

func optionalFlag(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
