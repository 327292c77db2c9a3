package cmd

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// kernelsCmd represents the kernels parent command
var kernelsCmd = &cobra.Command{
	Use:   "kernels",
	Short: "Manage kernels on the Jupyter server",
}

var kernelsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List running kernels",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		kernels, err := newGateway().ListKernels()
		if err != nil {
			return err
		}
		if len(kernels) == 0 {
			fmt.Println("No running kernels.")
			return nil
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tSTATE\tCONNECTIONS\tLAST ACTIVITY")
		for _, k := range kernels {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", k.ID, k.Name, k.ExecutionState, k.Connections, k.LastActivity)
		}
		return tw.Flush()
	},
}

var kernelsSpecsCmd = &cobra.Command{
	Use:   "specs",
	Short: "List the kernel specs the server can start",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		specs, err := newGateway().ListKernelSpecs()
		if err != nil {
			return err
		}
		names := make([]string, 0, len(specs.KernelSpecs))
		for name := range specs.KernelSpecs {
			names = append(names, name)
		}
		sort.Strings(names)

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tLANGUAGE\tDISPLAY NAME")
		for _, name := range names {
			s := specs.KernelSpecs[name]
			if name == specs.Default {
				name += " (default)"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", name, s.Spec.Language, s.Spec.DisplayName)
		}
		return tw.Flush()
	},
}

var kernelsStartCmd = &cobra.Command{
	Use:   "start [NAME]",
	Short: "Start a kernel (default: kernel.name from the configuration)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := cfg.Kernel.Name
		if len(args) == 1 {
			name = args[0]
		}
		k, err := newGateway().StartKernel(name)
		if err != nil {
			return err
		}
		fmt.Printf("✅ Started kernel %s (%s)\n", k.ID, k.Name)
		return nil
	},
}

var kernelsStopCmd = &cobra.Command{
	Use:   "stop ID",
	Short: "Shut down a running kernel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newGateway().ShutdownKernel(args[0]); err != nil {
			return err
		}
		fmt.Printf("🛑 Stopped kernel %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(kernelsCmd)
	kernelsCmd.AddCommand(kernelsListCmd, kernelsSpecsCmd, kernelsStartCmd, kernelsStopCmd)
}
