package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	embeddedconfig "github.com/inercia/hermes/config"
	"github.com/inercia/hermes/internal/appdir"
	"github.com/inercia/hermes/internal/fileutil"
)

var (
	configOutputPath string
	configForce      bool
)

// configCmd represents the config parent command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage hermes configuration",
	Long: `Manage hermes configuration files.

Use the subcommands to create or inspect configuration files.`,
}

// configCreateCmd represents the config create subcommand
var configCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a default configuration file",
	Long: `Create a default configuration file at ~/.hermesrc.

This command writes the embedded default configuration to the specified
path. After creating the file, review and customize it for your server.

Examples:
  hermes config create                    # Create ~/.hermesrc
  hermes config create --output /path/to  # Create /path/to/.hermesrc
  hermes config create --force            # Overwrite existing file`,
	RunE: runConfigCreate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			fmt.Printf("# from %s\n", cfgFile)
		} else {
			fmt.Println("# built-in defaults")
		}
		shown := *cfg
		if shown.Server.Token != "" {
			shown.Server.Token = "********"
		}
		out, err := yaml.Marshal(&shown)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configCreateCmd, configShowCmd)

	configCreateCmd.Flags().StringVarP(&configOutputPath, "output", "o", "",
		"Directory to write the config file (default: $HOME)")
	configCreateCmd.Flags().BoolVarP(&configForce, "force", "f", false,
		"Overwrite existing configuration file without prompting")
}

func runConfigCreate(cmd *cobra.Command, args []string) error {
	// Determine output directory
	outputDir := configOutputPath
	if outputDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		outputDir = homeDir
	}

	path := filepath.Join(outputDir, appdir.RCFileName)

	if fileutil.Exists(path) && !configForce {
		fmt.Printf("⚠️  Configuration file already exists: %s\n", path)
		fmt.Println("Use --force to overwrite the existing file.")
		return nil
	}

	if err := fileutil.WriteAtomic(path, embeddedconfig.DefaultConfigYAML, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	fmt.Printf("✅ Configuration file created: %s\n", path)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Set server.url and server.token for your Jupyter server")
	fmt.Println("  2. Run 'hermes kernels specs' to check the connection")
	fmt.Println("  3. Run 'hermes repl' to start a session")

	return nil
}
