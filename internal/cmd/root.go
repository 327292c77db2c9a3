// Package cmd provides the CLI commands for hermes.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inercia/hermes/internal/appdir"
	"github.com/inercia/hermes/internal/config"
	"github.com/inercia/hermes/internal/display"
	"github.com/inercia/hermes/internal/gateway"
	"github.com/inercia/hermes/internal/kernel"
	"github.com/inercia/hermes/internal/logging"
)

var (
	// Global flags
	configPath    string
	serverURL     string
	token         string
	kernelName    string
	kernelID      string
	channelFlag   string
	debug         bool
	logLevel      string // --log-level flag (debug, info, warn, error)
	logFile       string
	logComponents string

	// Loaded configuration
	cfg *config.Config
	// live carries cfg to the display handlers and is refreshed by the
	// REPL's config watcher.
	live *config.Live
	// cfgFile is the rc file cfg was read from, empty when defaults are used.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hermes",
	Short: "Hermes - A command-line client for Jupyter kernels",
	Long: `Hermes talks to kernels running behind a Jupyter server.

It lists and starts kernels through the server's REST API, and runs code
and completion requests over the kernel channels websocket. Results are
printed to the terminal; figures and HTML output are saved as files.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for help and completion commands
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		if err := appdir.EnsureDir(); err != nil {
			return fmt.Errorf("failed to create hermes directory: %w", err)
		}

		// Priority: --config flag > $HERMESRC > XDG hermesrc > ~/.hermesrc
		path := configPath
		if path == "" {
			path = config.DefaultConfigPath()
		}
		loaded, found, err := config.LoadOrDefault(path)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if found {
			cfgFile = path
		} else if configPath != "" {
			return fmt.Errorf("configuration file not found: %s", configPath)
		}
		loaded.ApplyEnv()
		if err := applyFlags(loaded); err != nil {
			return err
		}
		cfg = loaded
		live = config.NewLive(cfg)

		if err := initLogging(cfg); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		logging.CLI().Debug("configuration loaded", "path", cfgFile, "server", cfg.Server.URL)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		// Clean up logging resources
		return logging.Close()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file path (default: $HERMESRC or ~/.hermesrc)")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "Jupyter server URL (overrides server.url)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Jupyter server token (overrides server.token)")
	rootCmd.PersistentFlags().StringVarP(&kernelName, "kernel", "k", "", "Kernel spec name (overrides kernel.name)")
	rootCmd.PersistentFlags().StringVar(&kernelID, "kernel-id", "", "Attach to the running kernel with this ID")
	rootCmd.PersistentFlags().StringVar(&channelFlag, "channel", "", "Channel strategy: per_call or persistent")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging (shorthand for --log-level=debug)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: info)")
	rootCmd.PersistentFlags().StringVarP(&logFile, "logfile", "l", "", "Log file path (logs are also written to console)")
	rootCmd.PersistentFlags().StringVar(&logComponents, "log-components", "", "Comma-separated list of components to log (e.g., 'kernel,gateway'). Empty means all components.")
}

// applyFlags overrides c with the global flags that were set.
func applyFlags(c *config.Config) error {
	if serverURL != "" {
		c.Server.URL = serverURL
	}
	if token != "" {
		c.Server.Token = token
	}
	if kernelName != "" {
		c.Kernel.Name = kernelName
	}
	if kernelID != "" {
		c.Kernel.ID = kernelID
	}
	if channelFlag != "" {
		c.Kernel.Channel = channelFlag
	}
	if logFile != "" {
		c.Logging.File = logFile
	}
	// Priority: --log-level flag > --debug flag > config > default (info)
	if logLevel != "" {
		c.Logging.Level = logLevel
	} else if debug {
		c.Logging.Level = "debug"
	}
	if logComponents != "" {
		c.Logging.Components = splitList(logComponents)
	}
	return c.Validate()
}

// defaultLogFile as logging.file selects the log file in the data directory.
const defaultLogFile = "default"

func initLogging(c *config.Config) error {
	lc := logging.Config{
		Level:      c.Logging.Level,
		JSON:       c.Logging.JSON,
		Components: c.Logging.Components,
	}
	if c.Logging.Level == "" {
		lc.Level = "info"
	}
	if path := c.Logging.File; path != "" {
		if path == defaultLogFile {
			p, err := appdir.LogPath()
			if err != nil {
				return err
			}
			path = p
		}
		fc := logging.DefaultFileLogConfig()
		fc.Path = path
		lc.File = &fc
	}
	return logging.Initialize(lc)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func newGateway() *gateway.Client {
	opts := []gateway.Option{
		gateway.WithToken(cfg.Server.Token),
		gateway.WithLogger(logging.Gateway()),
	}
	if cfg.Server.WSURL != "" {
		opts = append(opts, gateway.WithWSURL(cfg.Server.WSURL))
	}
	return gateway.New(cfg.Server.URL, opts...)
}

// connectKernel resolves the configured kernel and opens a connection to it
// with the console display handlers registered.
func connectKernel() (*kernel.Connection, error) {
	gw := newGateway()
	k, started, err := gw.Resolve(cfg.Kernel.ID, cfg.Kernel.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve kernel: %w", err)
	}
	if started {
		logging.CLI().Info("started kernel", "kernel_id", k.ID, "name", k.Name)
	}
	language, err := gw.Language(k.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up kernel language: %w", err)
	}

	handlers, err := display.Handlers(display.NewConsoleSink(os.Stdout), display.Options{
		MaxInputLength: live.MaxShownInputLength,
		ArtifactsDir:   cfg.Output.ArtifactsDir,
	})
	if err != nil {
		return nil, err
	}
	opts := append([]kernel.Option{
		kernel.WithToken(cfg.Server.Token),
		kernel.WithChannelMode(cfg.ChannelMode()),
		kernel.WithReplyTimeout(cfg.Kernel.ReplyTimeout),
		kernel.WithLogger(logging.WithKernel(logging.Kernel(), k.ID, language)),
	}, handlers...)

	return kernel.Connect(k.ID, language, gw.BaseWSURL(), opts...)
}
