package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"cadenza.click/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

const Version = "0.4.0"

// CLI represents the command-line interface
type CLI struct {
	rootCmd          *cobra.Command
	configManager    *config.Manager
	terminalDetector TerminalDetector
}

// NewCLI creates a new CLI instance
func NewCLI() *CLI {
	slog.Debug("creating new CLI instance")

	rootCmd := &cobra.Command{
		Use:   "cadenza",
		Short: "Audiobook playback orchestrator",
		Long:  "Cadenza plays local and streamed audio programs, keeping position, speed, and chapter state in a single observable session.",
	}

	rootCmd.AddCommand(newPlayCommand())
	rootCmd.AddCommand(newInspectCommand())
	rootCmd.AddCommand(newCacheCommand())

	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	rootCmd.PersistentFlags().String("log-level", "", "Override log level (debug/info/warn/error)")

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if version, _ := cmd.Flags().GetBool("version"); version {
			cmd.Printf("cadenza version %s\nAudiobook playback orchestrator\n", Version)
			return nil
		}
		return cmd.Help()
	}

	return &CLI{
		rootCmd:          rootCmd,
		configManager:    nil, // Lazy initialization - only create when needed
		terminalDetector: nil, // Lazy initialization - only create when needed
	}
}

type cliContextKey struct{}

// contextWithCLI stores the CLI instance in a context for command handlers
func contextWithCLI(cli *CLI) context.Context {
	return context.WithValue(context.Background(), cliContextKey{}, cli)
}

// cliFromContext extracts the CLI instance from a command context
func cliFromContext(ctx context.Context) *CLI {
	if cli, ok := ctx.Value(cliContextKey{}).(*CLI); ok {
		return cli
	}
	return nil
}

// Run executes the CLI with the given arguments and I/O streams
func (c *CLI) Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	slog.Debug("CLI run started", "args", args)

	// Version answers immediately, before any system initialization.
	if len(args) > 1 && (args[1] == "--version" || args[1] == "-v") {
		fmt.Fprintf(stdout, "cadenza version %s\nAudiobook playback orchestrator\n", Version)
		return 0
	}

	c.initializeSystems()

	c.rootCmd.SetArgs(args[1:])
	c.rootCmd.SetIn(stdin)
	c.rootCmd.SetOut(stdout)
	c.rootCmd.SetErr(stderr)
	c.rootCmd.SetContext(contextWithCLI(c))

	if err := c.rootCmd.Execute(); err != nil {
		slog.Error("cobra execution failed", "error", err)
		return 1
	}
	return 0
}

// initializeSystems lazily initializes CLI components when actually needed
func (c *CLI) initializeSystems() {
	if c.configManager == nil {
		c.configManager = config.NewManager()
	}
	if c.terminalDetector == nil {
		c.terminalDetector = &DefaultTerminalDetector{}
	}
}

// loadAndValidateConfig loads configuration from flags and files, applies
// overrides, and validates
func loadAndValidateConfig(cmd *cobra.Command, cli *CLI) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	logLevel, _ := cmd.Flags().GetString("log-level")

	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = cli.configManager.LoadFromFile(configFile)
		if err != nil {
			slog.Warn("config file not found, using defaults", "file", configFile, "error", err)
			cfg = cli.configManager.GetDefaultConfig()
		}
	} else {
		cfg, err = cli.configManager.LoadConfig()
		if err != nil {
			cmd.PrintErrf("Error loading config: %v\n", err)
			slog.Error("config load failed", "error", err)
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	}

	if logLevel != "" {
		cfg.LogLevel = logLevel
		slog.Debug("log level override applied", "value", logLevel)
	}

	if err := cli.configManager.ValidateConfig(cfg); err != nil {
		cmd.PrintErrf("Error: invalid configuration: %v\n", err)
		slog.Error("config validation failed", "error", err)
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setupLogging configures slog with file logging when enabled
func setupLogging(cli *CLI, cfg *config.Config, stderrWriter io.Writer) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	writers := []io.Writer{stderrWriter}

	if cfg.FileLogging != nil && cfg.FileLogging.Enabled {
		logFilePath := cli.configManager.LogFilePath(cfg)
		logDir := filepath.Dir(logFilePath)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			slog.Error("failed to create log directory", "path", logDir, "error", err)
			// Continue without file logging rather than failing
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   logFilePath,
				MaxSize:    cfg.FileLogging.MaxSizeMB,
				MaxBackups: cfg.FileLogging.MaxBackups,
				MaxAge:     cfg.FileLogging.MaxAgeDays,
				Compress:   cfg.FileLogging.Compress,
			}
			writers = append(writers, fileWriter)
			slog.Debug("file logging enabled", "path", logFilePath)
		}
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))

	slog.Debug("logging setup completed",
		"level", level.String(),
		"writers", len(writers),
		"file_enabled", cfg.FileLogging != nil && cfg.FileLogging.Enabled)
}
