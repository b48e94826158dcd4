// Package cli provides the command-line interface for installkit.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/relicta-tech/installkit/internal/config"
	"github.com/relicta-tech/installkit/internal/container"
	"github.com/relicta-tech/installkit/internal/security"
)

var (
	// Version information set by main.
	versionInfo struct {
		Version string
		Commit  string
		Date    string
	}

	// Global flags
	cfgFile    string
	verbose    bool
	outputJSON bool
	noColor    bool
	logLevel   string

	// Global config
	cfg     *config.Config
	cfgPath string

	// Logger
	logger *log.Logger

	// masker hides configured secrets in log output
	masker    = security.NewMasker()
	logOutput = security.NewMaskedWriter(os.Stderr, masker)

	// Styles
	styles = struct {
		Title   lipgloss.Style
		Success lipgloss.Style
		Error   lipgloss.Style
		Warning lipgloss.Style
		Info    lipgloss.Style
		Subtle  lipgloss.Style
		Bold    lipgloss.Style
	}{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Info:    lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
		Subtle:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Bold:    lipgloss.NewStyle().Bold(true),
	}
)

// SetVersionInfo sets the version information from main.
func SetVersionInfo(version, commit, date string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.Date = date
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "installkit",
	Short: "Install and update plugins from GitHub, local files and the marketplace",
	Long: `installkit installs plugins into a plugin daemon.

Packages can come from three places:
  • GitHub releases, picked by version and asset
  • Local .difypkg packages and .difybndl bundles
  • The marketplace, by unique identifier

Every install is submitted as a daemon task and followed until it
succeeds or fails. Run 'installkit serve' to drive the same wizards
over HTTP.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for commands that do not need it
		if skipsConfig(cmd) {
			return nil
		}
		return initConfig(cmd)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func skipsConfig(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "version", "help", "init", "validate", "completion", "flows":
		return true
	}
	return false
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with a context for graceful shutdown.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	logger = log.NewWithOptions(logOutput, log.Options{
		ReportTimestamp: true,
		ReportCaller:    false,
	})

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: installkit.config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output results as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(cmd *cobra.Command) error {
	loader := config.NewLoader()
	if cfgFile != "" {
		loader.WithConfigPath(cfgFile)
	}
	loader.MergeConfig(flagOverrides(cmd))

	var err error
	cfg, err = loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfgPath = loader.GetConfigPath()

	masker.AddSecret(cfg.Server.APIKey)

	warnings, err := config.Validate(cfg)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	for _, w := range warnings {
		logger.Warn(w)
	}
	return nil
}

// flagOverrides returns the config values set by global CLI flags.
func flagOverrides(cmd *cobra.Command) map[string]any {
	values := make(map[string]any)
	if verbose {
		values["output.log_level"] = "debug"
	}
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		values["output.log_level"] = logLevel
	}
	if noColor {
		values["output.color"] = false
	}
	return values
}

// configureLogger applies format and level to the shared logger.
func configureLogger() {
	if outputJSON || cfg.Output.Format == "json" {
		logger.SetFormatter(log.JSONFormatter)
	} else {
		logger.SetFormatter(log.TextFormatter)
	}

	level, err := log.ParseLevel(cfg.Output.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	logger.SetLevel(level)
}

// initConfig loads the config file and applies flags and env overrides.
func initConfig(cmd *cobra.Command) error {
	if err := loadAndValidateConfig(cmd); err != nil {
		return err
	}
	if !cfg.Output.Color {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	configureLogger()
	if cfgPath != "" {
		logger.Debug("configuration loaded", "file", cfgPath)
	}
	return nil
}

// Cleanup resets process-wide state. Should be called before program exit.
func Cleanup() {
	lipgloss.SetColorProfile(termenv.ColorProfile())
}

// newContainerApp builds the application container. Tests replace it.
var newContainerApp = func(c *config.Config) (*container.App, error) {
	return container.New(c,
		container.WithLogger(slog.New(logger)),
		container.WithVersion(versionInfo.Version),
	)
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "installkit %s\n", versionInfo.Version)
		if verbose {
			fmt.Fprintf(out, "  commit: %s\n", versionInfo.Commit)
			fmt.Fprintf(out, "  built:  %s\n", versionInfo.Date)
		}
	},
}
