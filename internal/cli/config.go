package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/installkit/internal/config"
	rperrors "github.com/relicta-tech/installkit/internal/errors"
	"github.com/relicta-tech/installkit/internal/sandbox"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage installkit configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a configuration file with default values",
	Long: `Write the default configuration to installkit.config.yaml, or to
path when given. The format follows the extension (.yaml, .yml, .toml
or .json).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printJSON(cmd.OutOrStdout(), cfg)
	},
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Work with sandbox catalogs",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a sandbox catalog file",
	Long: `Parse a YAML, TOML or JSON catalog and check repository names,
manifests and unique identifiers.`,
	Args: cobra.ExactArgs(1),
	RunE: runCatalogValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd)
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "overwrite an existing file")

	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	const op = "cli.configInit"

	path := config.ConfigFileNames[0] + ".yaml"
	if len(args) == 1 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil && !configForce {
		return rperrors.Validation(op, fmt.Sprintf("%s already exists, use --force to overwrite", path))
	}
	if err := config.WriteDefaultConfig(path); err != nil {
		return err
	}
	printSuccess(cmd.OutOrStdout(), fmt.Sprintf("Wrote %s", path))
	return nil
}

func runCatalogValidate(cmd *cobra.Command, args []string) error {
	catalog, err := sandbox.LoadCatalog(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	releases := 0
	for _, r := range catalog.Repositories {
		releases += len(r.Releases)
	}
	if outputJSON {
		return printJSON(out, map[string]int{
			"repositories": len(catalog.Repositories),
			"releases":     releases,
			"marketplace":  len(catalog.Marketplace),
			"installed":    len(catalog.Installed),
		})
	}
	printSuccess(out, fmt.Sprintf("%s is valid", args[0]))
	printSubtle(out, fmt.Sprintf("  %d repositories, %d releases, %d marketplace entries, %d installed",
		len(catalog.Repositories), releases, len(catalog.Marketplace), len(catalog.Installed)))
	return nil
}
