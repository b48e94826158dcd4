package cli

import (
	"github.com/spf13/cobra"

	"github.com/relicta-tech/installkit/internal/installation/app"
	"github.com/relicta-tech/installkit/internal/installation/domain"
)

var marketplaceFlags installFlags

var marketplaceCmd = &cobra.Command{
	Use:     "marketplace <unique-identifier>",
	Aliases: []string{"mp"},
	Short:   "Install a plugin from the marketplace",
	Long: `Install a marketplace package by its unique identifier
(author/name:version@checksum).

Example:
  installkit marketplace acme/translate:0.3.1@3f2a...`,
	Args: cobra.ExactArgs(1),
	RunE: runMarketplace,
}

func init() {
	rootCmd.AddCommand(marketplaceCmd)
	marketplaceFlags.register(marketplaceCmd)
}

func runMarketplace(cmd *cobra.Command, args []string) error {
	a, err := newContainerApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	w, err := app.NewMarketplaceWizard(cmd.Context(), a.Services(), args[0], nil)
	if err != nil {
		return err
	}
	defer w.Cancel()

	return confirmAndInstall(cmd, a, w, domain.FlowMarketplace, marketplaceFlags)
}
