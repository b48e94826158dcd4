package cli

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/relicta-tech/installkit/internal/installation/domain"
)

var installedCmd = &cobra.Command{
	Use:     "installed [plugin-id...]",
	Aliases: []string{"list", "ls"},
	Short:   "Show installed plugins",
	Long: `List installed plugins, or look up specific plugin ids
(author/name) through the installed version cache.`,
	RunE: runInstalled,
}

func init() {
	rootCmd.AddCommand(installedCmd)
}

// installedEntry is one row of the installed listing.
type installedEntry struct {
	PluginID string                      `json:"plugin_id"`
	Info     *domain.InstalledPluginInfo `json:"installed"`
}

func runInstalled(cmd *cobra.Command, args []string) error {
	a, err := newContainerApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var entries []installedEntry
	if len(args) == 0 {
		for _, info := range a.Daemon().Installed() {
			entries = append(entries, installedEntry{
				PluginID: domain.PluginIDFromUniqueIdentifier(info.UniqueIdentifier),
				Info:     &info,
			})
		}
	} else {
		infos, err := a.Services().Resolver.Resolve(cmd.Context(), args)
		if err != nil {
			return err
		}
		for _, id := range args {
			entries = append(entries, installedEntry{PluginID: id, Info: infos[id]})
		}
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].PluginID < entries[j].PluginID })
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		return printJSON(out, entries)
	}
	if len(entries) == 0 {
		printInfo(out, "No plugins installed")
		return nil
	}

	idCol := lipgloss.NewStyle().Width(32).PaddingRight(2)
	versionCol := lipgloss.NewStyle().Width(14).PaddingRight(2)
	fmt.Fprintln(out, styles.Bold.Render(idCol.Render("PLUGIN")+versionCol.Render("VERSION")+"UNIQUE IDENTIFIER"))
	for _, e := range entries {
		if e.Info == nil {
			fmt.Fprintln(out, idCol.Render(e.PluginID)+styles.Subtle.Render(versionCol.Render("-")+"not installed"))
			continue
		}
		fmt.Fprintln(out, idCol.Render(e.PluginID)+versionCol.Render(e.Info.InstalledVersion)+styles.Subtle.Render(e.Info.UniqueIdentifier))
	}
	return nil
}
