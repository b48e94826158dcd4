package cli

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/relicta-tech/installkit/internal/installation/domain"
)

var allFlows = []domain.Flow{domain.FlowGitHub, domain.FlowGitHubUpdate, domain.FlowLocal, domain.FlowMarketplace}

var flowsCmd = &cobra.Command{
	Use:   "flows [flow]",
	Short: "Show the step tables of the install wizards",
	Long: `Print the steps and transitions of each wizard flow
(github, github-update, local, marketplace).

With --json the tables are exported as XState machine definitions.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFlows,
}

func init() {
	rootCmd.AddCommand(flowsCmd)
}

func runFlows(cmd *cobra.Command, args []string) error {
	flows := allFlows
	if len(args) == 1 {
		flows = []domain.Flow{domain.Flow(args[0])}
	}

	machines := make([]*domain.WizardMachine, 0, len(flows))
	for _, f := range flows {
		m, err := domain.NewWizardMachine(f)
		if err != nil {
			return err
		}
		machines = append(machines, m)
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		defs := make([]json.RawMessage, 0, len(machines))
		for _, m := range machines {
			data, err := m.ExportXStateJSON()
			if err != nil {
				return fmt.Errorf("export %s: %w", m.Flow(), err)
			}
			defs = append(defs, data)
		}
		if len(defs) == 1 {
			return printJSON(out, defs[0])
		}
		return printJSON(out, defs)
	}

	fromCol := lipgloss.NewStyle().Width(20).PaddingRight(2)
	eventCol := lipgloss.NewStyle().Width(16).PaddingRight(2)
	for i, m := range machines {
		if i > 0 {
			fmt.Fprintln(out)
		}
		initial, _ := domain.InitialStep(m.Flow())
		printTitle(out, flowTitle(m.Flow()))
		printSubtle(out, "starts at "+string(initial))
		for _, t := range domain.Transitions(m.Flow()) {
			fmt.Fprintln(out, fromCol.Render(string(t.From))+eventCol.Render(string(t.Event))+"→ "+string(t.To))
		}
	}
	return nil
}
