package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	rperrors "github.com/relicta-tech/installkit/internal/errors"
	"github.com/relicta-tech/installkit/internal/installation/app"
	"github.com/relicta-tech/installkit/internal/installation/domain"
)

var updatesCurrent string

var updatesCmd = &cobra.Command{
	Use:   "updates <owner/repo>",
	Short: "Check a GitHub repository for a newer plugin release",
	Long: `Compare the newest release of a repository with the installed version.

Exit status is 0 whether or not an update exists; use --json to read
need_update from scripts.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdates,
}

func init() {
	rootCmd.AddCommand(updatesCmd)
	updatesCmd.Flags().StringVar(&updatesCurrent, "current", "", "installed version to compare against (required)")
	_ = updatesCmd.MarkFlagRequired("current")
}

// updatesReport is the JSON form of an update check.
type updatesReport struct {
	Repo       string       `json:"repo"`
	Current    string       `json:"current"`
	NeedUpdate bool         `json:"need_update"`
	Advisory   app.Advisory `json:"advisory"`
	Versions   []string     `json:"versions,omitempty"`
}

func runUpdates(cmd *cobra.Command, args []string) error {
	const op = "cli.updates"

	repo, ok := domain.ParseRepoRef(strings.TrimPrefix(args[0], "https://github.com/"))
	if !ok {
		return rperrors.Validation(op, "repository must be owner/repo")
	}

	a, err := newContainerApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	advice, releases, err := a.Advisor().CheckRepository(cmd.Context(), repo, updatesCurrent)
	if err != nil {
		return rperrors.NetworkWrap(err, op, advice.Advisory.Message)
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		return printJSON(out, updatesReport{
			Repo:       repo.String(),
			Current:    updatesCurrent,
			NeedUpdate: advice.NeedUpdate,
			Advisory:   advice.Advisory,
			Versions:   domain.ReleaseTags(releases),
		})
	}

	printTitle(out, repo.String())
	switch advice.Advisory.Kind {
	case app.AdvisoryUpdateAvailable:
		printWarning(out, advice.Advisory.Message)
		printSubtle(out, fmt.Sprintf("Run: installkit github %s --tag %s", repo, advice.Advisory.LatestTag))
	case app.AdvisoryError:
		printError(out, advice.Advisory.Message)
	default:
		printSuccess(out, advice.Advisory.Message)
	}
	return nil
}
