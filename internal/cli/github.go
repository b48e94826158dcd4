package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/installkit/internal/domain/version"
	rperrors "github.com/relicta-tech/installkit/internal/errors"
	"github.com/relicta-tech/installkit/internal/installation/app"
	"github.com/relicta-tech/installkit/internal/installation/domain"
	"github.com/relicta-tech/installkit/internal/ui"
)

var githubFlags struct {
	installFlags
	tag string
	pkg string
}

var githubCmd = &cobra.Command{
	Use:     "github <repository-url>",
	Aliases: []string{"gh"},
	Short:   "Install a plugin from a GitHub release",
	Long: `Install a plugin package attached to a GitHub release.

In a terminal the release and package are picked interactively unless
both --tag and --package are given. Otherwise --tag defaults to the
newest release and --package may be left out when the release has a
single asset.

Examples:
  # Pick a release interactively
  installkit github https://github.com/acme/search-plugin

  # Install a specific package without prompts
  installkit github acme/search-plugin --tag v1.1.0 --package search.difypkg --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runGitHub,
}

func init() {
	rootCmd.AddCommand(githubCmd)

	githubCmd.Flags().StringVar(&githubFlags.tag, "tag", "", "release tag to install (default: newest release)")
	githubCmd.Flags().StringVar(&githubFlags.pkg, "package", "", "release asset to install")
	githubFlags.register(githubCmd)
}

func runGitHub(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	a, err := newContainerApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	w, err := app.NewGitHubWizard(a.Services())
	if err != nil {
		return err
	}
	defer w.Cancel()

	if err := w.SubmitURL(ctx, githubURL(args[0])); err != nil {
		return err
	}
	st, ok := w.Step().(domain.SelectPackageStep)
	if !ok {
		return app.ErrStepMismatch
	}

	tag, asset, picked, err := chooseRelease(st, githubFlags.tag, githubFlags.pkg)
	if err != nil {
		return err
	}
	if !picked {
		printWarning(out, "Installation aborted")
		return nil
	}
	if err := w.SelectVersion(tag); err != nil {
		return err
	}
	if err := w.SelectPackage(asset); err != nil {
		return err
	}

	if !outputJSON {
		printInfo(out, fmt.Sprintf("Uploading %s from %s@%s", asset, st.Repo, tag))
	}
	if err := w.Upload(ctx); err != nil {
		if !outputJSON {
			printStep(out, w.Step())
		}
		return err
	}
	return confirmAndInstall(cmd, a, w, domain.FlowGitHub, githubFlags.installFlags)
}

// githubURL accepts owner/repo shorthand as well as full URLs.
func githubURL(arg string) string {
	if strings.Contains(arg, "://") || strings.HasPrefix(arg, "github.com/") {
		return arg
	}
	if ref, ok := domain.ParseRepoRef(arg); ok {
		return ref.URL()
	}
	return arg
}

// chooseRelease resolves the tag and asset to install. picked is false when
// the user closed the picker.
func chooseRelease(st domain.SelectPackageStep, tag, asset string) (string, string, bool, error) {
	const op = "cli.chooseRelease"

	if tag != "" && asset != "" {
		return tag, asset, true, nil
	}
	if interactive() {
		return ui.PickPackage(st.Repo, st.Releases, "")
	}

	if tag == "" {
		latest, err := version.Latest(domain.ReleaseTags(st.Releases))
		if err != nil {
			return "", "", false, rperrors.Validation(op, "repository has no releases")
		}
		tag = latest
	}
	release, ok := domain.FindRelease(st.Releases, tag)
	if !ok {
		return "", "", false, rperrors.Validation(op, fmt.Sprintf("unknown version %q", tag))
	}
	if asset == "" {
		if len(release.Assets) != 1 {
			names := make([]string, 0, len(release.Assets))
			for _, a := range release.Assets {
				names = append(names, a.Name)
			}
			return "", "", false, rperrors.Validation(op,
				fmt.Sprintf("release %s has %d packages, choose one with --package: %s", tag, len(names), strings.Join(names, ", ")))
		}
		asset = release.Assets[0].Name
	}
	return tag, asset, true, nil
}
