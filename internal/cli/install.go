package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/installkit/internal/container"
	rperrors "github.com/relicta-tech/installkit/internal/errors"
	"github.com/relicta-tech/installkit/internal/installation/app"
	"github.com/relicta-tech/installkit/internal/installation/domain"
	"github.com/relicta-tech/installkit/internal/ui"
)

// installFlags are shared by every install command.
type installFlags struct {
	yes         bool
	skipRefresh bool
}

func (f *installFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "install without asking for confirmation")
	cmd.Flags().BoolVar(&f.skipRefresh, "skip-refresh", false, "do not refresh the plugin and task lists after installing")
}

func (f installFlags) attemptOptions() []app.AttemptOption {
	if f.skipRefresh {
		return []app.AttemptOption{app.WithoutRefresh()}
	}
	return nil
}

// readyWizard is a wizard that can install once it reaches ReadyToInstall.
type readyWizard interface {
	Step() domain.Step
	Title() string
	Cancel()
	Install(ctx context.Context, opts ...app.AttemptOption) app.AttemptOutcome
}

// bundleWizard also installs bundles.
type bundleWizard interface {
	InstallBundle(ctx context.Context, opts ...app.AttemptOption) app.BundleOutcome
}

// interactive reports whether prompts and the TUI may be shown.
var interactive = func() bool {
	return isTerminal() && !outputJSON
}

// confirmAndInstall asks for confirmation when interactive, runs the
// install and reports the result. It returns an error unless the install
// succeeded or the user declined.
func confirmAndInstall(cmd *cobra.Command, a *container.App, w readyWizard, flow domain.Flow, flags installFlags) error {
	const op = "cli.install"
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	st, ok := w.Step().(domain.ReadyToInstallStep)
	if !ok {
		if !outputJSON {
			printStep(out, w.Step())
		}
		return rperrors.State(op, fmt.Sprintf("nothing to install: %s", domain.StepMessage(w.Step())))
	}

	report := installReport{Flow: string(flow), Title: w.Title()}
	var installed *domain.InstalledPluginInfo
	if !st.IsBundle() {
		report.Plugin = st.Target.PluginID()
		if m := st.Target.Manifest(); m != nil {
			report.Version = m.Version
		}
		infos, err := a.Services().Resolver.Resolve(ctx, []string{report.Plugin})
		if err != nil {
			logger.Warn("could not check installed version", "plugin", report.Plugin, "error", rperrors.RedactError(err))
		}
		installed = infos[report.Plugin]
	}

	tty := interactive()
	if st.Warning != "" && !tty {
		logger.Warn(st.Warning)
	}
	if tty && !flags.yes {
		proceed, err := ui.Confirm(ui.SummaryFromStep(w.Title(), st, installed))
		if err != nil {
			return err
		}
		if !proceed {
			printWarning(out, "Installation aborted")
			return nil
		}
	}

	opts := flags.attemptOptions()
	run := func() ui.InstallResult {
		if b, ok := w.(bundleWizard); ok && st.IsBundle() {
			o := b.InstallBundle(ctx, opts...)
			report.Status, report.Message, report.Items = o.Status, o.Message, o.Items
			return ui.FromBundle(o)
		}
		o := w.Install(ctx, opts...)
		report.Status, report.Message, report.TaskID = o.Status, o.Message, o.TaskID
		return ui.FromAttempt(o)
	}

	switch {
	case tty:
		res, err := ui.RunInstall(fmt.Sprintf("Installing %s", w.Title()), run, w.Cancel)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, ui.RenderResult(res))
	case outputJSON:
		run()
		if err := printJSON(out, report); err != nil {
			return err
		}
	default:
		printTitle(out, fmt.Sprintf("%s: %s", flowTitle(flow), w.Title()))
		run()
		printReport(out, report)
	}

	switch report.Status {
	case app.AttemptInstalled:
		return nil
	case app.AttemptCanceled:
		return rperrors.E(rperrors.KindCanceled, op, "installation canceled")
	default:
		return rperrors.Install(op, report.failure())
	}
}

func (r installReport) failure() string {
	if r.Message != "" {
		return r.Message
	}
	if r.Status == app.AttemptIgnored {
		return "another installation is already running"
	}
	return "installation failed"
}
