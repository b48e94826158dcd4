package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/relicta-tech/installkit/internal/installation/app"
	"github.com/relicta-tech/installkit/internal/installation/domain"
)

func printSuccess(w io.Writer, msg string) {
	fmt.Fprintln(w, styles.Success.Render("✓ "+msg))
}

func printError(w io.Writer, msg string) {
	fmt.Fprintln(w, styles.Error.Render("✗ "+msg))
}

func printWarning(w io.Writer, msg string) {
	fmt.Fprintln(w, styles.Warning.Render("⚠ "+msg))
}

func printInfo(w io.Writer, msg string) {
	fmt.Fprintln(w, styles.Info.Render("ℹ "+msg))
}

func printTitle(w io.Writer, msg string) {
	fmt.Fprintln(w, styles.Title.Render(msg))
}

func printSubtle(w io.Writer, msg string) {
	fmt.Fprintln(w, styles.Subtle.Render(msg))
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// isTerminal reports whether stdout is attached to a terminal.
func isTerminal() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// flowTitle renders a flow name for headings, e.g. "Github Update".
func flowTitle(f domain.Flow) string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(f), "-", " "))
}

// installReport is the JSON form of an install run.
type installReport struct {
	Flow    string                    `json:"flow"`
	Title   string                    `json:"title"`
	Plugin  string                    `json:"plugin,omitempty"`
	Version string                    `json:"version,omitempty"`
	Status  app.AttemptStatus         `json:"status"`
	Message string                    `json:"message,omitempty"`
	TaskID  string                    `json:"task_id,omitempty"`
	Items   []domain.BundleItemResult `json:"items,omitempty"`
}

// printStep renders a terminal wizard step.
func printStep(w io.Writer, st domain.Step) {
	msg := domain.StepMessage(st)
	switch st.ID() {
	case domain.StepInstalled:
		printSuccess(w, "Installed")
	case domain.StepInstallFailed:
		printError(w, "Installation failed: "+msg)
	case domain.StepUploadFailed:
		printError(w, "Upload failed: "+msg)
	default:
		if msg != "" {
			printInfo(w, msg)
		}
	}
}

// printReport renders the result of a non-interactive install.
func printReport(w io.Writer, r installReport) {
	switch r.Status {
	case app.AttemptInstalled:
		label := r.Plugin
		if r.Version != "" {
			label += " " + r.Version
		}
		printSuccess(w, strings.TrimSpace("Installed "+label))
	case app.AttemptFailed:
		printError(w, "Installation failed: "+r.Message)
	case app.AttemptCanceled:
		printWarning(w, "Installation canceled")
	default:
		printSubtle(w, "Another installation is already running")
	}
	for _, it := range r.Items {
		name := it.Dependency.Name()
		switch {
		case it.Skipped:
			printSubtle(w, fmt.Sprintf("  - %s (already installed)", name))
		case it.Status == domain.TaskSuccess:
			printSuccess(w, "  "+name)
		default:
			printError(w, fmt.Sprintf("  %s: %s", name, it.Message))
		}
	}
}
