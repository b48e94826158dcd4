package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/relicta-tech/installkit/internal/container"
	rperrors "github.com/relicta-tech/installkit/internal/errors"
	"github.com/relicta-tech/installkit/internal/fileutil"
	"github.com/relicta-tech/installkit/internal/installation/app"
	"github.com/relicta-tech/installkit/internal/installation/domain"
)

var localFlags struct {
	installFlags
	watch bool
}

// maxLocalPackageBytes matches the session API upload limit.
const maxLocalPackageBytes = 64 << 20

// watchDebounce is how long a file must stay quiet before it is reinstalled.
var watchDebounce = 500 * time.Millisecond

var localCmd = &cobra.Command{
	Use:   "local <file>",
	Short: "Install a local package or bundle",
	Long: `Install a plugin package (.difypkg) or bundle (.difybndl) from disk.

With --watch the file is installed again every time it changes, which
is handy while developing a plugin. Confirmation is skipped in watch
mode.`,
	Args: cobra.ExactArgs(1),
	RunE: runLocal,
}

func init() {
	rootCmd.AddCommand(localCmd)

	localCmd.Flags().BoolVarP(&localFlags.watch, "watch", "w", false, "reinstall the file whenever it changes")
	localFlags.register(localCmd)
}

func runLocal(cmd *cobra.Command, args []string) error {
	const op = "cli.local"

	path, err := filepath.Abs(args[0])
	if err != nil {
		return rperrors.IOWrap(err, op, "invalid path")
	}
	if info, err := os.Stat(path); err != nil {
		return rperrors.IOWrap(err, op, "cannot read package file")
	} else if info.IsDir() {
		return rperrors.Validation(op, fmt.Sprintf("%s is a directory", args[0]))
	}

	a, err := newContainerApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	flags := localFlags.installFlags
	if !localFlags.watch {
		return installLocal(cmd, a, path, flags)
	}

	flags.yes = true
	if err := installLocal(cmd, a, path, flags); err != nil {
		printError(cmd.ErrOrStderr(), err.Error())
	}
	return watchLocal(cmd.Context(), path, func() {
		if err := installLocal(cmd, a, path, flags); err != nil {
			printError(cmd.ErrOrStderr(), err.Error())
		}
	})
}

// installLocal runs one local wizard for path.
func installLocal(cmd *cobra.Command, a *container.App, path string, flags installFlags) error {
	file := app.LocalFile{
		Name: filepath.Base(path),
		Open: func() (io.ReadCloser, error) {
			data, err := fileutil.ReadFileLimited(path, maxLocalPackageBytes)
			if err != nil {
				return nil, err
			}
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
	w, err := app.NewLocalWizard(a.Services(), file)
	if err != nil {
		return err
	}
	defer w.Cancel()

	out := cmd.OutOrStdout()
	if !outputJSON {
		printInfo(out, fmt.Sprintf("Uploading %s", file.Name))
	}
	if err := w.Upload(cmd.Context()); err != nil {
		if !outputJSON {
			printStep(out, w.Step())
		}
		return err
	}
	return confirmAndInstall(cmd, a, w, domain.FlowLocal, flags)
}

// watchLocal calls onChange after path was written and stayed quiet for
// watchDebounce. It returns when ctx is done.
func watchLocal(ctx context.Context, path string, onChange func()) error {
	const op = "cli.watchLocal"

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return rperrors.IOWrap(err, op, "failed to create watcher")
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory so atomic saves (rename-over) are seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return rperrors.IOWrap(err, op, "failed to watch package directory")
	}
	logger.Info("watching for changes", "file", path)

	var settled <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			logger.Info("stopping watch mode")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				settled = time.After(watchDebounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watch error", "error", err)

		case <-settled:
			settled = nil
			logger.Info("change detected", "file", filepath.Base(path), "at", time.Now().Format("15:04:05"))
			onChange()
		}
	}
}
