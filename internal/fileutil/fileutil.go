// Package fileutil provides shared file utilities for installkit.
package fileutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	rperrors "github.com/relicta-tech/installkit/internal/errors"
)

// ErrTooLarge is wrapped by ReadFileLimited when a file exceeds the limit.
var ErrTooLarge = errors.New("file too large")

// ReadFileLimited reads a file of at most maxSize bytes. Missing files are
// reported as KindNotFound, oversized files and directories as
// KindValidation.
func ReadFileLimited(path string, maxSize int64) ([]byte, error) {
	const op = "fileutil.ReadFileLimited"

	f, err := os.Open(path) // #nosec G304 -- caller is responsible for path validation
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, rperrors.Wrap(err, rperrors.KindNotFound, op, fmt.Sprintf("file not found: %s", path))
		}
		return nil, rperrors.IOWrap(err, op, "failed to open file")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, rperrors.IOWrap(err, op, "failed to stat file")
	}
	if info.IsDir() {
		return nil, rperrors.Validation(op, fmt.Sprintf("%s is a directory", path))
	}
	if info.Size() > maxSize {
		return nil, tooLarge(op, maxSize)
	}

	// The file may grow between Stat and ReadAll.
	data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		return nil, rperrors.IOWrap(err, op, "failed to read file")
	}
	if int64(len(data)) > maxSize {
		return nil, tooLarge(op, maxSize)
	}
	return data, nil
}

func tooLarge(op string, maxSize int64) error {
	return rperrors.Wrap(ErrTooLarge, rperrors.KindValidation, op,
		fmt.Sprintf("file exceeds maximum allowed size of %d bytes", maxSize))
}
