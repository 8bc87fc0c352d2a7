// Package input provides the byte sources ringpipe reads from.
package input

import (
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/c360/ringbuf/config"
	"github.com/c360/ringbuf/errors"
)

// Open returns the source selected by cfg.Type. The caller owns the returned
// reader and must Close it.
func Open(cfg config.InputConfig, logger *slog.Logger) (io.ReadCloser, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Type {
	case config.InputStdin:
		logger.Info("Reading from stdin")
		return Stdin(), nil
	case config.InputUDP:
		src, err := ListenUDP(cfg.Address, logger)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unknown input type %q", errors.ErrInvalidConfig, cfg.Type),
			"input", "Open", "select source")
	}
}

// fileReader reads a file the process does not own. Close expires any
// pending Read instead of closing the descriptor.
type fileReader struct {
	f       *os.File
	release func()
}

func newFileReader(f *os.File, release func()) *fileReader {
	_ = f.SetReadDeadline(time.Time{})
	return &fileReader{f: f, release: release}
}

func (r *fileReader) Read(p []byte) (int, error) {
	return r.f.Read(p)
}

// Close unblocks a Read in progress when the file supports deadlines. Files
// that do not, such as regular files, finish their Read on their own.
func (r *fileReader) Close() error {
	err := r.f.SetReadDeadline(time.Now())
	if r.release != nil {
		r.release()
		r.release = nil
	}
	if err != nil && !stderrors.Is(err, os.ErrNoDeadline) {
		return err
	}
	return nil
}

// Stdin returns standard input as an io.ReadCloser. Close leaves the
// descriptor open and unblocks a pending Read where stdin is a pipe or
// terminal.
func Stdin() io.ReadCloser {
	return newFileReader(pollableStdin())
}
