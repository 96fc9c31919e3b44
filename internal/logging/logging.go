// Package logging configures the logrus logger shared by the commands.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// FileTimeLayout names log files by day of year, e.g. "2024-153-03h04m05s".
const FileTimeLayout = "2006-002-15h04m05s"

// New returns a logger at level ("off" discards everything). When dir is
// set the output is also written to <dir>/<name>_<time>.log; the returned
// closer closes that file.
func New(level, dir, name string, now time.Time) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	if level == "off" || level == "none" {
		logger.SetOutput(io.Discard)
		return logger, nopCloser{}, nil
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level %q: %w", level, err)
	}
	logger.SetLevel(lvl)
	logger.SetOutput(os.Stderr)
	if dir == "" {
		return logger, nopCloser{}, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, err
	}
	path := filepath.Join(dir, FileName(name, now))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, err
	}
	logger.SetOutput(io.MultiWriter(os.Stderr, f))
	return logger, f, nil
}

func FileName(name string, t time.Time) string {
	return fmt.Sprintf("%s_%s.log", name, t.UTC().Format(FileTimeLayout))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
