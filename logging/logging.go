// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

type Options struct {
	Level        string
	Format       string // text | json
	ReportCaller bool
	Output       io.Writer // Defaults to stderr
}

// Init applies opts to the standard logger.
func Init(opts Options) error {
	return Configure(logrus.StandardLogger(), opts)
}

// Configure applies opts to logger.
func Configure(logger *logrus.Logger, opts Options) error {
	level := logrus.InfoLevel
	if opts.Level != "" {
		var err error
		if level, err = logrus.ParseLevel(opts.Level); err != nil {
			return fmt.Errorf("logging: %w", err)
		}
	}
	logger.SetLevel(level)

	prettyCaller := func(frame *runtime.Frame) (string, string) {
		return frame.Function, fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
	}
	switch opts.Format {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  time.DateTime,
			CallerPrettyfier: prettyCaller,
		})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat:  time.RFC3339Nano,
			CallerPrettyfier: prettyCaller,
		})
	default:
		return fmt.Errorf("logging: unknown format %q", opts.Format)
	}

	logger.SetReportCaller(opts.ReportCaller)
	if opts.Output != nil {
		logger.SetOutput(opts.Output)
	}
	return nil
}
