package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

func newLogger(s LogSettings) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(s.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log.level %q: %w", s.Level, err)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)
	switch s.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("invalid log.format %q (want json or text)", s.Format)
	}
	return logger, nil
}
