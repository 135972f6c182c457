// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupParams selects the level, format and destination of log output.
type SetupParams struct {
	Level       string
	FileName    string
	ToStdout    bool
	FormatJSON  bool
	ServiceName string
}

// Setup configures the standard logrus logger and returns a closer for the
// log file, if one was opened.
func Setup(params SetupParams) io.Closer {
	if params.FormatJSON {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	log.SetLevel(GetLevel(params.Level))

	if params.FileName == "" {
		log.SetOutput(os.Stdout)
		return nopCloser{}
	}

	if !strings.HasSuffix(params.FileName, ".log") {
		params.FileName += ".log"
	}

	rotating := &lumberjack.Logger{
		Filename:   params.FileName,
		MaxSize:    50, // megabytes
		MaxBackups: 10,
		LocalTime:  false,
		Compress:   true,
	}

	if params.ToStdout {
		log.SetOutput(io.MultiWriter(os.Stdout, rotating))
	} else {
		log.SetOutput(rotating)
	}
	log.WithField("service", params.ServiceName).Infof("writing logs to %s", params.FileName)
	return rotating
}

// GetLevel maps a level name to a logrus level, defaulting to info.
func GetLevel(level string) log.Level {
	parsed, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return log.InfoLevel
	}
	return parsed
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
