package main

import (
	"io"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

// newLogger builds the root logger every component logger is derived from.
func newLogger(w io.Writer, format, level string) *glog.BaseLogger {
	return glog.NewLogger(
		glog.WithWriter(w),
		glog.WithName("backorderd"),
		glog.WithLevel(normalizeLevel(level)),
		glog.WithLoggerType(loggerType(format)),
	)
}

func loggerType(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "text", glog.LoggerTypeConsole:
		return glog.LoggerTypeConsole
	case glog.LoggerTypePretty:
		return glog.LoggerTypePretty
	default:
		return glog.LoggerTypeJSON
	}
}

func normalizeLevel(level string) string {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		return "warn"
	}
	return level
}
