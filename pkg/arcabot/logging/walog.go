package logging

import (
	"context"
	"fmt"
	"log/slog"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// waLogger forwards whatsmeow's printf-style logs to slog.
type waLogger struct {
	logger *slog.Logger
	module string
}

// Whatsmeow returns a waLog.Logger backed by logger. whatsmeow logs are
// chatty, so its info level is demoted to debug.
func Whatsmeow(logger *slog.Logger, module string) waLog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &waLogger{logger: logger, module: module}
}

func (l *waLogger) Sub(module string) waLog.Logger {
	sub := module
	if l.module != "" {
		sub = l.module + "/" + module
	}
	return &waLogger{logger: l.logger, module: sub}
}

func (l *waLogger) Debugf(msg string, args ...interface{}) {
	l.log(slog.LevelDebug, msg, args...)
}

func (l *waLogger) Infof(msg string, args ...interface{}) {
	l.log(slog.LevelDebug, msg, args...)
}

func (l *waLogger) Warnf(msg string, args ...interface{}) {
	l.log(slog.LevelWarn, msg, args...)
}

func (l *waLogger) Errorf(msg string, args ...interface{}) {
	l.log(slog.LevelError, msg, args...)
}

func (l *waLogger) log(level slog.Level, msg string, args ...interface{}) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}
	l.logger.Log(ctx, level, "whatsmeow: "+fmt.Sprintf(msg, args...), "module", l.module)
}
