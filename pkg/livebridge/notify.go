package livebridge

import (
	"context"

	"go.uber.org/zap"

	"github.com/bakarr/livebridge/pkg/livebridge/events"
)

// NotificationSink receives user-facing notifications produced by the event
// stream. Implementations decide presentation: toasts, terminal lines, log
// records. A sink error affects only the current notification; the bridge
// logs it and keeps going.
type NotificationSink interface {
	Notify(ctx context.Context, level events.Level, message string) error
}

// FuncSink adapts a plain function to the NotificationSink interface.
type FuncSink func(ctx context.Context, level events.Level, message string) error

func (f FuncSink) Notify(ctx context.Context, level events.Level, message string) error {
	return f(ctx, level, message)
}

var levelRank = map[events.Level]int{
	events.LevelInfo:    0,
	events.LevelSuccess: 1,
	events.LevelWarning: 2,
	events.LevelError:   3,
}

// MinLevelSink forwards notifications at or above a threshold level and
// silently drops the rest. Unknown levels are forwarded.
type MinLevelSink struct {
	next NotificationSink
	min  events.Level
}

func NewMinLevelSink(next NotificationSink, min events.Level) *MinLevelSink {
	return &MinLevelSink{next: next, min: min}
}

func (s *MinLevelSink) Notify(ctx context.Context, level events.Level, message string) error {
	rank, known := levelRank[level]
	if known && rank < levelRank[s.min] {
		return nil
	}
	return s.next.Notify(ctx, level, message)
}

// LoggingSink writes notifications to a zap logger, mapping notification
// levels onto log levels. Success is logged at Info.
type LoggingSink struct {
	logger *zap.Logger
}

func NewLoggingSink(logger *zap.Logger) *LoggingSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingSink{logger: logger}
}

func (s *LoggingSink) Notify(ctx context.Context, level events.Level, message string) error {
	field := zap.String("level", string(level))
	switch level {
	case events.LevelError:
		s.logger.Error(message, field)
	case events.LevelWarning:
		s.logger.Warn(message, field)
	default:
		s.logger.Info(message, field)
	}
	return nil
}
