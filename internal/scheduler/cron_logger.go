package scheduler

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronLogger 将 cron 内部日志转到 zap
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func newCronLogger(l *zap.Logger) cron.Logger {
	return &cronLogger{sugar: l.Sugar()}
}

// Info cron 的常规调度日志只输出到 debug
func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
