package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

// slowQueryThreshold is the cutoff above which a worker-store query is
// logged as a warning regardless of the configured log level.
const slowQueryThreshold = 200 * time.Millisecond

// gormZapLogger bridges GORM's internal logging interface to the daemon's
// zap logger, so worker/task/claim query traffic shows up in the same
// structured log stream as the rest of hostfleetd instead of on stdout.
type gormZapLogger struct {
	log   *zap.Logger
	level gormlogger.LogLevel
}

// newGormLogger returns a gormlogger.Interface backed by log. Pass
// gormlogger.Silent to disable GORM logging entirely, or gormlogger.Info to
// trace every statement against the worker store.
func newGormLogger(log *zap.Logger, level gormlogger.LogLevel) gormlogger.Interface {
	if level == 0 {
		level = gormlogger.Warn
	}
	return &gormZapLogger{log: log.WithOptions(zap.AddCallerSkip(3)), level: level}
}

// LogMode returns a copy of the logger at a different level; GORM calls
// this when an operation (e.g. db.Debug()) needs a one-off override.
func (l *gormZapLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	copy := *l
	copy.level = level
	return &copy
}

func (l *gormZapLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		l.log.Info(fmt.Sprintf(msg, args...))
	}
}

func (l *gormZapLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.log.Warn(fmt.Sprintf(msg, args...))
	}
}

func (l *gormZapLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		l.log.Error(fmt.Sprintf(msg, args...))
	}
}

// Trace logs one executed SQL statement with its duration and row count,
// escalating to a warning past slowQueryThreshold. gorm.ErrRecordNotFound
// is not an error for this store — GetWorker/GetTasksForWorker callers
// treat it as a normal miss — so it is never logged at error level.
func (l *gormZapLogger) Trace(_ context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []zap.Field{
		zap.String("sql", sql),
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("caller", utils.FileWithLineNum()),
	}

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		l.log.Error("worker store query error", append(fields, zap.Error(err))...)

	case elapsed > slowQueryThreshold:
		l.log.Warn("worker store slow query", fields...)

	case l.level >= gormlogger.Info:
		l.log.Debug("worker store query", fields...)
	}
}
