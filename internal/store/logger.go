package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// zapGORMLoggerImpl adapts a *zap.Logger to gormlogger.Interface so GORM's
// internal query tracing is routed through the broker's own logger instead
// of stdout.
func newZapGORMLogger(log *zap.Logger) gormlogger.Interface {
	return &zapGORMLoggerImpl{
		log:                log.WithOptions(zap.AddCallerSkip(3)),
		level:              gormlogger.Warn,
		slowQueryThreshold: 200 * time.Millisecond,
	}
}

type zapGORMLoggerImpl struct {
	log                *zap.Logger
	level              gormlogger.LogLevel
	slowQueryThreshold time.Duration
}

func (l *zapGORMLoggerImpl) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *l
	c.level = level
	return &c
}

func (l *zapGORMLoggerImpl) Info(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		l.log.Info(fmt.Sprintf(msg, args...))
	}
}

func (l *zapGORMLoggerImpl) Warn(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.log.Warn(fmt.Sprintf(msg, args...))
	}
}

func (l *zapGORMLoggerImpl) Error(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		l.log.Error(fmt.Sprintf(msg, args...))
	}
}

// Trace logs individual SQL statements with their execution time. The
// history table only ever sees single-row inserts and small range scans,
// so a 200ms slow-query threshold is generous, not tuned.
func (l *zapGORMLoggerImpl) Trace(_ context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{
		zap.String("sql", sql),
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
	}

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		l.log.Error("store: gorm query error", append(fields, zap.Error(err))...)
	case l.slowQueryThreshold > 0 && elapsed > l.slowQueryThreshold:
		l.log.Warn("store: gorm slow query", fields...)
	case l.level >= gormlogger.Info:
		l.log.Debug("store: gorm query", fields...)
	}
}
