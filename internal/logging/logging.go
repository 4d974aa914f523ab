// Package logging builds the broker's structured logger and the bounded,
// per-job-filterable log ring described by spec §7, adapted from the
// original's singleton Logger (original_source/molequeue/logger.{h,cpp}):
// four severities (Debug/Notification/Warning/Error), every entry
// optionally tagged with a MoleQueue id, and printed as well as retained.
package logging

import (
	"go.uber.org/zap"

	"github.com/molequeue-io/molequeue/internal/jobs"
)

// BuildLogger constructs the process-wide *zap.Logger, selecting a
// development or production encoder config and atomic level exactly as
// the teacher's cmd/server/main.go buildLogger does.
func BuildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config
	if level == "debug" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

// Level is the closed set of log severities spec §7 names, matching the
// original's LogEntry::LogEntryType enum.
type Level int

const (
	Debug Level = iota
	Notification
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "Debug"
	case Notification:
		return "Notification"
	case Warning:
		return "Warning"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// Logger pairs the process-wide zap logger with the in-memory Ring,
// mirroring the original's Logger::addLogEntry (push to m_log, then print
// via qDebug/qWarning depending on type).
type Logger struct {
	zap  *zap.Logger
	ring *Ring
}

// New wraps zap and a freshly created Ring of the given capacity.
func New(zapLogger *zap.Logger, ringCapacity int) *Logger {
	return &Logger{zap: zapLogger, ring: NewRing(ringCapacity)}
}

// Ring exposes the underlying ring buffer for direct queries (e.g. from
// internal/adminhttp's /debug/jobs/{id}/logs handler).
func (l *Logger) Ring() *Ring { return l.ring }

// Log records entry in the ring and prints it through zap at the level
// spec §7 maps each severity to: Debug/Notification at Info, Warning at
// Warn, Error at Error. JobID is omitted from the printed fields when it
// is jobs.InvalidID, since most Debug/Notification entries are not job
// scoped.
func (l *Logger) Log(level Level, message string, jobID jobs.ID) {
	l.ring.Add(level, message, jobID)

	fields := []zap.Field{zap.String("severity", level.String())}
	if jobID.IsValid() {
		fields = append(fields, zap.Uint64("moleQueueId", uint64(jobID)))
	}

	switch level {
	case Warning:
		l.zap.Warn(message, fields...)
	case Error:
		l.zap.Error(message, fields...)
	default:
		l.zap.Info(message, fields...)
	}
}

// AddDebugMessage, AddNotification, AddWarning, and AddError mirror the
// original's static Logger::addDebugMessage/addNotification/addWarning/
// addError convenience methods.
func (l *Logger) AddDebugMessage(jobID jobs.ID, message string) { l.Log(Debug, message, jobID) }
func (l *Logger) AddNotification(jobID jobs.ID, message string) { l.Log(Notification, message, jobID) }
func (l *Logger) AddWarning(jobID jobs.ID, message string)      { l.Log(Warning, message, jobID) }
func (l *Logger) AddError(jobID jobs.ID, message string)        { l.Log(Error, message, jobID) }
