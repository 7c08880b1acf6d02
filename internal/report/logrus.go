package report

import "github.com/sirupsen/logrus"

// LogReporter writes events to a logrus logger with repo and step fields.
type LogReporter struct {
	log *logrus.Logger
}

// NewLogReporter wraps log. A nil logger falls back to logrus' standard logger.
func NewLogReporter(log *logrus.Logger) *LogReporter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogReporter{log: log}
}

func (r *LogReporter) Report(e Event) {
	fields := logrus.Fields{}
	if e.Repo != "" {
		fields["repo"] = e.Repo
	}
	if e.Step != "" {
		fields["step"] = string(e.Step)
	}
	entry := r.log.WithFields(fields)
	if !e.Time.IsZero() {
		entry = entry.WithTime(e.Time)
	}
	entry.Log(logrusLevel(e.Level), e.Message)
}

func logrusLevel(level Level) logrus.Level {
	switch level {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
