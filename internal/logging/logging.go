// Package logging builds the gitlab-sync logger: a colored console sink and
// an optional rotating log file.
package logging

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	appName    = "gitlab-sync"
	timeLayout = "2006-01-02 15:04:05,000"
)

// Options configures New.
type Options struct {
	// Console receives human-oriented output. Nil disables it.
	Console io.Writer
	// Level is the console threshold. The file always records debug.
	Level logrus.Level
	// Color enables ANSI colors on the console.
	Color bool
	// File is the rotating log file. Empty disables it.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// New returns a logger and a closer for its file sink.
func New(opts Options) (*logrus.Logger, io.Closer) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.SetLevel(logrus.DebugLevel)

	if opts.Console != nil {
		log.AddHook(&writerHook{
			out:       opts.Console,
			levels:    levelsUpTo(opts.Level),
			formatter: &ConsoleFormatter{Color: opts.Color},
		})
	}

	var closer io.Closer = nopCloser{}
	if strings.TrimSpace(opts.File) != "" {
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		}
		log.AddHook(&writerHook{
			out:       file,
			levels:    logrus.AllLevels,
			formatter: &FileFormatter{},
		})
		closer = file
	}
	return log, closer
}

// ParseLevel maps a config level and the verbosity flags to a console level.
func ParseLevel(configured string, verbose int, quiet bool) (logrus.Level, error) {
	switch {
	case quiet:
		return logrus.WarnLevel, nil
	case verbose > 0:
		return logrus.DebugLevel, nil
	case strings.TrimSpace(configured) == "":
		return logrus.InfoLevel, nil
	}
	return logrus.ParseLevel(configured)
}

func levelsUpTo(threshold logrus.Level) []logrus.Level {
	var levels []logrus.Level
	for _, l := range logrus.AllLevels {
		if l <= threshold {
			levels = append(levels, l)
		}
	}
	return levels
}

type writerHook struct {
	mu        sync.Mutex
	out       io.Writer
	levels    []logrus.Level
	formatter logrus.Formatter
}

func (h *writerHook) Levels() []logrus.Level { return h.levels }

func (h *writerHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.out.Write(line)
	return err
}

// ConsoleFormatter renders "[LEVEL] repo: message".
type ConsoleFormatter struct {
	Color bool
}

func (f *ConsoleFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	line := fmt.Sprintf("[%s] %s", levelName(entry.Level), withRepo(entry))
	if c := levelColor(entry.Level); c != nil {
		if f.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		line = c.Sprint(line)
	}
	return []byte(line + "\n"), nil
}

// FileFormatter renders "time - gitlab-sync - LEVEL - message" followed by
// any extra fields.
type FileFormatter struct{}

func (f *FileFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s - %s - %s - %s", entry.Time.Format(timeLayout), appName, levelName(entry.Level), withRepo(entry))

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k != "repo" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

func withRepo(entry *logrus.Entry) string {
	if repo, ok := entry.Data["repo"]; ok {
		return fmt.Sprintf("%v: %s", repo, entry.Message)
	}
	return entry.Message
}

func levelName(level logrus.Level) string {
	if level == logrus.WarnLevel {
		return "WARN"
	}
	return strings.ToUpper(level.String())
}

func levelColor(level logrus.Level) *color.Color {
	switch level {
	case logrus.DebugLevel, logrus.TraceLevel:
		return color.New(color.FgBlue)
	case logrus.WarnLevel:
		return color.New(color.FgYellow)
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return color.New(color.FgRed)
	default:
		return nil
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
