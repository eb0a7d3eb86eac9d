// Package logging is the process log sink: five severities, a minimum level, errors to the
// error stream and everything else to the standard stream, one line per call.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

type Level int

const (
	Verbose Level = iota
	Debug
	Info
	Warn
	Error
)

var levelNames = map[Level]string{
	Verbose: "Verbose",
	Debug:   "Debug",
	Info:    "Info",
	Warn:    "Warn",
	Error:   "Error",
}

func (l Level) String() string {
	name, ok := levelNames[l]
	if !ok {
		return "Unknown"
	}
	return name
}

// ParseLevel accepts the level names case-insensitively, plus "trace" and "warning".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "verbose", "trace":
		return Verbose, nil
	case "debug":
		return Debug, nil
	case "info":
		return Info, nil
	case "warn", "warning":
		return Warn, nil
	case "error":
		return Error, nil
	}
	return Info, errors.Newf("unknown log level %q", s)
}

func (l Level) logrus() logrus.Level {
	switch l {
	case Verbose:
		return logrus.TraceLevel
	case Debug:
		return logrus.DebugLevel
	case Info:
		return logrus.InfoLevel
	case Warn:
		return logrus.WarnLevel
	default:
		return logrus.ErrorLevel
	}
}

func fromLogrus(l logrus.Level) Level {
	switch l {
	case logrus.TraceLevel:
		return Verbose
	case logrus.DebugLevel:
		return Debug
	case logrus.InfoLevel:
		return Info
	case logrus.WarnLevel:
		return Warn
	default:
		return Error
	}
}

// Fields are structured key/value pairs appended to a line.
type Fields = logrus.Fields

// Logger wraps a logrus logger whose output is routed by a streamHook.
type Logger struct {
	entry *logrus.Entry
}

// New builds a logger emitting at min or above.
func New(min Level, stdout, stderr io.Writer) *Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	base.SetLevel(min.logrus())
	base.AddHook(&streamHook{
		formatter: lineFormatter{},
		out:       stdout,
		errOut:    stderr,
	})
	return &Logger{entry: logrus.NewEntry(base)}
}

// NewStd logs to os.Stdout and os.Stderr.
func NewStd(min Level) *Logger {
	return New(min, os.Stdout, os.Stderr)
}

// Discard drops everything.
func Discard() *Logger {
	log := New(Error, io.Discard, io.Discard)
	log.entry.Logger.SetLevel(logrus.PanicLevel)
	return log
}

func (l *Logger) SetLevel(min Level) {
	l.entry.Logger.SetLevel(min.logrus())
}

func (l *Logger) Level() Level {
	return fromLogrus(l.entry.Logger.GetLevel())
}

func (l *Logger) Enabled(level Level) bool {
	if level > Error {
		return false
	}
	return l.entry.Logger.IsLevelEnabled(level.logrus())
}

// With returns a logger that appends fields to every line.
func (l *Logger) With(fields Fields) *Logger {
	return &Logger{entry: l.entry.WithFields(fields)}
}

func (l *Logger) Log(level Level, msg string) {
	if level > Error {
		level = Error
	}
	l.entry.Log(level.logrus(), msg)
}

func (l *Logger) Logf(level Level, format string, args ...interface{}) {
	if !l.Enabled(level) {
		return
	}
	l.Log(level, fmt.Sprintf(format, args...))
}

func (l *Logger) Verbosef(format string, args ...interface{}) { l.Logf(Verbose, format, args...) }
func (l *Logger) Debugf(format string, args ...interface{})   { l.Logf(Debug, format, args...) }
func (l *Logger) Infof(format string, args ...interface{})    { l.Logf(Info, format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})    { l.Logf(Warn, format, args...) }
func (l *Logger) Errorf(format string, args ...interface{})   { l.Logf(Error, format, args...) }

// streamHook writes formatted entries itself so Error can go to a different stream than the
// rest. Its own lock keeps each line atomic across both streams.
type streamHook struct {
	mu        sync.Mutex
	formatter logrus.Formatter
	out       io.Writer
	errOut    io.Writer
}

func (h *streamHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *streamHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}

	w := h.out
	if entry.Level <= logrus.ErrorLevel {
		w = h.errOut
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = w.Write(line)
	return err
}

// lineFormatter renders "[Level] message key=value ..." with keys sorted.
type lineFormatter struct{}

func (lineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('[')
	b.WriteString(fromLogrus(entry.Level).String())
	b.WriteString("] ")
	b.WriteString(strings.TrimRight(entry.Message, "\n"))

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}
