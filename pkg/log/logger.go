// Structured logging for the motion runtime
//
// Component loggers created with GetLogger or WithPrefix share one output
// core, so level and sink changes made after startup reach every axis,
// scheduler and service logger at once.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level name. Unknown names map to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// OutputFormat specifies the output format for log messages
type OutputFormat int

const (
	FormatText OutputFormat = iota
	FormatJSON
)

// ParseFormat maps "json" to FormatJSON and anything else to FormatText.
func ParseFormat(s string) OutputFormat {
	if strings.EqualFold(strings.TrimSpace(s), "json") {
		return FormatJSON
	}
	return FormatText
}

// Fields is a map of structured logging fields
type Fields map[string]interface{}

func (f Fields) merge(other Fields) Fields {
	out := make(Fields, len(f)+len(other))
	for k, v := range f {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// core is the output state shared by a logger family.
type core struct {
	mu         sync.Mutex
	writer     io.Writer
	level      LogLevel
	timeFormat string
	colorize   bool
	format     OutputFormat
	caller     bool
}

// Logger writes leveled messages tagged with a component prefix.
type Logger struct {
	prefix string
	fields Fields
	core   *core
}

// Entry is a pending message with attached fields.
type Entry struct {
	logger *Logger
	fields Fields
}

var (
	defaultMu     sync.Mutex
	defaultLogger *Logger

	ansiColors = map[LogLevel]string{
		DEBUG: "\x1b[36m",
		INFO:  "\x1b[32m",
		WARN:  "\x1b[33m",
		ERROR: "\x1b[31m",
	}
	ansiReset = "\x1b[0m"
)

// New creates a logger with its own output core writing to stderr.
func New(prefix string) *Logger {
	return &Logger{
		prefix: prefix,
		core: &core{
			writer:     os.Stderr,
			level:      INFO,
			timeFormat: "2006-01-02 15:04:05.000",
			colorize:   os.Getenv("NO_COLOR") == "",
			format:     FormatText,
		},
	}
}

func (l *Logger) SetLevel(level LogLevel) {
	l.core.mu.Lock()
	l.core.level = level
	l.core.mu.Unlock()
}

func (l *Logger) GetLevel() LogLevel {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	return l.core.level
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level LogLevel) bool {
	return level >= l.GetLevel()
}

// SetWriter sets the output writer for the whole logger family.
func (l *Logger) SetWriter(w io.Writer) {
	l.core.mu.Lock()
	l.core.writer = w
	l.core.mu.Unlock()
}

func (l *Logger) SetTimeFormat(format string) {
	l.core.mu.Lock()
	l.core.timeFormat = format
	l.core.mu.Unlock()
}

func (l *Logger) SetColorize(enable bool) {
	l.core.mu.Lock()
	l.core.colorize = enable
	l.core.mu.Unlock()
}

func (l *Logger) SetFormat(format OutputFormat) {
	l.core.mu.Lock()
	l.core.format = format
	l.core.mu.Unlock()
}

// SetCaller enables file:line annotations.
func (l *Logger) SetCaller(enable bool) {
	l.core.mu.Lock()
	l.core.caller = enable
	l.core.mu.Unlock()
}

// Prefix returns the component name.
func (l *Logger) Prefix() string { return l.prefix }

// WithPrefix returns a logger for another component sharing this output.
func (l *Logger) WithPrefix(prefix string) *Logger {
	return &Logger{prefix: prefix, fields: l.fields, core: l.core}
}

// With returns a logger that attaches fields to every message.
func (l *Logger) With(fields Fields) *Logger {
	return &Logger{prefix: l.prefix, fields: l.fields.merge(fields), core: l.core}
}

func (l *Logger) WithField(key string, value interface{}) *Entry {
	return &Entry{logger: l, fields: Fields{key: value}}
}

func (l *Logger) WithFields(fields Fields) *Entry {
	return &Entry{logger: l, fields: fields}
}

func (l *Logger) WithError(err error) *Entry {
	return l.WithField("error", errString(err))
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}

func getCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

type jsonEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Logger    string                 `json:"logger"`
	Message   string                 `json:"message"`
	Caller    string                 `json:"caller,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func (c *core) render(now time.Time, level LogLevel, prefix, msg, caller string, fields Fields) string {
	if c.format == FormatJSON {
		e := jsonEntry{
			Timestamp: now.Format(time.RFC3339Nano),
			Level:     level.String(),
			Logger:    prefix,
			Message:   msg,
			Caller:    caller,
		}
		if len(fields) > 0 {
			e.Fields = fields
		}
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Sprintf(`{"error":"failed to marshal log entry: %v"}`+"\n", err)
		}
		return string(data) + "\n"
	}

	var sb strings.Builder
	sb.WriteString(now.Format(c.timeFormat))
	fmt.Fprintf(&sb, " [%-5s] ", level.String())
	if c.colorize {
		sb.WriteString(ansiColors[level])
	}
	sb.WriteString(prefix)
	if c.colorize {
		sb.WriteString(ansiReset)
	}
	sb.WriteString(": ")
	sb.WriteString(msg)
	if caller != "" {
		sb.WriteString(" (" + caller + ")")
	}
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s=%v", k, fields[k])
		}
		sb.WriteString("}")
	}
	sb.WriteByte('\n')
	return sb.String()
}

// emit writes one message. skip counts frames between the public logging
// call and emit.
func (l *Logger) emit(level LogLevel, msg string, fields Fields, skip int) {
	c := l.core
	c.mu.Lock()
	defer c.mu.Unlock()
	if level < c.level {
		return
	}
	caller := ""
	if c.caller {
		caller = getCaller(skip + 2)
	}
	if len(l.fields) > 0 {
		fields = l.fields.merge(fields)
	}
	io.WriteString(c.writer, c.render(time.Now(), level, l.prefix, msg, caller, fields))
}

func sprintf(msg string, args []interface{}) string {
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

// Debug logs a printf style message at DEBUG level.
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.emit(DEBUG, sprintf(msg, args), nil, 1)
}

func (l *Logger) Info(msg string, args ...interface{}) {
	l.emit(INFO, sprintf(msg, args), nil, 1)
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	l.emit(WARN, sprintf(msg, args), nil, 1)
}

func (l *Logger) Error(msg string, args ...interface{}) {
	l.emit(ERROR, sprintf(msg, args), nil, 1)
}

// Entry methods

func (e *Entry) WithField(key string, value interface{}) *Entry {
	return &Entry{logger: e.logger, fields: e.fields.merge(Fields{key: value})}
}

func (e *Entry) WithFields(fields Fields) *Entry {
	return &Entry{logger: e.logger, fields: e.fields.merge(fields)}
}

func (e *Entry) WithError(err error) *Entry {
	return e.WithField("error", errString(err))
}

func (e *Entry) Debug(msg string) { e.logger.emit(DEBUG, msg, e.fields, 1) }
func (e *Entry) Info(msg string)  { e.logger.emit(INFO, msg, e.fields, 1) }
func (e *Entry) Warn(msg string)  { e.logger.emit(WARN, msg, e.fields, 1) }
func (e *Entry) Error(msg string) { e.logger.emit(ERROR, msg, e.fields, 1) }

func (e *Entry) Debugf(format string, args ...interface{}) {
	e.logger.emit(DEBUG, fmt.Sprintf(format, args...), e.fields, 1)
}

func (e *Entry) Infof(format string, args ...interface{}) {
	e.logger.emit(INFO, fmt.Sprintf(format, args...), e.fields, 1)
}

func (e *Entry) Warnf(format string, args ...interface{}) {
	e.logger.emit(WARN, fmt.Sprintf(format, args...), e.fields, 1)
}

func (e *Entry) Errorf(format string, args ...interface{}) {
	e.logger.emit(ERROR, fmt.Sprintf(format, args...), e.fields, 1)
}

// SetDefaultLogger replaces the root of GetLogger. Loggers obtained before
// the call keep writing through the old root.
func SetDefaultLogger(logger *Logger) {
	defaultMu.Lock()
	defaultLogger = logger
	defaultMu.Unlock()
}

// Default returns the root logger.
func Default() *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New("motion")
	}
	return defaultLogger
}

// GetLogger returns a component logger sharing the root output.
func GetLogger(prefix string) *Logger {
	return Default().WithPrefix(prefix)
}

func Debug(msg string, args ...interface{}) { Default().emit(DEBUG, sprintf(msg, args), nil, 1) }
func Info(msg string, args ...interface{})  { Default().emit(INFO, sprintf(msg, args), nil, 1) }
func Warn(msg string, args ...interface{})  { Default().emit(WARN, sprintf(msg, args), nil, 1) }
func Error(msg string, args ...interface{}) { Default().emit(ERROR, sprintf(msg, args), nil, 1) }

func init() {
	l := New("motion")
	ConfigureFromEnv(l)
	defaultLogger = l
}

// ConfigureFromEnv applies environment-based configuration to the logger.
// Environment variables:
//   - MOTION_LOG_LEVEL: DEBUG, INFO, WARN, ERROR
//   - MOTION_LOG_FORMAT: text, json
//   - MOTION_LOG_CALLER: any non-empty value enables caller info
//   - NO_COLOR: any non-empty value disables colors
func ConfigureFromEnv(l *Logger) {
	if s := os.Getenv("MOTION_LOG_LEVEL"); s != "" {
		l.SetLevel(ParseLevel(s))
	}
	if s := os.Getenv("MOTION_LOG_FORMAT"); s != "" {
		l.SetFormat(ParseFormat(s))
	}
	if os.Getenv("MOTION_LOG_CALLER") != "" {
		l.SetCaller(true)
	}
	if os.Getenv("NO_COLOR") != "" {
		l.SetColorize(false)
	}
}
