package xlog

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// LogLevel is the set of all log levels.
type LogLevel int8

const (
	// CRITICAL is the lowest log level. Will exit the program.
	CRITICAL LogLevel = iota - 1

	// ERROR is for errors, but does not fatal. Only indicates potential troubles.
	ERROR

	// WARN warns about potential errors or problems.
	WARN

	// INFO just indicates information.
	INFO

	// DEBUG is debug-level logging.
	DEBUG
)

// String returns a single-character representation of LogLevel.
func (l LogLevel) String() string {
	switch l {
	case CRITICAL:
		return "C"
	case ERROR:
		return "E"
	case WARN:
		return "W"
	case INFO:
		return "I"
	case DEBUG:
		return "D"
	default:
		panic("unknown LogLevel")
	}
}

// ParseLogLevel parses a level name such as "info" or "DEBUG".
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CRITICAL", "C":
		return CRITICAL, nil
	case "ERROR", "E":
		return ERROR, nil
	case "WARN", "WARNING", "W":
		return WARN, nil
	case "INFO", "I":
		return INFO, nil
	case "DEBUG", "D":
		return DEBUG, nil
	default:
		return INFO, fmt.Errorf("xlog: unknown log level %q", s)
	}
}

// Logger contains log prefix(pkg) and LogLevel.
type Logger struct {
	pkg    string
	maxLvl LogLevel
}

func (l *Logger) log(lvl LogLevel, txt string) {
	if lvl < CRITICAL || lvl > DEBUG {
		return
	}

	xlogger.mu.Lock()
	if l.maxLvl < lvl {
		xlogger.mu.Unlock()
		return
	}
	xlogger.formatter.WriteFlush(l.pkg, lvl, txt)
	xlogger.mu.Unlock()
}

// Enabled returns true if lvl would be written by this Logger.
func (l *Logger) Enabled(lvl LogLevel) bool {
	xlogger.mu.Lock()
	ok := lvl <= l.maxLvl
	xlogger.mu.Unlock()
	return ok
}

func (l *Logger) Panic(args ...interface{}) {
	txt := fmt.Sprint(args...)
	l.log(CRITICAL, txt)
	panic(txt)
}

func (l *Logger) Panicln(args ...interface{}) {
	txt := fmt.Sprintln(args...)
	l.log(CRITICAL, txt)
	panic(txt)
}

func (l *Logger) Panicf(format string, args ...interface{}) {
	txt := fmt.Sprintf(format, args...)
	l.log(CRITICAL, txt)
	panic(txt)
}

func (l *Logger) Fatal(args ...interface{}) {
	l.log(CRITICAL, fmt.Sprint(args...))
	os.Exit(1)
}

func (l *Logger) Fatalln(args ...interface{}) {
	l.log(CRITICAL, fmt.Sprintln(args...))
	os.Exit(1)
}

func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.log(CRITICAL, fmt.Sprintf(format, args...))
	os.Exit(1)
}

func (l *Logger) Error(args ...interface{})   { l.log(ERROR, fmt.Sprint(args...)) }
func (l *Logger) Errorln(args ...interface{}) { l.log(ERROR, fmt.Sprintln(args...)) }
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(ERROR, fmt.Sprintf(format, args...))
}

func (l *Logger) Warning(args ...interface{})   { l.log(WARN, fmt.Sprint(args...)) }
func (l *Logger) Warningln(args ...interface{}) { l.log(WARN, fmt.Sprintln(args...)) }
func (l *Logger) Warningf(format string, args ...interface{}) {
	l.log(WARN, fmt.Sprintf(format, args...))
}

func (l *Logger) Print(args ...interface{})   { l.log(INFO, fmt.Sprint(args...)) }
func (l *Logger) Println(args ...interface{}) { l.log(INFO, fmt.Sprintln(args...)) }
func (l *Logger) Printf(format string, args ...interface{}) {
	l.log(INFO, fmt.Sprintf(format, args...))
}

func (l *Logger) Info(args ...interface{})   { l.log(INFO, fmt.Sprint(args...)) }
func (l *Logger) Infoln(args ...interface{}) { l.log(INFO, fmt.Sprintln(args...)) }
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(INFO, fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(args ...interface{})   { l.log(DEBUG, fmt.Sprint(args...)) }
func (l *Logger) Debugln(args ...interface{}) { l.log(DEBUG, fmt.Sprintln(args...)) }
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(DEBUG, fmt.Sprintf(format, args...))
}

type globalLogger struct {
	mu        sync.Mutex
	loggers   map[string]*Logger
	formatter Formatter
}

var xlogger = &globalLogger{
	loggers: make(map[string]*Logger),
}

// SetMaxLogLevel updates logger's LogLevel.
func (l *Logger) SetMaxLogLevel(lvl LogLevel) {
	xlogger.mu.Lock()
	l.maxLvl = lvl
	xlogger.mu.Unlock()
}

// SetGlobalMaxLogLevel sets max log levels of all loggers.
func SetGlobalMaxLogLevel(lvl LogLevel) {
	xlogger.mu.Lock()
	for _, lg := range xlogger.loggers {
		lg.maxLvl = lvl
	}
	xlogger.mu.Unlock()
}

// GetLogger returns the pkg logger, so that external packages can update the log level.
func GetLogger(name string) (*Logger, bool) {
	xlogger.mu.Lock()
	lg, ok := xlogger.loggers[name]
	xlogger.mu.Unlock()
	return lg, ok
}

// NewLogger returns a Logger with pkg prefix.
// Creating a Logger twice for the same pkg replaces the registered one.
func NewLogger(pkg string, maxLvl LogLevel) *Logger {
	lg := &Logger{pkg: pkg, maxLvl: maxLvl}

	xlogger.mu.Lock()
	xlogger.loggers[pkg] = lg
	xlogger.mu.Unlock()

	return lg
}
