// Package logging provides categorized file-based logging for the engine.
// Each category writes to its own rotating file under <planDir>/logs/.
// Before Configure is called (or when a category is disabled) every call
// is a silent no-op, so library code can log unconditionally.
package logging

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Category names one engine subsystem's log stream.
type Category string

const (
	CategorySession  Category = "session"  // session lifecycle, flushes
	CategoryStore    Category = "store"    // filesystem layout, journal
	CategoryOrch     Category = "orch"     // execution queue, item progression
	CategoryResearch Category = "research" // research queue, agent calls
	CategoryDelta    Category = "delta"    // PRD deltas, task patching
	CategoryRuntime  Category = "runtime"  // validation gates, fix attempts
	CategoryPlanner  Category = "planner"  // PRD parsing
	CategoryWatch    Category = "watch"    // PRD file watching
	CategoryGit      Category = "git"      // commit capability
)

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Options controls where and how much the engine logs.
type Options struct {
	Dir        string          // log directory; empty disables logging
	Level      string          // debug, info, warn, error (default info)
	Categories map[string]bool // per-category enable; nil enables all
	MaxSizeMB  int             // per-file rotation threshold (default 10)
	MaxBackups int             // rotated files kept per category (default 3)
}

// Logger writes to one category's file. A zero logger is a no-op.
type Logger struct {
	category Category
	logger   *log.Logger
	sink     *lumberjack.Logger
}

var (
	mu      sync.RWMutex
	loggers = make(map[Category]*Logger)
	opts    Options
	active  bool
	level   = LevelInfo
)

// Configure enables logging with the given options. It may be called
// again to re-point the log directory; existing category files are
// closed and reopened lazily.
func Configure(o Options) {
	mu.Lock()
	defer mu.Unlock()

	closeAllLocked()
	opts = o
	active = o.Dir != ""
	switch o.Level {
	case "debug":
		level = LevelDebug
	case "warn", "warning":
		level = LevelWarn
	case "error":
		level = LevelError
	default:
		level = LevelInfo
	}
}

// Enabled reports whether the category currently produces output.
func Enabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabledLocked(category)
}

func enabledLocked(category Category) bool {
	if !active {
		return false
	}
	if opts.Categories == nil {
		return true
	}
	on, known := opts.Categories[string(category)]
	if !known {
		return true
	}
	return on
}

// Get returns (or creates) the logger for a category. Disabled
// categories get a no-op logger.
func Get(category Category) *Logger {
	mu.RLock()
	if !enabledLocked(category) {
		mu.RUnlock()
		return &Logger{category: category}
	}
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	maxBackups := opts.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 3
	}
	sink := &lumberjack.Logger{
		Filename:   filepath.Join(opts.Dir, string(category)+".log"),
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		Compress:   false,
	}
	l := &Logger{
		category: category,
		sink:     sink,
		logger:   log.New(sink, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

// Debug logs at debug level.
func (l *Logger) Debug(format string, args ...interface{}) { l.printf(LevelDebug, "DEBUG", format, args...) }

// Info logs at info level.
func (l *Logger) Info(format string, args ...interface{}) { l.printf(LevelInfo, "INFO", format, args...) }

// Warn logs at warning level.
func (l *Logger) Warn(format string, args ...interface{}) { l.printf(LevelWarn, "WARN", format, args...) }

// Error logs at error level.
func (l *Logger) Error(format string, args ...interface{}) { l.printf(LevelError, "ERROR", format, args...) }

func (l *Logger) printf(lvl int, tag, format string, args ...interface{}) {
	if l == nil || l.logger == nil {
		return
	}
	mu.RLock()
	skip := lvl < level
	mu.RUnlock()
	if skip {
		return
	}
	l.logger.Printf("[%s] %s", tag, fmt.Sprintf(format, args...))
}

// CloseAll flushes and closes every category file. Call at shutdown.
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	closeAllLocked()
}

func closeAllLocked() {
	for _, l := range loggers {
		if l.sink != nil {
			_ = l.sink.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - per-category logging without fetching a logger
// =============================================================================

// Session logs to the session category.
func Session(format string, args ...interface{}) { Get(CategorySession).Info(format, args...) }

// SessionDebug logs debug to the session category.
func SessionDebug(format string, args ...interface{}) { Get(CategorySession).Debug(format, args...) }

// SessionWarn logs a warning to the session category.
func SessionWarn(format string, args ...interface{}) { Get(CategorySession).Warn(format, args...) }

// SessionError logs an error to the session category.
func SessionError(format string, args ...interface{}) { Get(CategorySession).Error(format, args...) }

// Store logs to the store category.
func Store(format string, args ...interface{}) { Get(CategoryStore).Info(format, args...) }

// StoreDebug logs debug to the store category.
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }

// StoreWarn logs a warning to the store category.
func StoreWarn(format string, args ...interface{}) { Get(CategoryStore).Warn(format, args...) }

// Orch logs to the orchestrator category.
func Orch(format string, args ...interface{}) { Get(CategoryOrch).Info(format, args...) }

// OrchDebug logs debug to the orchestrator category.
func OrchDebug(format string, args ...interface{}) { Get(CategoryOrch).Debug(format, args...) }

// OrchWarn logs a warning to the orchestrator category.
func OrchWarn(format string, args ...interface{}) { Get(CategoryOrch).Warn(format, args...) }

// OrchError logs an error to the orchestrator category.
func OrchError(format string, args ...interface{}) { Get(CategoryOrch).Error(format, args...) }

// Research logs to the research category.
func Research(format string, args ...interface{}) { Get(CategoryResearch).Info(format, args...) }

// ResearchDebug logs debug to the research category.
func ResearchDebug(format string, args ...interface{}) { Get(CategoryResearch).Debug(format, args...) }

// ResearchWarn logs a warning to the research category.
func ResearchWarn(format string, args ...interface{}) { Get(CategoryResearch).Warn(format, args...) }

// Delta logs to the delta category.
func Delta(format string, args ...interface{}) { Get(CategoryDelta).Info(format, args...) }

// DeltaDebug logs debug to the delta category.
func DeltaDebug(format string, args ...interface{}) { Get(CategoryDelta).Debug(format, args...) }

// Runtime logs to the runtime category.
func Runtime(format string, args ...interface{}) { Get(CategoryRuntime).Info(format, args...) }

// RuntimeDebug logs debug to the runtime category.
func RuntimeDebug(format string, args ...interface{}) { Get(CategoryRuntime).Debug(format, args...) }

// RuntimeWarn logs a warning to the runtime category.
func RuntimeWarn(format string, args ...interface{}) { Get(CategoryRuntime).Warn(format, args...) }

// Planner logs to the planner category.
func Planner(format string, args ...interface{}) { Get(CategoryPlanner).Info(format, args...) }

// PlannerDebug logs debug to the planner category.
func PlannerDebug(format string, args ...interface{}) { Get(CategoryPlanner).Debug(format, args...) }

// Watch logs to the watch category.
func Watch(format string, args ...interface{}) { Get(CategoryWatch).Info(format, args...) }

// Git logs to the git category.
func Git(format string, args ...interface{}) { Get(CategoryGit).Info(format, args...) }

// GitWarn logs a warning to the git category.
func GitWarn(format string, args ...interface{}) { Get(CategoryGit).Warn(format, args...) }

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer measures one operation's duration.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning when the duration exceeds threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
