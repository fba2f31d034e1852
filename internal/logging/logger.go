// Package logging provides categorized file-based logging for PACTS.
// Logs are written to <workdir>/.pacts/logs/ with one file per category per
// day. Logging is controlled by the logging section of pacts.yaml; when
// debug_mode is false nothing is written.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category. Categories map 1:1 to the
// observability tags the runtime emits.
type Category string

const (
	CategoryBoot      Category = "boot"      // startup, config, shutdown
	CategoryProfile   Category = "profile"   // [PROFILE] runtime profile detection
	CategoryPlanner   Category = "planner"   // plan expansion, data binding
	CategoryDiscovery Category = "discovery" // [DISCOVERY] tier walk results
	CategoryCache     Category = "cache"     // [CACHE] hits, misses, drift
	CategoryReadiness Category = "readiness" // [READINESS] three-stage gate
	CategoryGate      Category = "gate"      // [GATE] actionability checks
	CategoryExec      Category = "exec"      // [EXEC] step execution
	CategoryHeal      Category = "heal"      // [HEAL] reveal/reprobe/stabilize
	CategoryVerdict   Category = "verdict"   // [VERDICT] classification + RCA
	CategoryResult    Category = "result"    // [RESULT] run summary
	CategoryBrowser   Category = "browser"   // driver lifecycle, navigation
	CategoryStore     Category = "store"     // durable store operations
)

// Options mirrors the logging section of the PACTS config. It is passed in
// explicitly so this package never imports internal/config.
type Options struct {
	DebugMode  bool
	Categories map[string]bool
	Level      string
	JSONFormat bool
}

// Logger writes one category's entries to its dated file.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	opts      Options
	optsMu    sync.RWMutex
	logLevel  zapcore.Level
)

// Initialize sets up the logging directory. Call once at startup with the
// working directory and the resolved logging options.
func Initialize(workdir string, o Options) error {
	if workdir == "" {
		return fmt.Errorf("workdir required")
	}

	optsMu.Lock()
	opts = o
	switch o.Level {
	case "debug":
		logLevel = zapcore.DebugLevel
	case "warn", "warning":
		logLevel = zapcore.WarnLevel
	case "error":
		logLevel = zapcore.ErrorLevel
	default:
		logLevel = zapcore.InfoLevel
	}
	optsMu.Unlock()

	if !o.DebugMode {
		return nil // silent no-op in production mode
	}

	logsDir = filepath.Join(workdir, ".pacts", "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== PACTS logging initialized ===")
	boot.Info("Logs directory: %s", logsDir)
	boot.Info("Log level: %s", o.Level)
	return nil
}

// IsDebugMode returns whether debug logging is enabled.
func IsDebugMode() bool {
	optsMu.RLock()
	defer optsMu.RUnlock()
	return opts.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled.
func IsCategoryEnabled(category Category) bool {
	optsMu.RLock()
	defer optsMu.RUnlock()

	if !opts.DebugMode {
		return false
	}
	if opts.Categories == nil {
		return true
	}
	enabled, exists := opts.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category. Returns a no-op
// logger when debug mode or the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) || logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix for easy rotation.
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	optsMu.RLock()
	jsonFormat := opts.JSONFormat
	level := logLevel
	optsMu.RUnlock()

	core := zapcore.NewCore(newEncoder(jsonFormat), zapcore.AddSync(file), level)
	sugar := zap.New(core).Sugar()
	if jsonFormat {
		sugar = sugar.With("cat", string(category))
	}

	l := &Logger{category: category, sugar: sugar, file: file}
	loggers[category] = l
	return l
}

func newEncoder(jsonFormat bool) zapcore.Encoder {
	ec := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "lvl",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
	if jsonFormat {
		ec.EncodeTime = zapcore.EpochMillisTimeEncoder
		ec.EncodeLevel = zapcore.LowercaseLevelEncoder
		return zapcore.NewJSONEncoder(ec)
	}
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000000")
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	ec.ConsoleSeparator = " "
	return zapcore.NewConsoleEncoder(ec)
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...any) {
	if l.sugar == nil {
		return
	}
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...any) {
	if l.sugar == nil {
		return
	}
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...any) {
	if l.sugar == nil {
		return
	}
	l.sugar.Warnf(format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	if l.sugar == nil {
		return
	}
	l.sugar.Errorf(format, args...)
}

// CloseAll flushes and closes all open log files (call at shutdown).
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, l := range loggers {
		if l.sugar != nil {
			l.sugar.Sync()
		}
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// RunLogger provides run-scoped logging carrying the req_id correlation key
// and the current step index in the tag format the log consumers parse:
// [TAG] req=<id> step=<n> message.
type RunLogger struct {
	reqID string

	mu      sync.Mutex
	stepIdx int
}

// ForRun creates a run-scoped logger for the given correlation key.
func ForRun(reqID string) *RunLogger {
	return &RunLogger{reqID: reqID, stepIdx: -1}
}

// SetStep records the step cursor included in subsequent entries.
func (r *RunLogger) SetStep(idx int) {
	r.mu.Lock()
	r.stepIdx = idx
	r.mu.Unlock()
}

func (r *RunLogger) prefix(category Category) string {
	r.mu.Lock()
	step := r.stepIdx
	r.mu.Unlock()
	tag := fmt.Sprintf("[%s] req=%s", categoryTag(category), r.reqID)
	if step >= 0 {
		tag += fmt.Sprintf(" step=%d", step)
	}
	return tag
}

// Info logs a run-scoped info entry to the category's file.
func (r *RunLogger) Info(category Category, format string, args ...any) {
	Get(category).Info("%s %s", r.prefix(category), fmt.Sprintf(format, args...))
}

// Debug logs a run-scoped debug entry to the category's file.
func (r *RunLogger) Debug(category Category, format string, args ...any) {
	Get(category).Debug("%s %s", r.prefix(category), fmt.Sprintf(format, args...))
}

// Warn logs a run-scoped warning entry to the category's file.
func (r *RunLogger) Warn(category Category, format string, args ...any) {
	Get(category).Warn("%s %s", r.prefix(category), fmt.Sprintf(format, args...))
}

// Error logs a run-scoped error entry to the category's file.
func (r *RunLogger) Error(category Category, format string, args ...any) {
	Get(category).Error("%s %s", r.prefix(category), fmt.Sprintf(format, args...))
}

func categoryTag(c Category) string {
	switch c {
	case CategoryProfile:
		return "PROFILE"
	case CategoryDiscovery:
		return "DISCOVERY"
	case CategoryCache:
		return "CACHE"
	case CategoryReadiness:
		return "READINESS"
	case CategoryGate:
		return "GATE"
	case CategoryExec:
		return "EXEC"
	case CategoryHeal:
		return "HEAL"
	case CategoryVerdict:
		return "VERDICT"
	case CategoryResult:
		return "RESULT"
	default:
		return string(c)
	}
}

// Timer helps measure operation duration.
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

// StopWithThreshold logs a warning if duration exceeds threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
