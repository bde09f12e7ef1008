package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the run logger. Entries go to the console at the configured
// verbosity and, unless disabled, to a per-run JSON file in ~/.flowcheck/logs/
// at debug level.
type Logger struct {
	*zap.Logger

	runID     string
	file      *os.File
	logPath   string
	closeOnce sync.Once
}

// Options configures New.
type Options struct {
	// Verbosity is quiet, normal, verbose or debug
	Verbosity string

	// File enables the per-run log file
	File bool

	// Dir overrides the log directory
	Dir string

	// RunID names the log file. Empty generates one.
	RunID string

	// Console receives human-readable entries. Defaults to stderr.
	Console io.Writer
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.New().String()
}

// ConsoleLevel maps a verbosity to the minimum console level. The console is
// kept quiet by default since progress is reported separately.
func ConsoleLevel(verbosity string) zapcore.Level {
	switch verbosity {
	case "quiet":
		return zapcore.ErrorLevel
	case "verbose":
		return zapcore.InfoLevel
	case "debug":
		return zapcore.DebugLevel
	default:
		return zapcore.WarnLevel
	}
}

// DefaultDir returns ~/.flowcheck/logs.
func DefaultDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".flowcheck", "logs"), nil
}

// New creates the run logger. The log file is <dir>/<run-id>.log.
//
// If the log directory cannot be created or the log file cannot be opened, it
// returns a console-only logger along with the error. Callers can check the error
// to detect fallback mode and log a warning.
func New(opts Options) (*Logger, error) {
	if opts.RunID == "" {
		opts.RunID = NewRunID()
	}
	if opts.Console == nil {
		opts.Console = os.Stderr
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	console := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.Lock(zapcore.AddSync(opts.Console)),
		zap.NewAtomicLevelAt(ConsoleLevel(opts.Verbosity)),
	)

	l := &Logger{runID: opts.RunID}
	if !opts.File {
		l.Logger = l.build(console)
		return l, nil
	}

	file, logPath, err := openLogFile(opts.Dir, opts.RunID)
	if err != nil {
		// Fallback to the console if we can't write the file
		l.Logger = l.build(console)
		l.Warn("file logging disabled, falling back to console", zap.Error(err))
		return l, err
	}

	fileConfig := zap.NewProductionEncoderConfig()
	fileConfig.TimeKey = "timestamp"
	fileConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(fileConfig),
		zapcore.AddSync(file),
		zapcore.DebugLevel,
	)

	l.file = file
	l.logPath = logPath
	l.Logger = l.build(zapcore.NewTee(console, fileCore))
	return l, nil
}

func (l *Logger) build(core zapcore.Core) *zap.Logger {
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)).
		With(zap.String("run_id", l.runID))
}

func openLogFile(dir, runID string) (*os.File, string, error) {
	if dir == "" {
		var err error
		dir, err = DefaultDir()
		if err != nil {
			return nil, "", err
		}
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, "", fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(dir, runID+".log")
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open log file: %w", err)
	}
	return file, logPath, nil
}

// RunID returns the run identifier
func (l *Logger) RunID() string {
	return l.runID
}

// LogPath returns the path to the log file, or "" when logging to the console only
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close flushes and closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		_ = l.Sync()
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}
