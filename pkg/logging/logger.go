package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// LogDirEnv overrides the directory log files are written to.
const LogDirEnv = "BROWSERPILOT_LOG_DIR"

// Level orders log severities. Messages below the global level are dropped.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int32(l))
	}
}

// ParseLevel maps a config string ("debug", "info", "warn", "error") to a
// Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelDebug, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger writes component-tagged log lines for browserpilot. All loggers of
// one process share a session ID and a single file:
// ~/.browserpilot/logs/<session-id>-browserpilot.log
type Logger struct {
	sessionID string
	component string
	file      *os.File
	logger    *log.Logger
	mu        sync.Mutex
	logPath   string
	closeOnce sync.Once
}

var (
	sessionID     string
	sessionIDOnce sync.Once

	logDir   string
	initOnce sync.Once
	initErr  error

	minLevel atomic.Int32
)

// SetLevel sets the minimum level written by every logger.
func SetLevel(l Level) {
	minLevel.Store(int32(l))
}

// SetSessionID pins the session ID used for the log file name. It only has
// an effect before the first logger or GetSessionID call.
func SetSessionID(id string) {
	sessionIDOnce.Do(func() {
		sessionID = id
	})
}

func getSessionID() string {
	sessionIDOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}

func initLogDirectory() error {
	initOnce.Do(func() {
		logDir = os.Getenv(LogDirEnv)
		if logDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				initErr = fmt.Errorf("failed to get home directory: %w", err)
				return
			}
			logDir = filepath.Join(homeDir, ".browserpilot", "logs")
		}
		if err := os.MkdirAll(logDir, 0750); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
			return
		}
	})
	return initErr
}

// NewLogger creates a logger for a component.
//
// If the log directory or file cannot be opened, it returns a logger that
// writes to stderr together with the error, so callers can warn about
// fallback mode.
func NewLogger(component string) (*Logger, error) {
	if err := initLogDirectory(); err != nil {
		return newFallbackLogger(component, err), err
	}

	sessID := getSessionID()
	logPath := filepath.Join(logDir, fmt.Sprintf("%s-browserpilot.log", sessID))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return newFallbackLogger(component, fmt.Errorf("failed to open log file: %w", err)), err
	}

	return &Logger{
		sessionID: sessID,
		component: component,
		file:      file,
		logger:    log.New(file, "", 0),
		logPath:   logPath,
	}, nil
}

func newFallbackLogger(component string, err error) *Logger {
	logger := log.New(os.Stderr, "", 0)
	l := &Logger{
		sessionID: getSessionID(),
		component: component,
		logger:    logger,
	}
	l.write(LevelWarn, fmt.Sprintf("file logging unavailable, using stderr: %v", err))
	return l
}

func (l *Logger) write(level Level, message string) {
	if int32(level) < minLevel.Load() {
		return
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")

	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Printf("[%s] [%s] [%s] %s", timestamp, l.component, level, message)
}

func (l *Logger) Debugf(format string, v ...any) {
	l.write(LevelDebug, fmt.Sprintf(format, v...))
}

func (l *Logger) Infof(format string, v ...any) {
	l.write(LevelInfo, fmt.Sprintf(format, v...))
}

func (l *Logger) Warnf(format string, v ...any) {
	l.write(LevelWarn, fmt.Sprintf(format, v...))
}

func (l *Logger) Errorf(format string, v ...any) {
	l.write(LevelError, fmt.Sprintf(format, v...))
}

func (l *Logger) SessionID() string {
	return l.sessionID
}

// LogPath is empty for stderr loggers.
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}

// GetSessionID returns the process-wide session ID.
func GetSessionID() string {
	return getSessionID()
}

// GetLogDirectory returns the directory log files are written to.
func GetLogDirectory() (string, error) {
	if err := initLogDirectory(); err != nil {
		return "", err
	}
	return logDir, nil
}
