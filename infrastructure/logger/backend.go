package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jrick/logrotate/rotator"
	"github.com/pkg/errors"
)

// Flags that modify the format of every line written by a Backend.
const (
	// LogFlagLongFile adds the full path and line number of the call site.
	LogFlagLongFile uint32 = 1 << iota

	// LogFlagShortFile adds the file name and line number of the call site.
	// It takes precedence over LogFlagLongFile.
	LogFlagShortFile
)

// defaultFlags is read from the LOGFLAGS environment variable, e.g.
// LOGFLAGS=shortfile. It is a variable initializer rather than an init()
// because the package-level BackendLog depends on it.
var defaultFlags = flagsFromEnv(os.Getenv("LOGFLAGS"))

func flagsFromEnv(value string) (flags uint32) {
	for _, f := range strings.Split(value, ",") {
		switch strings.TrimSpace(f) {
		case "longfile":
			flags |= LogFlagLongFile
		case "shortfile":
			flags |= LogFlagShortFile
		}
	}
	return flags
}

const (
	defaultThresholdKB = 10 * 1000 // rotate every 10 MB
	defaultMaxRolls    = 3
	writeChanBuffer    = 256
)

type logEntry struct {
	line  []byte
	level Level
}

type logWriter struct {
	io.WriteCloser
	minLevel Level
}

// Backend serializes the lines of all subsystem loggers onto its writers.
// Writers are attached before Run and the backend is drained by Close.
type Backend struct {
	flags     uint32
	isRunning uint32
	writers   []logWriter
	writeChan chan logEntry
	done      sync.WaitGroup
}

// NewBackend creates a backend using the flags from the environment.
func NewBackend() *Backend {
	return NewBackendWithFlags(defaultFlags)
}

// NewBackendWithFlags creates a backend that formats lines using flags.
func NewBackendWithFlags(flags uint32) *Backend {
	return &Backend{
		flags:     flags,
		writeChan: make(chan logEntry, writeChanBuffer),
	}
}

// AddLogFile attaches a rotated log file receiving every line at or above
// minLevel.
func (b *Backend) AddLogFile(logFile string, minLevel Level) error {
	return b.AddLogFileWithCustomRotator(logFile, minLevel, defaultThresholdKB, defaultMaxRolls)
}

// AddLogFileWithCustomRotator is AddLogFile with explicit rotation settings.
func (b *Backend) AddLogFileWithCustomRotator(logFile string, minLevel Level, thresholdKB int64, maxRolls int) error {
	if b.IsRunning() {
		return errors.New("cannot add a log file to a running backend")
	}
	logDir, _ := filepath.Split(logFile)
	if logDir != "" {
		err := os.MkdirAll(logDir, 0700)
		if err != nil {
			return errors.Wrapf(err, "failed to create log directory %s", logDir)
		}
	}
	r, err := rotator.New(logFile, thresholdKB, false, maxRolls)
	if err != nil {
		return errors.Wrapf(err, "failed to create file rotator for %s", logFile)
	}
	b.writers = append(b.writers, logWriter{WriteCloser: r, minLevel: minLevel})
	return nil
}

// AddLogWriter attaches an arbitrary writer receiving every line at or above
// minLevel.
func (b *Backend) AddLogWriter(w io.WriteCloser, minLevel Level) error {
	if b.IsRunning() {
		return errors.New("cannot add a log writer to a running backend")
	}
	b.writers = append(b.writers, logWriter{WriteCloser: w, minLevel: minLevel})
	return nil
}

// Run starts draining log lines in a separate goroutine. It may be called
// only once.
func (b *Backend) Run() error {
	if !atomic.CompareAndSwapUint32(&b.isRunning, 0, 1) {
		return errors.New("the logger backend is already running")
	}
	b.done.Add(1)
	go func() {
		defer b.done.Done()
		defer func() {
			if err := recover(); err != nil {
				fmt.Fprintf(os.Stderr, "Fatal error in logger.Backend goroutine: %+v\n", err)
				fmt.Fprintf(os.Stderr, "Goroutine stacktrace: %s\n", debug.Stack())
			}
		}()
		for entry := range b.writeChan {
			for _, writer := range b.writers {
				if entry.level >= writer.minLevel {
					_, _ = writer.Write(entry.line)
				}
			}
		}
	}()
	return nil
}

// IsRunning reports whether Run was called and Close was not.
func (b *Backend) IsRunning() bool {
	return atomic.LoadUint32(&b.isRunning) != 0
}

// Close flushes all pending lines and closes the writers.
func (b *Backend) Close() {
	if !atomic.CompareAndSwapUint32(&b.isRunning, 1, 0) {
		return
	}
	close(b.writeChan)
	b.done.Wait()
	for _, writer := range b.writers {
		_ = writer.Close()
	}
}

func (b *Backend) write(entry logEntry) {
	// Lines logged before Run or after Close are dropped.
	if !b.IsRunning() {
		return
	}
	b.writeChan <- entry
}

// Logger returns a new logger for the subsystem identified by tag. The
// logger is off until its level is set.
func (b *Backend) Logger(tag string) *Logger {
	return &Logger{level: uint32(LevelOff), tag: tag, b: b}
}
