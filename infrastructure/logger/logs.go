package logger

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// BackendLog is the logging backend shared by every subsystem logger.
var BackendLog = NewBackend()

var (
	subsystemLoggers     = make(map[string]*Logger)
	subsystemLoggersLock sync.Mutex
)

// RegisterSubSystem returns the logger of the subsystem identified by tag,
// creating it on first use. Packages call it from their log.go.
func RegisterSubSystem(tag string) *Logger {
	subsystemLoggersLock.Lock()
	defer subsystemLoggersLock.Unlock()

	if existing, ok := subsystemLoggers[tag]; ok {
		return existing
	}
	l := BackendLog.Logger(tag)
	subsystemLoggers[tag] = l
	return l
}

// Get returns the logger of the given subsystem, if registered.
func Get(tag string) (*Logger, bool) {
	subsystemLoggersLock.Lock()
	defer subsystemLoggersLock.Unlock()

	l, ok := subsystemLoggers[tag]
	return l, ok
}

// InitLog attaches stdout, the main log file and the error log file to
// BackendLog and starts it.
func InitLog(logFile, errLogFile string) error {
	err := BackendLog.AddLogWriter(os.Stdout, LevelInfo)
	if err != nil {
		return err
	}
	err = BackendLog.AddLogFile(logFile, LevelTrace)
	if err != nil {
		return errors.Wrapf(err, "error adding log file %s", logFile)
	}
	err = BackendLog.AddLogFile(errLogFile, LevelWarn)
	if err != nil {
		return errors.Wrapf(err, "error adding error log file %s", errLogFile)
	}
	return BackendLog.Run()
}

// SetLogLevel sets the level of a single subsystem. Unknown subsystems are
// ignored.
func SetLogLevel(subsystemID string, logLevel string) {
	l, ok := Get(subsystemID)
	if !ok {
		return
	}
	level, _ := LevelFromString(logLevel)
	l.SetLevel(level)
}

// SetLogLevels sets every registered subsystem to logLevel.
func SetLogLevels(logLevel string) {
	subsystemLoggersLock.Lock()
	defer subsystemLoggersLock.Unlock()

	level, _ := LevelFromString(logLevel)
	for _, l := range subsystemLoggers {
		l.SetLevel(level)
	}
}

// SupportedSubsystems returns a sorted list of the registered subsystems.
func SupportedSubsystems() []string {
	subsystemLoggersLock.Lock()
	defer subsystemLoggersLock.Unlock()

	subsystems := make([]string, 0, len(subsystemLoggers))
	for tag := range subsystemLoggers {
		subsystems = append(subsystems, tag)
	}
	sort.Strings(subsystems)
	return subsystems
}

func validLogLevel(logLevel string) bool {
	_, ok := LevelFromString(logLevel)
	return ok
}

// ParseAndSetDebugLevels parses a debug level specification of the form
// "level" or "level,SUBSYS=level,..." and applies it.
func ParseAndSetDebugLevels(debugLevel string) error {
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		if !validLogLevel(debugLevel) {
			return errors.Errorf("the specified debug level [%s] is invalid", debugLevel)
		}
		SetLogLevels(debugLevel)
		return nil
	}

	for _, pair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(pair, "=") {
			if !validLogLevel(pair) {
				return errors.Errorf("the specified debug level [%s] is invalid", pair)
			}
			SetLogLevels(pair)
			continue
		}

		fields := strings.Split(pair, "=")
		if len(fields) != 2 {
			return errors.Errorf("the specified debug level has an invalid format [%s]", pair)
		}
		subsystemID, logLevel := fields[0], fields[1]

		if _, ok := Get(subsystemID); !ok {
			return errors.Errorf("the specified subsystem [%s] is invalid -- "+
				"supported subsystems %s", subsystemID, strings.Join(SupportedSubsystems(), ", "))
		}
		if !validLogLevel(logLevel) {
			return errors.Errorf("the specified debug level [%s] is invalid", logLevel)
		}
		SetLogLevel(subsystemID, logLevel)
	}
	return nil
}

// LogClosure defers the formatting of an expensive message until the
// logger actually writes it.
type LogClosure func() string

func (c LogClosure) String() string {
	return c()
}

// NewLogClosure wraps c as a fmt.Stringer.
func NewLogClosure(c func() string) LogClosure {
	return c
}

var _ fmt.Stringer = LogClosure(nil)
