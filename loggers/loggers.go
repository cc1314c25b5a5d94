package loggers

import (
	"fmt"
	"io"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ServiceName tags every log line.
const ServiceName = "dashboard-api"

// ComponentLogFormatter formats the log message with the service and component tags.
type ComponentLogFormatter struct {
	Formatter *log.JSONFormatter
	Service   string
	Component string
}

// Format allows this to be used as a logrus formatter
func (f ComponentLogFormatter) Format(entry *log.Entry) ([]byte, error) {
	// Underscores force these to be in the front in order service -> component
	entry.Data["__service"] = f.Service
	entry.Data["_component"] = f.Component
	return f.Formatter.Format(entry)
}

func makeLogFormatter(component string) ComponentLogFormatter {
	return ComponentLogFormatter{
		Formatter: &log.JSONFormatter{
			DisableHTMLEscape: true,
		},
		Service:   ServiceName,
		Component: component,
	}
}

// LoggerManager a manager that can produce loggers that are synchronized internally
type LoggerManager struct {
	internalWriter ThreadSafeWriter
}

// MakeRootLogger returns a logger that is synchronized with the internal mutex
func (l *LoggerManager) MakeRootLogger(level log.Level, logFile string) (*log.Logger, error) {
	logger := log.New()
	logger.SetFormatter(makeLogFormatter("main"))
	logger.SetLevel(level)
	logger.SetOutput(l.internalWriter)

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
		if err != nil {
			return nil, fmt.Errorf("MakeRootLogger(): %w", err)
		}
		l.internalWriter.Mutex.Lock()
		defer l.internalWriter.Mutex.Unlock()
		l.internalWriter.Writer = f
	}
	return logger, nil
}

// MakeComponentLogger returns a logger tagged with component, writing to the
// same output as the root logger at the root logger's level.
func (l *LoggerManager) MakeComponentLogger(root *log.Logger, component string) *log.Logger {
	logger := log.New()
	logger.SetFormatter(makeLogFormatter(component))
	logger.SetLevel(root.GetLevel())
	logger.SetOutput(l.internalWriter)
	return logger
}

// MakeLoggerManager returns a logger manager
func MakeLoggerManager(writer io.Writer) *LoggerManager {
	return &LoggerManager{
		internalWriter: ThreadSafeWriter{
			Writer: writer,
			Mutex:  &sync.Mutex{},
		},
	}
}

// ThreadSafeWriter a struct that implements io.Writer in a threadsafe way
type ThreadSafeWriter struct {
	Writer io.Writer
	Mutex  *sync.Mutex
}

// Write writes p bytes with the mutex
func (w ThreadSafeWriter) Write(p []byte) (n int, err error) {
	w.Mutex.Lock()
	defer w.Mutex.Unlock()
	return w.Writer.Write(p)
}
