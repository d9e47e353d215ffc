package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// InstrumentationName identifies the core in OTel log records.
const InstrumentationName = "onesync-core"

// replaced in tests
var (
	osStdout = os.Stdout
	osPipe   = os.Pipe
)

// SlogManager manages slog-based logging with optional OTel integration.
type SlogManager struct {
	mu     sync.RWMutex
	logger *slog.Logger

	// context attributes appended to every record, e.g. the server net ID
	contextProvider ContextProvider

	logProvider *sdklog.LoggerProvider
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetContextProvider installs a function whose attributes are added to every
// record written after the next Setup.
func (m *SlogManager) SetContextProvider(p ContextProvider) {
	m.mu.Lock()
	m.contextProvider = p
	m.mu.Unlock()
}

// Setup initializes the logging system. Records go to file when one is given,
// otherwise to stdout, and additionally to OTel when provider is non-nil.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider) {
	lvl := parseLevel(level)

	handlerOpts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handlers []slog.Handler
	if file != nil {
		handlers = append(handlers, slog.NewTextHandler(file, handlerOpts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(osStdout, handlerOpts))
	}

	if provider != nil {
		handlers = append(handlers, otelslog.NewHandler(InstrumentationName, otelslog.WithLoggerProvider(provider)))
	}

	var handler slog.Handler = NewMultiHandler(handlers...)

	m.mu.Lock()
	if m.contextProvider != nil {
		handler = NewContextHandler(handler, m.contextProvider)
	}
	m.logProvider = provider
	m.logger = slog.New(handler)
	logger := m.logger
	m.mu.Unlock()

	logger.Info("Logging initialized", "level", level)
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Component returns a child logger tagged with the component name.
func (m *SlogManager) Component(name string) *slog.Logger {
	return m.Logger().With("component", name)
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	m.mu.RLock()
	p := m.logProvider
	m.mu.RUnlock()
	if p != nil {
		return p.ForceFlush(ctx)
	}
	return nil
}

// WriteLog writes a console-originated entry at the given level.
func (m *SlogManager) WriteLog(functionName, data, level string) {
	m.mu.RLock()
	logger := m.logger
	m.mu.RUnlock()
	if logger == nil {
		return
	}

	logger.Log(context.Background(), parseLevel(level), data, "function", functionName)
}
