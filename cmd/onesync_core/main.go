package main

/*
#include <stdlib.h>
#include <stdio.h>
#include <string.h>
*/
import "C" // required for the c-shared build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onesync/clonecore/internal/config"
	"github.com/onesync/clonecore/internal/dispatcher"
	"github.com/onesync/clonecore/internal/host"
	"github.com/onesync/clonecore/internal/influx"
	"github.com/onesync/clonecore/internal/logging"
	"github.com/onesync/clonecore/internal/monitor"
	"github.com/onesync/clonecore/internal/onesync"
	intOtel "github.com/onesync/clonecore/internal/otel"
	"github.com/onesync/clonecore/internal/shim"
	"github.com/onesync/clonecore/internal/storage"
	"github.com/onesync/clonecore/internal/storage/memory"
	"github.com/onesync/clonecore/pkg/cfxinterface"
	"github.com/rs/zerolog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.1.0"
	BuildDate      string = "unknown"

	LibraryName string = "onesync_core"
)

// file paths
var (
	// ModuleFolder holds the config file; relative paths in it resolve here.
	ModuleFolder string

	LogFilePath string
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager = logging.NewSlogManager()

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger = slog.Default()

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	SessionStartTime time.Time = time.Now()

	zlog    zerolog.Logger = zerolog.Nop()
	logFile io.WriteCloser

	bootOnce sync.Once
	bootErr  error

	// Services
	activeCore      atomic.Pointer[onesync.Core]
	activeHooks     *shim.Hooks
	journal         storage.Backend
	influxManager   *influx.Manager
	monitorService  *monitor.Service
	earlyDispatcher *dispatcher.Dispatcher
)

// init only wires the console so :VERSION: and :INIT: answer as soon as the
// library is loaded. The rest of the stack starts with :INIT:.
func init() {
	cfxinterface.SetVersion(CurrentVersion)

	var err error
	earlyDispatcher, err = dispatcher.New(logging.NewDispatcherLogger(zlog))
	if err != nil {
		panic(fmt.Errorf("failed to create early dispatcher: %w", err))
	}
	registerConsoleHandlers(earlyDispatcher)
	cfxinterface.SetDispatcher(earlyDispatcher)
}

// bootstrap loads the config from dir and sets up logging. Only the first
// call has any effect.
func bootstrap(dir string) error {
	bootOnce.Do(func() {
		ModuleFolder = dir
		if err := config.Load(ModuleFolder); err != nil {
			config.SetDefaults()
			bootErr = setupLogging()
			Logger.Warn("Failed to load config, using defaults!", "error", err)
			return
		}
		bootErr = setupLogging()
		Logger.Info("Loaded config", "dir", ModuleFolder)
	})
	return bootErr
}

// resolvePath anchors relative config paths at the module folder.
func resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(ModuleFolder, p)
}

func setupLogging() error {
	lc := config.GetLogConfig()
	logsDir := resolvePath(lc.Dir)
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	LogFilePath = logging.LogFilePath(logsDir, LibraryName, SessionStartTime)
	rotation := logging.RotationConfig{
		MaxSizeMB:  lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		MaxAgeDays: lc.MaxAgeDays,
		Compress:   lc.Compress,
	}
	logFile = logging.OpenRotating(LogFilePath, rotation)

	var out io.Writer = logFile
	if lc.GraylogEnabled {
		gw, err := logging.NewGraylogWriter(lc.GraylogAddress)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to set up graylog: %v\n", err)
		} else {
			out = io.MultiWriter(logFile, gw)
		}
	}
	zlog = logging.NewZerolog(out, lc.Level, LibraryName)

	var otelLogProvider *sdklog.LoggerProvider
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		var err error
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			ServiceVersion: CurrentVersion,
			BatchTimeout:   otelCfg.BatchTimeout,
			LogWriter:      logging.OpenRotating(logging.LogFilePath(logsDir, LibraryName+".otel", SessionStartTime), rotation),
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
		if err != nil {
			zlog.Error().Err(err).Msg("Failed to initialize OTel provider")
		} else {
			otelLogProvider = OTelProvider.LoggerProvider()
		}
	}

	SlogManager.SetContextProvider(func() []slog.Attr {
		if c := activeCore.Load(); c != nil {
			return c.LogAttrs()
		}
		return nil
	})
	SlogManager.Setup(out, lc.Level, otelLogProvider)
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", LogFilePath, "graylog", lc.GraylogEnabled, "otel", otelLogProvider != nil)
	return nil
}

func openJournal() storage.Backend {
	cfg := config.GetStorageConfig()
	cfg.SQLitePath = resolvePath(cfg.SQLitePath)
	cfg.Memory.ExportDir = resolvePath(cfg.Memory.ExportDir)
	log := zlog.With().Str("component", "journal").Logger()

	b, err := storage.NewBackend(cfg, log)
	if err == nil {
		err = b.Init()
	}
	if err != nil {
		Logger.Error("Failed to open journal, using memory", "type", cfg.Type, "error", err)
		b = memory.New(cfg.Memory)
		_ = b.Init()
		return b
	}
	Logger.Info("Journal ready", "type", cfg.Type)
	return b
}

func startMonitor() *monitor.Service {
	deps := monitor.Dependencies{Logger: SlogManager.Component("monitor")}

	ic := config.GetInfluxConfig()
	if ic.Enabled {
		ic.BackupDir = resolvePath(ic.BackupDir)
		influxManager = influx.NewManager(ic, zlog.With().Str("component", "influx").Logger())
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := influxManager.Connect(ctx)
		cancel()
		if err != nil {
			Logger.Error("Failed to set up InfluxDB", "error", err)
		} else {
			deps.Influx = influxManager
		}
	}

	sc := config.GetStatusConfig()
	deps.File = resolvePath(sc.File)
	deps.Interval = sc.Interval

	svc := monitor.NewService(deps)
	svc.Start()
	return svc
}

// startCore builds the sync core on top of the host collaborators and swaps
// the console over to its dispatcher.
func startCore(engine host.Engine) (*onesync.Core, *shim.Hooks, error) {
	if activeCore.Load() != nil {
		return nil, nil, errors.New("core already running")
	}
	if err := bootstrap(cfxinterface.ModuleDir()); err != nil {
		return nil, nil, err
	}

	journal = openJournal()
	monitorService = startMonitor()

	c, err := onesync.New(onesync.Dependencies{
		Transport:        engine.Transport,
		Pool:             engine.Pool,
		Tracker:          engine.Tracker,
		Natives:          engine.Natives,
		Handlers:         engine.Handlers,
		EventPool:        engine.EventPool,
		Focus:            engine.Focus,
		Logger:           Logger,
		DispatcherLogger: logging.NewDispatcherLogger(zlog.With().Str("component", "dispatcher").Logger()),
		Journal:          journal,
		Monitor:          monitorService,
		Config: onesync.ConfigFromSettings(
			config.GetOneSyncConfig(),
			config.GetEventsConfig(),
			config.GetGridConfig(),
		),
	})
	if err != nil {
		stopServices()
		return nil, nil, fmt.Errorf("failed to create core: %w", err)
	}

	c.Attach()
	registerConsoleHandlers(c.Dispatcher())
	cfxinterface.SetDispatcher(c.Dispatcher())
	activeCore.Store(c)
	activeHooks = shim.New(c, engine.Originals, SlogManager.Component("shim"))
	if engine.Bind != nil {
		engine.Bind(activeHooks)
	}

	Logger.Info("Core started", "enabled", c.Enabled(), "version", CurrentVersion)
	return c, activeHooks, nil
}

// stopCore tears the connection state down and flushes every sink.
func stopCore() {
	c := activeCore.Swap(nil)
	if c == nil {
		return
	}
	c.Teardown()
	if monitorService != nil {
		// final snapshot after the writer has exited
		monitorService.Stop()
		monitorService.Publish(c.Status())
	}
	cfxinterface.SetDispatcher(earlyDispatcher)
	c.Dispatcher().Close()
	activeHooks = nil
	stopServices()
	Logger.Info("Core stopped")
}

func stopServices() {
	if monitorService != nil {
		monitorService.Stop()
		monitorService = nil
	}
	if journal != nil {
		if err := journal.Close(); err != nil {
			Logger.Error("Failed to close journal", "error", err)
		}
		if e, ok := journal.(storage.Exportable); ok && e.GetExportedFilePath() != "" {
			Logger.Info("Journal exported", "path", e.GetExportedFilePath())
		}
		journal = nil
	}
	if influxManager != nil {
		if err := influxManager.Close(); err != nil {
			Logger.Error("Failed to close InfluxDB", "error", err)
		}
		influxManager = nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := SlogManager.Flush(ctx); err != nil {
		zlog.Error().Err(err).Msg("Failed to flush logs")
	}
}

// shutdown ends the process-wide logging pipeline. Only the CLI calls it; the
// host keeps the library loaded across sessions.
func shutdown() {
	stopCore()
	if OTelProvider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := OTelProvider.Shutdown(ctx); err != nil {
		zlog.Error().Err(err).Msg("Failed to shut down OTel provider")
	}
}
