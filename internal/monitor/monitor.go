// Package monitor publishes periodic status snapshots of the sync core to a
// JSON status file and InfluxDB.
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/onesync/clonecore/internal/influx"
	"github.com/onesync/clonecore/pkg/core"
)

// PointWriter receives status points. *influx.Manager satisfies it.
type PointWriter interface {
	Bucket() string
	WritePoint(bucket string, point *influxdb2_write.Point) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Logger   *slog.Logger
	Influx   PointWriter
	File     string
	Interval time.Duration
}

// Service writes status snapshots off the frame thread. Offer is called from
// the frame loop; the writer goroutine does the I/O.
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
	snapshots chan core.Status
	lastOffer time.Time
	last      core.Status
	written   int
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = 5 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		deps:      deps,
		snapshots: make(chan core.Status, 1),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Due reports whether a snapshot taken at now would be published.
func (s *Service) Due(now time.Time) bool {
	return s.lastOffer.IsZero() || now.Sub(s.lastOffer) >= s.deps.Interval
}

// Offer hands a snapshot to the writer if the interval has elapsed. It never
// blocks: a snapshot arriving while the previous one is still queued is
// dropped.
func (s *Service) Offer(status core.Status) bool {
	if !s.Due(status.Time) {
		return false
	}
	s.lastOffer = status.Time
	select {
	case s.snapshots <- status:
		return true
	default:
		return false
	}
}

// Last returns the most recently written snapshot and how many were written.
func (s *Service) Last() (core.Status, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.written
}

// Start starts the status monitor goroutine
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	go s.run(s.stopChan, s.done)
}

func (s *Service) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	logger := s.deps.Logger
	logger.Debug("Starting status monitor goroutine", "file", s.deps.File, "interval", s.deps.Interval)

	for {
		select {
		case <-stop:
			return
		case status := <-s.snapshots:
			s.Publish(status)
		}
	}
}

// Publish writes a snapshot immediately.
func (s *Service) Publish(status core.Status) {
	if err := s.writeFile(status); err != nil {
		s.deps.Logger.Error("Error writing status file", "error", err)
	}
	if s.deps.Influx != nil {
		if err := s.deps.Influx.WritePoint(s.deps.Influx.Bucket(), influx.StatusPoint(status)); err != nil {
			s.deps.Logger.Error("Error writing status point", "error", err)
		}
	}

	s.mu.Lock()
	s.last = status
	s.written++
	s.mu.Unlock()
}

// writeFile replaces the status file atomically.
func (s *Service) writeFile(status core.Status) error {
	if s.deps.File == "" {
		return nil
	}
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}

	tmp := s.deps.File + ".tmp"
	if dir := filepath.Dir(s.deps.File); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create status directory: %w", err)
		}
	}
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.deps.File)
}

// Stop stops the status monitor and waits for the writer to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
