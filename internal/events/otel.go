package events

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/onesync/clonecore/internal/events"

type metrics struct {
	enqueuedCount     metric.Int64Counter
	droppedCount      metric.Int64Counter
	sentCount         metric.Int64Counter
	expiredCount      metric.Int64Counter
	redispatchedCount metric.Int64Counter
	live              atomic.Int64
}

func newMetrics() (*metrics, error) {
	meter := otel.Meter(instrumentationName)
	m := &metrics{}
	var err error

	if m.enqueuedCount, err = meter.Int64Counter("events.enqueued",
		metric.WithDescription("Outbound events accepted into the queue")); err != nil {
		return nil, err
	}
	if m.droppedCount, err = meter.Int64Counter("events.dropped",
		metric.WithDescription("Outbound events dropped before or during send")); err != nil {
		return nil, err
	}
	if m.sentCount, err = meter.Int64Counter("events.sent",
		metric.WithDescription("Event frames sent to the server")); err != nil {
		return nil, err
	}
	if m.expiredCount, err = meter.Int64Counter("events.expired",
		metric.WithDescription("Outbound events removed after expiry")); err != nil {
		return nil, err
	}
	if m.redispatchedCount, err = meter.Int64Counter("events.redispatched",
		metric.WithDescription("Inbound events replayed after a rejection")); err != nil {
		return nil, err
	}

	live, err := meter.Int64ObservableGauge("events.live",
		metric.WithDescription("Live outbound events"))
	if err != nil {
		return nil, err
	}
	// The callback runs off the frame loop, so it reads the mirrored count.
	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(live, m.live.Load())
		return nil
	}, live)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *metrics) enqueued() {
	m.enqueuedCount.Add(context.Background(), 1)
}

func (m *metrics) dropped(reason string) {
	m.droppedCount.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *metrics) sent(reply bool) {
	m.sentCount.Add(context.Background(), 1, metric.WithAttributes(attribute.Bool("reply", reply)))
}

func (m *metrics) expired() {
	m.expiredCount.Add(context.Background(), 1)
}

func (m *metrics) redispatched() {
	m.redispatchedCount.Add(context.Background(), 1)
}

func (m *metrics) setLive(n int) {
	m.live.Store(int64(n))
}
