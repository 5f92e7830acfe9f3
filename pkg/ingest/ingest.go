package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/heartbeat/pkg/heartbeat"
	"github.com/platinummonkey/heartbeat/pkg/observability"
)

var (
	// ErrInvalidPayload is returned when the app id or device hash is missing.
	ErrInvalidPayload = errors.New("missing params")
	// ErrAppendFailed wraps event log failures.
	ErrAppendFailed = errors.New("failed to record heartbeat")
)

// Rejection reasons used as metric labels.
const (
	ReasonInvalidPayload = "invalid_payload"
	ReasonAppendFailed   = "append_failed"
)

// EventLog is the append-only store of heartbeat events.
type EventLog interface {
	Append(ctx context.Context, ev heartbeat.Event) error
}

// Ingester turns signals into events.
type Ingester struct {
	log     EventLog
	clock   func() time.Time
	metrics *observability.Metrics
	logger  logrus.FieldLogger
}

// NewIngester creates an ingester appending to log. A nil clock uses
// time.Now and nil metrics disables instrumentation.
func NewIngester(log EventLog, clock func() time.Time, metrics *observability.Metrics, logger logrus.FieldLogger) *Ingester {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Ingester{
		log:     log,
		clock:   clock,
		metrics: metrics,
		logger:  logger.WithField("component", "ingest"),
	}
}

// Ingest validates sig and appends one event dated by the receipt time.
func (i *Ingester) Ingest(ctx context.Context, sig heartbeat.Signal) (heartbeat.Event, error) {
	appID := strings.TrimSpace(sig.AppID)
	device := heartbeat.DeviceHash(strings.TrimSpace(string(sig.DeviceHash)))
	if appID == "" || device == "" {
		i.reject(ReasonInvalidPayload)
		return heartbeat.Event{}, ErrInvalidPayload
	}

	now := i.clock().UTC()
	ev := heartbeat.Event{
		Date:        heartbeat.DateOf(now),
		DeviceHash:  device,
		AppID:       appID,
		Environment: heartbeat.ParseEnvironment(string(sig.Environment)),
		AppVersion:  heartbeat.NormalizeVersion(sig.AppVersion),
		ReceivedAt:  now,
	}

	start := time.Now()
	err := i.log.Append(ctx, ev)
	if i.metrics != nil {
		i.metrics.IngestAppendDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		i.reject(ReasonAppendFailed)
		observability.LoggerFromContext(ctx, i.logger).WithError(err).WithField("app_id", appID).Error("failed to append heartbeat")
		return heartbeat.Event{}, fmt.Errorf("%w: %v", ErrAppendFailed, err)
	}

	if i.metrics != nil {
		i.metrics.IngestEventsTotal.WithLabelValues(string(ev.Environment)).Inc()
	}
	return ev, nil
}

func (i *Ingester) reject(reason string) {
	if i.metrics != nil {
		i.metrics.IngestRejectedTotal.WithLabelValues(reason).Inc()
	}
}
