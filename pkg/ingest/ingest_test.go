package ingest

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/heartbeat/pkg/heartbeat"
	"github.com/platinummonkey/heartbeat/pkg/observability"
)

type recordingLog struct {
	events []heartbeat.Event
	err    error
}

func (l *recordingLog) Append(ctx context.Context, ev heartbeat.Event) error {
	if l.err != nil {
		return l.err
	}
	l.events = append(l.events, ev)
	return nil
}

var receivedAt = time.Date(2026, 10, 16, 23, 59, 30, 0, time.FixedZone("PDT", -7*3600))

func newTestIngester(log EventLog) (*Ingester, *observability.Metrics, *bytes.Buffer) {
	var buf bytes.Buffer
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	logger := observability.NewLogger(logrus.DebugLevel, observability.JSONFormat, &buf)
	return NewIngester(log, func() time.Time { return receivedAt }, metrics, logger), metrics, &buf
}

func TestIngest_Accepts(t *testing.T) {
	tests := []struct {
		name   string
		signal heartbeat.Signal
		want   heartbeat.Event
	}{
		{
			name: "full signal",
			signal: heartbeat.Signal{
				AppID:       "com.example.app",
				DeviceHash:  "0123456789abcdef",
				Environment: "dev",
				AppVersion:  "1.4.0",
			},
			want: heartbeat.Event{
				Date:        "2026-10-17",
				DeviceHash:  "0123456789abcdef",
				AppID:       "com.example.app",
				Environment: heartbeat.EnvDev,
				AppVersion:  "1.4.0",
				ReceivedAt:  receivedAt.UTC(),
			},
		},
		{
			name:   "defaults",
			signal: heartbeat.Signal{AppID: "com.example.app", DeviceHash: "0123456789abcdef"},
			want: heartbeat.Event{
				Date:        "2026-10-17",
				DeviceHash:  "0123456789abcdef",
				AppID:       "com.example.app",
				Environment: heartbeat.EnvProd,
				AppVersion:  heartbeat.UnknownVersion,
				ReceivedAt:  receivedAt.UTC(),
			},
		},
		{
			name: "unrecognized environment",
			signal: heartbeat.Signal{
				AppID:       "com.example.app",
				DeviceHash:  "0123456789abcdef",
				Environment: "staging",
				AppVersion:  "  ",
			},
			want: heartbeat.Event{
				Date:        "2026-10-17",
				DeviceHash:  "0123456789abcdef",
				AppID:       "com.example.app",
				Environment: heartbeat.EnvProd,
				AppVersion:  heartbeat.UnknownVersion,
				ReceivedAt:  receivedAt.UTC(),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &recordingLog{}
			ing, metrics, _ := newTestIngester(log)

			ev, err := ing.Ingest(context.Background(), tt.signal)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev)
			assert.Equal(t, []heartbeat.Event{tt.want}, log.events)
			assert.Equal(t, 1.0, testutil.ToFloat64(metrics.IngestEventsTotal.WithLabelValues(string(tt.want.Environment))))
		})
	}
}

func TestIngest_DuplicatesAppendTwice(t *testing.T) {
	log := &recordingLog{}
	ing, _, _ := newTestIngester(log)
	sig := heartbeat.Signal{AppID: "com.example.app", DeviceHash: "0123456789abcdef"}

	_, err := ing.Ingest(context.Background(), sig)
	require.NoError(t, err)
	_, err = ing.Ingest(context.Background(), sig)
	require.NoError(t, err)

	assert.Len(t, log.events, 2)
}

func TestIngest_InvalidPayload(t *testing.T) {
	tests := []struct {
		name   string
		signal heartbeat.Signal
	}{
		{name: "missing app", signal: heartbeat.Signal{DeviceHash: "0123456789abcdef"}},
		{name: "missing device", signal: heartbeat.Signal{AppID: "com.example.app"}},
		{name: "blank app", signal: heartbeat.Signal{AppID: "   ", DeviceHash: "0123456789abcdef"}},
		{name: "empty", signal: heartbeat.Signal{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &recordingLog{}
			ing, metrics, buf := newTestIngester(log)

			_, err := ing.Ingest(context.Background(), tt.signal)
			assert.ErrorIs(t, err, ErrInvalidPayload)
			assert.Empty(t, log.events)
			assert.Zero(t, buf.Len(), "rejections are not logged")
			assert.Equal(t, 1.0, testutil.ToFloat64(metrics.IngestRejectedTotal.WithLabelValues(ReasonInvalidPayload)))
		})
	}
}

func TestIngest_AppendFailure(t *testing.T) {
	log := &recordingLog{err: errors.New("connection reset")}
	ing, metrics, buf := newTestIngester(log)

	_, err := ing.Ingest(context.Background(), heartbeat.Signal{AppID: "com.example.app", DeviceHash: "0123456789abcdef"})

	assert.ErrorIs(t, err, ErrAppendFailed)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Contains(t, buf.String(), "failed to append heartbeat")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.IngestRejectedTotal.WithLabelValues(ReasonAppendFailed)))
}

func TestNewIngester_Defaults(t *testing.T) {
	log := &recordingLog{}
	ing := NewIngester(log, nil, nil, nil)

	ev, err := ing.Ingest(context.Background(), heartbeat.Signal{AppID: "a", DeviceHash: "d"})
	require.NoError(t, err)
	assert.Equal(t, heartbeat.DateOf(time.Now()), ev.Date)
}
