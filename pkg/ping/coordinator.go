package ping

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/heartbeat/pkg/async"
	"github.com/platinummonkey/heartbeat/pkg/heartbeat"
)

const (
	// DefaultTimeout bounds a single send.
	DefaultTimeout = 10 * time.Second
	// DefaultStartDelay defers the launch ping so it never competes with
	// application start up.
	DefaultStartDelay = time.Second
	// DefaultDeadline bounds a background trigger as a whole.
	DefaultDeadline = 30 * time.Second

	flightKey = "heartbeat"
)

// Identity supplies the anonymous device hash.
type Identity interface {
	DeviceHash(ctx context.Context) heartbeat.DeviceHash
}

// Options configures a Coordinator.
type Options struct {
	// AppID identifies the host application. Triggers abort while empty.
	AppID string
	// AppVersion is optional; heartbeat.UnknownVersion is sent when empty.
	AppVersion string
	// Environment overrides the build default when set.
	Environment heartbeat.Environment

	// Timeout bounds one send (DefaultTimeout when zero).
	Timeout time.Duration
	// StartDelay defers PingAsync. Zero means DefaultStartDelay, a
	// negative value means no delay.
	StartDelay time.Duration
	// Deadline bounds a background trigger (DefaultDeadline when zero).
	Deadline time.Duration

	// Clock returns the current time; time.Now when nil.
	Clock  func() time.Time
	Logger logrus.FieldLogger
}

func (o *Options) setDefaults() {
	o.AppID = strings.TrimSpace(o.AppID)
	o.AppVersion = heartbeat.NormalizeVersion(o.AppVersion)
	if o.Environment == "" {
		o.Environment = buildEnvironment
	} else {
		o.Environment = heartbeat.ParseEnvironment(string(o.Environment))
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.StartDelay < 0 {
		o.StartDelay = 0
	} else if o.StartDelay == 0 {
		o.StartDelay = DefaultStartDelay
	}
	if o.Deadline <= 0 {
		o.Deadline = DefaultDeadline
	}
	if o.Deadline < o.Timeout {
		o.Deadline = o.Timeout
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
}

// Coordinator decides whether today's signal is due and sends it.
type Coordinator struct {
	opts     Options
	identity Identity
	state    StateStore
	sender   Sender
	logger   logrus.FieldLogger

	flight   singleflight.Group
	attempts metric.Int64Counter
}

// NewCoordinator wires a coordinator. identity, state and sender are
// required.
func NewCoordinator(opts Options, identity Identity, state StateStore, sender Sender) (*Coordinator, error) {
	if identity == nil || state == nil || sender == nil {
		return nil, errors.New("ping: identity, state store and sender are required")
	}
	opts.setDefaults()

	attempts, err := otel.Meter("github.com/platinummonkey/heartbeat/pkg/ping").Int64Counter(
		"heartbeat.client.triggers",
		metric.WithDescription("Heartbeat triggers by outcome"),
	)
	if err != nil {
		attempts, _ = noop.NewMeterProvider().Meter("").Int64Counter("heartbeat.client.triggers")
	}

	return &Coordinator{
		opts:     opts,
		identity: identity,
		state:    state,
		sender:   sender,
		logger:   opts.Logger.WithField("component", "heartbeat"),
		attempts: attempts,
	}, nil
}

// Trigger runs one attempt. Concurrent callers share the attempt already in
// flight and receive its outcome. A panic in a collaborator is recovered
// and reported as OutcomeFailed.
func (c *Coordinator) Trigger(ctx context.Context) Outcome {
	v, _, _ := c.flight.Do(flightKey, func() (result interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.WithFields(logrus.Fields{
					"panic": fmt.Sprint(r),
					"stack": string(debug.Stack()),
				}).Debug("heartbeat attempt panicked")
				result = OutcomeFailed
			}
		}()
		return c.attempt(ctx), nil
	})
	outcome := v.(Outcome)
	c.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome.String())))
	return outcome
}

func (c *Coordinator) attempt(ctx context.Context) Outcome {
	today := heartbeat.DateOf(c.opts.Clock())
	log := c.logger.WithField("date", today.String())

	if c.opts.AppID == "" {
		log.Debug("heartbeat aborted: no app id")
		return OutcomeAborted
	}

	state, err := c.state.LoadState(ctx)
	if err != nil {
		// Without state the day is treated as pending; a duplicate send
		// is absorbed by distinct counting on the server.
		log.WithError(err).Debug("heartbeat state unreadable")
		state = State{}
	}
	if state.SentOn(today) {
		return OutcomeSkipped
	}

	signal := heartbeat.Signal{
		AppID:       c.opts.AppID,
		DeviceHash:  c.identity.DeviceHash(ctx),
		Environment: c.opts.Environment,
		AppVersion:  c.opts.AppVersion,
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	err = c.sender.Send(sendCtx, signal)
	cancel()
	if err != nil {
		log.WithError(err).Debug("heartbeat not delivered")
		return OutcomeFailed
	}

	if err := c.state.SaveState(ctx, State{LastSent: today}); err != nil {
		log.WithError(err).Debug("heartbeat delivered but state not saved")
		return OutcomeFailed
	}

	log.Debug("heartbeat sent")
	return OutcomeSent
}

// PingAsync triggers in the background after the start delay, bounded by
// the deadline. It never blocks the caller.
func (c *Coordinator) PingAsync(ctx context.Context) {
	delay := c.opts.StartDelay
	async.SafeGoNoError(ctx, delay+c.opts.Deadline, "heartbeat ping", func(ctx context.Context) {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		}
		c.Trigger(ctx)
	})
}
