package ping

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/heartbeat/pkg/heartbeat"
)

type memState struct {
	mu      sync.Mutex
	state   State
	loadErr error
	saveErr error
	saves   int
}

func (m *memState) LoadState(ctx context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.loadErr
}

func (m *memState) SaveState(ctx context.Context, s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.state = s
	return nil
}

func (m *memState) lastSent() heartbeat.Date {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.LastSent
}

type fixedIdentity heartbeat.DeviceHash

func (f fixedIdentity) DeviceHash(ctx context.Context) heartbeat.DeviceHash {
	return heartbeat.DeviceHash(f)
}

type recordingSender struct {
	mu      sync.Mutex
	signals []heartbeat.Signal
	err     error
	block   chan struct{}
}

func (r *recordingSender) Send(ctx context.Context, s heartbeat.Signal) error {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, s)
	return r.err
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.signals)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var day = time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

func newTestCoordinator(t *testing.T, opts Options, state StateStore, sender Sender) *Coordinator {
	t.Helper()
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return day }
	}
	opts.Logger = quietLogger()
	c, err := NewCoordinator(opts, fixedIdentity("0123456789abcdef"), state, sender)
	require.NoError(t, err)
	return c
}

func TestNewCoordinator_RequiresCollaborators(t *testing.T) {
	_, err := NewCoordinator(Options{AppID: "x"}, nil, &memState{}, &recordingSender{})
	assert.Error(t, err)
}

func TestOptions_Defaults(t *testing.T) {
	opts := Options{AppID: "  com.example.app ", Environment: "DEV"}
	opts.setDefaults()

	assert.Equal(t, "com.example.app", opts.AppID)
	assert.Equal(t, heartbeat.UnknownVersion, opts.AppVersion)
	assert.Equal(t, heartbeat.EnvDev, opts.Environment)
	assert.Equal(t, DefaultTimeout, opts.Timeout)
	assert.Equal(t, DefaultStartDelay, opts.StartDelay)
	assert.Equal(t, DefaultDeadline, opts.Deadline)

	noDelay := Options{StartDelay: -1, Timeout: time.Minute}
	noDelay.setDefaults()
	assert.Zero(t, noDelay.StartDelay)
	assert.Equal(t, buildEnvironment, noDelay.Environment)
	assert.Equal(t, time.Minute, noDelay.Deadline, "deadline never shorter than timeout")
}

func TestTrigger_FirstSendThenSkip(t *testing.T) {
	state := &memState{}
	sender := &recordingSender{}
	c := newTestCoordinator(t, Options{AppID: "com.example.app", Environment: heartbeat.EnvProd}, state, sender)

	assert.Equal(t, OutcomeSent, c.Trigger(context.Background()))
	require.Equal(t, 1, sender.count())
	assert.Equal(t, heartbeat.Signal{
		AppID:       "com.example.app",
		DeviceHash:  "0123456789abcdef",
		Environment: heartbeat.EnvProd,
		AppVersion:  heartbeat.UnknownVersion,
	}, sender.signals[0])
	assert.Equal(t, heartbeat.Date("2026-10-16"), state.lastSent())

	for i := 0; i < 5; i++ {
		assert.Equal(t, OutcomeSkipped, c.Trigger(context.Background()))
	}
	assert.Equal(t, 1, sender.count(), "no network activity once sent today")
}

func TestTrigger_PersistedStateAcrossRestart(t *testing.T) {
	state := &memState{state: State{LastSent: "2026-10-16"}}
	sender := &recordingSender{}
	c := newTestCoordinator(t, Options{AppID: "x"}, state, sender)

	assert.Equal(t, OutcomeSkipped, c.Trigger(context.Background()))
	assert.Zero(t, sender.count())
}

func TestTrigger_NewDaySendsAgain(t *testing.T) {
	state := &memState{state: State{LastSent: "2026-10-15"}}
	sender := &recordingSender{}
	c := newTestCoordinator(t, Options{AppID: "x"}, state, sender)

	assert.Equal(t, OutcomeSent, c.Trigger(context.Background()))
	assert.Equal(t, heartbeat.Date("2026-10-16"), state.lastSent())
}

func TestTrigger_FailureLeavesPendingAndRetries(t *testing.T) {
	state := &memState{}
	sender := &recordingSender{err: ErrDelivery}
	c := newTestCoordinator(t, Options{AppID: "x"}, state, sender)

	assert.Equal(t, OutcomeFailed, c.Trigger(context.Background()))
	assert.True(t, state.lastSent().IsZero())

	sender.err = nil
	assert.Equal(t, OutcomeSent, c.Trigger(context.Background()))
	assert.Equal(t, 2, sender.count())
	assert.Equal(t, heartbeat.Date("2026-10-16"), state.lastSent())
}

func TestTrigger_MissingAppIDAborts(t *testing.T) {
	state := &memState{}
	sender := &recordingSender{}
	c := newTestCoordinator(t, Options{AppID: "   "}, state, sender)

	assert.Equal(t, OutcomeAborted, c.Trigger(context.Background()))
	assert.Zero(t, sender.count())
	assert.Zero(t, state.saves)
}

func TestTrigger_StateErrors(t *testing.T) {
	t.Run("unreadable state still sends", func(t *testing.T) {
		state := &memState{loadErr: errors.New("corrupt")}
		sender := &recordingSender{}
		c := newTestCoordinator(t, Options{AppID: "x"}, state, sender)

		assert.Equal(t, OutcomeSent, c.Trigger(context.Background()))
		assert.Equal(t, 1, sender.count())
	})

	t.Run("unsaved state stays pending", func(t *testing.T) {
		state := &memState{saveErr: errors.New("read only")}
		sender := &recordingSender{}
		c := newTestCoordinator(t, Options{AppID: "x"}, state, sender)

		assert.Equal(t, OutcomeFailed, c.Trigger(context.Background()))
		assert.True(t, state.lastSent().IsZero())
	})
}

func TestTrigger_TimeoutIsFailure(t *testing.T) {
	state := &memState{}
	sender := &recordingSender{block: make(chan struct{})}
	defer close(sender.block)
	c := newTestCoordinator(t, Options{AppID: "x", Timeout: 20 * time.Millisecond}, state, sender)

	assert.Equal(t, OutcomeFailed, c.Trigger(context.Background()))
	assert.True(t, state.lastSent().IsZero())
}

func TestTrigger_ConcurrentCallsCoalesce(t *testing.T) {
	var requests atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender, err := NewHTTPSender(srv.URL+"/p", srv.Client())
	require.NoError(t, err)
	state := &memState{}
	c := newTestCoordinator(t, Options{AppID: "x"}, state, sender)

	const callers = 10
	outcomes := make(chan Outcome, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes <- c.Trigger(context.Background())
		}()
	}

	require.Eventually(t, func() bool { return requests.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(outcomes)

	assert.Equal(t, int32(1), requests.Load(), "one request in flight at a time")
	for o := range outcomes {
		assert.Contains(t, []Outcome{OutcomeSent, OutcomeSkipped}, o)
	}
	assert.Equal(t, heartbeat.Date("2026-10-16"), state.lastSent())
}

type panickingSender struct{}

func (panickingSender) Send(ctx context.Context, s heartbeat.Signal) error {
	panic("transport exploded")
}

type panickingIdentity struct{}

func (panickingIdentity) DeviceHash(ctx context.Context) heartbeat.DeviceHash {
	panic("keychain exploded")
}

func TestTrigger_RecoversPanics(t *testing.T) {
	t.Run("sender", func(t *testing.T) {
		state := &memState{}
		c := newTestCoordinator(t, Options{AppID: "x"}, state, panickingSender{})

		var outcome Outcome
		assert.NotPanics(t, func() { outcome = c.Trigger(context.Background()) })
		assert.Equal(t, OutcomeFailed, outcome)
		assert.True(t, state.lastSent().IsZero())
	})

	t.Run("identity", func(t *testing.T) {
		state := &memState{}
		c, err := NewCoordinator(Options{AppID: "x", Logger: quietLogger(), Clock: func() time.Time { return day }},
			panickingIdentity{}, state, &recordingSender{})
		require.NoError(t, err)

		const callers = 4
		var wg sync.WaitGroup
		outcomes := make(chan Outcome, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				outcomes <- c.Trigger(context.Background())
			}()
		}
		wg.Wait()
		close(outcomes)

		for o := range outcomes {
			assert.Equal(t, OutcomeFailed, o)
		}
	})
}

func TestPingAsync(t *testing.T) {
	state := &memState{}
	sender := &recordingSender{}
	c := newTestCoordinator(t, Options{AppID: "x", StartDelay: 10 * time.Millisecond}, state, sender)

	c.PingAsync(context.Background())

	assert.Eventually(t, func() bool { return state.lastSent() == "2026-10-16" }, time.Second, 5*time.Millisecond)
}

func TestPingAsync_CancelledBeforeDelay(t *testing.T) {
	state := &memState{}
	sender := &recordingSender{}
	c := newTestCoordinator(t, Options{AppID: "x", StartDelay: time.Hour}, state, sender)

	ctx, cancel := context.WithCancel(context.Background())
	c.PingAsync(ctx)
	cancel()

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, sender.count())
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "skipped", OutcomeSkipped.String())
	assert.Equal(t, "sent", OutcomeSent.String())
	assert.Equal(t, "failed", OutcomeFailed.String())
	assert.Equal(t, "aborted", OutcomeAborted.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}
