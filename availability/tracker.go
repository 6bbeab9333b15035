package availability

import (
	"context"
	"fmt"
	"github.com/shimmeringbee/da"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/persistence"
	"sync"
	"time"
)

const (
	// DefaultWatchdogInterval is the fixed tick at which elapsed time since
	// the last activity is checked.
	DefaultWatchdogInterval = 60 * time.Second

	LastSeenKey = "LastSeen"
)

// Sink applies an availability transition to one virtual device. Implemented
// by the gateway against the host framework.
type Sink interface {
	SetAvailable(ctx context.Context, d da.Device, available bool, reason string) error
}

// Tracker holds the availability state of one physical node and cascades
// transitions to every virtual device resolved as a sibling. Timeout values
// are policy owned by the caller: sleepy sensors pass hours, mains powered
// devices minutes.
type Tracker struct {
	config   persistence.Section
	siblings func() []da.Device
	sink     Sink
	logger   logwrap.Logger

	timeout  time.Duration
	interval time.Duration
	now      func() time.Time

	m         *sync.Mutex
	lastSeen  time.Time
	available bool
	enabled   bool
	running   bool
	stop      chan struct{}
}

// New constructs a tracker. siblings resolves the virtual devices bound to
// the tracked node at transition time; the node starts available with
// monitoring enabled. A last seen timestamp persisted by an earlier run is
// reloaded so a restart does not reset the clock.
func New(s persistence.Section, siblings func() []da.Device, sink Sink, timeout time.Duration, l logwrap.Logger) *Tracker {
	t := &Tracker{
		config:   s,
		siblings: siblings,
		sink:     sink,
		logger:   l,

		timeout:  timeout,
		interval: DefaultWatchdogInterval,
		now:      time.Now,

		m:         &sync.Mutex{},
		available: true,
		enabled:   true,
	}

	if v, ok := s.Int(LastSeenKey); ok {
		t.lastSeen = time.UnixMilli(int64(v))
	} else {
		t.lastSeen = t.now()
	}

	return t
}

// SetTimeout replaces the inactivity timeout, typically once device profile
// resolution has classified the node as mains powered or sleepy.
func (t *Tracker) SetTimeout(d time.Duration) {
	t.m.Lock()
	defer t.m.Unlock()

	t.timeout = d
}

// SetWatchdogInterval overrides the tick period, before Start.
func (t *Tracker) SetWatchdogInterval(d time.Duration) {
	t.m.Lock()
	defer t.m.Unlock()

	t.interval = d
}

// Available reports the current node state.
func (t *Tracker) Available() bool {
	t.m.Lock()
	defer t.m.Unlock()

	return t.available
}

// LastSeen reports the time of the most recent observed activity.
func (t *Tracker) LastSeen() time.Time {
	t.m.Lock()
	defer t.m.Unlock()

	return t.lastSeen
}

// Pulse records activity from the node. Both capture strategies end here: the
// gateway's provider loop pulses on every inbound frame (passive), and
// protocol handlers pulse with a descriptive source when frame interception
// is unavailable (explicit). An unavailable node transitions back to
// available immediately, along with all of its siblings.
func (t *Tracker) Pulse(ctx context.Context, source string) {
	t.m.Lock()

	t.lastSeen = t.now()
	t.config.Set(LastSeenKey, t.lastSeen.UnixMilli())

	wasAvailable := t.available
	t.available = true
	t.m.Unlock()

	if !wasAvailable {
		t.cascade(ctx, true, fmt.Sprintf("activity observed: %s", source))
	}
}

// SetEnabled toggles watchdog monitoring. Disabling stops unavailability
// transitions without touching the persisted last seen timestamp; re-enabling
// resumes against the existing history.
func (t *Tracker) SetEnabled(ctx context.Context, enabled bool) {
	t.m.Lock()
	changed := t.enabled != enabled
	t.enabled = enabled
	t.m.Unlock()

	if changed {
		t.logger.LogInfo(ctx, "Availability monitoring toggled.", logwrap.Datum("Enabled", enabled))
	}
}

// Start launches the watchdog tick.
func (t *Tracker) Start(ctx context.Context) {
	t.m.Lock()
	defer t.m.Unlock()

	if t.running {
		return
	}

	t.running = true
	t.stop = make(chan struct{})

	go t.watchdog(ctx, t.stop, t.interval)
}

// Stop halts the watchdog. Pulse remains usable.
func (t *Tracker) Stop() {
	t.m.Lock()
	defer t.m.Unlock()

	if !t.running {
		return
	}

	t.running = false
	close(t.stop)
}

func (t *Tracker) watchdog(ctx context.Context, stop chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.check(ctx)
		}
	}
}

// check runs one watchdog evaluation. A node already unavailable is left
// alone so the log is not spammed every tick.
func (t *Tracker) check(ctx context.Context) {
	t.m.Lock()

	if !t.enabled || !t.available {
		t.m.Unlock()
		return
	}

	elapsed := t.now().Sub(t.lastSeen)
	if elapsed <= t.timeout {
		t.m.Unlock()
		return
	}

	t.available = false
	t.m.Unlock()

	t.cascade(ctx, false, fmt.Sprintf("no activity for %s (timeout %s)", elapsed.Round(time.Second), t.timeout))
}

// cascade applies a transition to the resolved sibling group. Sink errors are
// logged and swallowed so a failing store never disturbs the watchdog tick.
func (t *Tracker) cascade(ctx context.Context, available bool, reason string) {
	group := t.siblings()

	t.logger.LogInfo(ctx, "Availability transition.", logwrap.Datum("Available", available), logwrap.Datum("Reason", reason), logwrap.Datum("Devices", len(group)))

	for _, d := range group {
		if err := t.sink.SetAvailable(ctx, d, available, reason); err != nil {
			t.logger.LogError(ctx, "Failed to apply availability transition to device.", logwrap.Datum("Identifier", d.Identifier().String()), logwrap.Err(err))
		}
	}
}
