package dispatch

import (
	"context"
	"errors"
	"fmt"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/ztd/dp"
	"golang.org/x/sync/semaphore"
	"sync"
	"time"
)

const DefaultDebounceWindow = 400 * time.Millisecond

var (
	// ErrAborted is returned when a command is superseded by a newer write for
	// the same datapoint. It is not a delivery failure and is never retried.
	ErrAborted = errors.New("command aborted by superseding command")

	// ErrUnavailable is returned when a bulk send is refused because the
	// owning device is unavailable.
	ErrUnavailable = errors.New("device unavailable")

	// ErrSkipped marks bulk items abandoned after sustained loss.
	ErrSkipped = errors.New("command skipped after consecutive bulk failures")
)

// TransmitFunc delivers one encoded datapoint write to the physical device.
type TransmitFunc func(ctx context.Context, datapoint uint8, dataType dp.DataType, data []byte) error

// Request describes one datapoint write with its retry budget.
type Request struct {
	Datapoint uint8
	DataType  dp.DataType
	Data      []byte
	Retries   int
	BaseDelay time.Duration
}

// Dispatcher serialises outbound datapoint writes for one physical node,
// retrying with exponential backoff and aborting in flight commands when a
// newer write for the same datapoint arrives.
type Dispatcher struct {
	transmit TransmitFunc
	logger   logwrap.Logger

	slot *semaphore.Weighted

	m           *sync.Mutex
	inflight    map[uint8]*inflightCommand
	lastApplied map[uint8]appliedValue

	debounce time.Duration
}

type inflightCommand struct {
	cancel context.CancelFunc
}

type appliedValue struct {
	dataType dp.DataType
	data     string
	at       time.Time
}

func NewDispatcher(t TransmitFunc, l logwrap.Logger) *Dispatcher {
	return &Dispatcher{
		transmit:    t,
		logger:      l,
		slot:        semaphore.NewWeighted(1),
		m:           &sync.Mutex{},
		inflight:    make(map[uint8]*inflightCommand),
		lastApplied: make(map[uint8]appliedValue),
		debounce:    DefaultDebounceWindow,
	}
}

// SetDebounceWindow overrides the anti flicker window, zero disables it.
func (d *Dispatcher) SetDebounceWindow(w time.Duration) {
	d.m.Lock()
	defer d.m.Unlock()

	d.debounce = w
}

// NoteApplied records a value observed on the device, from its own report or
// a write acknowledgement, so duplicate writes can be suppressed. The cache
// belongs to this node alone.
func (d *Dispatcher) NoteApplied(datapoint uint8, dataType dp.DataType, data []byte) {
	d.m.Lock()
	defer d.m.Unlock()

	d.lastApplied[datapoint] = appliedValue{dataType: dataType, data: string(data), at: time.Now()}
}

// Send delivers a datapoint write, attempting the transmit up to Retries+1
// times with BaseDelay*2^attempt between failures. A newer Send for the same
// datapoint aborts this one, which then returns ErrAborted rather than a
// success or failure. A write identical to the immediately preceding applied
// value within the debounce window is suppressed without transmission.
func (d *Dispatcher) Send(ctx context.Context, r Request) error {
	d.m.Lock()

	if d.debounce > 0 {
		if prev, ok := d.lastApplied[r.Datapoint]; ok {
			if prev.dataType == r.DataType && prev.data == string(r.Data) && time.Since(prev.at) < d.debounce {
				d.m.Unlock()
				return nil
			}
		}
	}

	if previous, ok := d.inflight[r.Datapoint]; ok {
		previous.cancel()
	}

	ctx, cancel := context.WithCancel(ctx)
	me := &inflightCommand{cancel: cancel}
	d.inflight[r.Datapoint] = me
	d.m.Unlock()

	defer func() {
		cancel()

		d.m.Lock()
		if d.inflight[r.Datapoint] == me {
			delete(d.inflight, r.Datapoint)
		}
		d.m.Unlock()
	}()

	if err := d.slot.Acquire(ctx, 1); err != nil {
		return ErrAborted
	}
	defer d.slot.Release(1)

	err := d.attempt(ctx, r)

	if err == nil {
		d.NoteApplied(r.Datapoint, r.DataType, r.Data)
	}

	return err
}

func (d *Dispatcher) attempt(ctx context.Context, r Request) error {
	var lastErr error

	for attempt := 0; attempt <= r.Retries; attempt++ {
		if attempt > 0 {
			delay := r.BaseDelay << (attempt - 1)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ErrAborted
			}
		}

		if ctx.Err() != nil {
			return ErrAborted
		}

		lastErr = d.transmit(ctx, r.Datapoint, r.DataType, r.Data)

		if ctx.Err() != nil {
			return ErrAborted
		}

		if lastErr == nil {
			return nil
		}

		d.logger.LogWarn(ctx, "Datapoint write attempt failed.", logwrap.Datum("Datapoint", r.Datapoint), logwrap.Datum("Attempt", attempt), logwrap.Err(lastErr))
	}

	return fmt.Errorf("datapoint write failed after %d attempts: %w", r.Retries+1, lastErr)
}
