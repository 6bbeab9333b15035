package routing

import (
	"context"
	"errors"
	"fmt"
	"github.com/shimmeringbee/da"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/ztd/cluster"
	"sync"
)

var (
	// ErrOverlappingOwnership rejects a gang claiming a datapoint another
	// sibling already owns. Ownership is a configuration invariant checked at
	// registration, not a runtime condition.
	ErrOverlappingOwnership = errors.New("datapoint already owned by a sibling")

	// ErrDuplicateMain rejects a second main device on one physical node.
	ErrDuplicateMain = errors.New("node already has a main device")
)

// Handler receives datapoint messages owned by a member.
type Handler func(ctx context.Context, msg cluster.DatapointMessage)

// Member is one virtual device's claim on a physical node: the datapoints it
// owns and whether it is the node's main device. The main device additionally
// receives any node global datapoint no specific gang claims (power on
// behaviour, backlight and the like).
type Member struct {
	Device     da.Device
	Datapoints []uint8
	Main       bool
	Handler    Handler
}

// Table routes decoded datapoint messages for one physical node to the
// sibling that owns them. One table is installed per node by the main device.
type Table struct {
	logger logwrap.Logger

	m           *sync.RWMutex
	members     []*Member
	byDatapoint map[uint8]*Member
	main        *Member
}

func NewTable(l logwrap.Logger) *Table {
	return &Table{
		logger:      l,
		m:           &sync.RWMutex{},
		byDatapoint: make(map[uint8]*Member),
	}
}

// Register adds a member, validating the ownership invariants.
func (t *Table) Register(m Member) error {
	t.m.Lock()
	defer t.m.Unlock()

	if m.Main && t.main != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateMain, t.main.Device.Identifier().String())
	}

	for _, d := range m.Datapoints {
		if existing, ok := t.byDatapoint[d]; ok {
			return fmt.Errorf("%w: datapoint %d owned by %s", ErrOverlappingOwnership, d, existing.Device.Identifier().String())
		}
	}

	member := &Member{Device: m.Device, Datapoints: append([]uint8(nil), m.Datapoints...), Main: m.Main, Handler: m.Handler}

	t.members = append(t.members, member)
	for _, d := range member.Datapoints {
		t.byDatapoint[d] = member
	}

	if member.Main {
		t.main = member
	}

	return nil
}

// Deregister removes a member and releases its datapoints.
func (t *Table) Deregister(d da.Device) {
	t.m.Lock()
	defer t.m.Unlock()

	var kept []*Member

	for _, member := range t.members {
		if member.Device.Identifier().String() == d.Identifier().String() {
			for _, dpid := range member.Datapoints {
				delete(t.byDatapoint, dpid)
			}

			if t.main == member {
				t.main = nil
			}

			continue
		}

		kept = append(kept, member)
	}

	t.members = kept
}

// Owner resolves the member owning a datapoint, falling through to the main
// device for unclaimed node global datapoints.
func (t *Table) Owner(dpid uint8) (*Member, bool) {
	t.m.RLock()
	defer t.m.RUnlock()

	if member, ok := t.byDatapoint[dpid]; ok {
		return member, true
	}

	if t.main != nil {
		return t.main, true
	}

	return nil, false
}

// Owns reports whether the given device owns a datapoint, under the same
// main device fall through as Owner.
func (t *Table) Owns(d da.Device, dpid uint8) bool {
	member, ok := t.Owner(dpid)
	if !ok {
		return false
	}

	return member.Device.Identifier().String() == d.Identifier().String()
}

// Main returns the node's main device member, if one is registered.
func (t *Table) Main() (*Member, bool) {
	t.m.RLock()
	defer t.m.RUnlock()

	return t.main, t.main != nil
}

// Dispatch forwards a decoded datapoint message to exactly the sibling whose
// ownership predicate matches. Messages with no owner are logged and dropped.
func (t *Table) Dispatch(ctx context.Context, msg cluster.DatapointMessage) bool {
	member, ok := t.Owner(msg.Datapoint)
	if !ok {
		t.logger.LogWarn(ctx, "Datapoint message has no owning device.", logwrap.Datum("Datapoint", msg.Datapoint))
		return false
	}

	if member.Handler != nil {
		member.Handler(ctx, msg)
	}

	return true
}
