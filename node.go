package ztd

import (
	"github.com/shimmeringbee/zigbee"
	"github.com/shimmeringbee/ztd/availability"
	"github.com/shimmeringbee/ztd/dispatch"
	"github.com/shimmeringbee/ztd/routing"
	"github.com/shimmeringbee/ztd/rules"
	"golang.org/x/sync/semaphore"
	"math"
	"sync"
)

type productData struct {
	manufacturer string
	product      string
	deviceID     uint16
}

type node struct {
	// Immutable data.
	address zigbee.IEEEAddress
	m       *sync.RWMutex

	// Thread safe data.
	sequence    chan uint8
	transaction chan uint8

	// Mutable data, obtain lock first.
	device map[uint8]*device

	product  productData
	profile  rules.Profile
	endpoint zigbee.Endpoint

	useAPSAck bool

	// Node wide resources, owned by the main device.
	dispatcher *dispatch.Dispatcher
	tracker    *availability.Tracker
	routes     *routing.Table

	enumerationSem *semaphore.Weighted
}

func makeTransactionSequence() chan uint8 {
	ch := make(chan uint8, math.MaxUint8)

	for i := uint8(0); i < math.MaxUint8; i++ {
		ch <- i
	}

	return ch
}

// requiresAPSAck reports whether transmissions to this node request APS
// level acknowledgement, resolved from its profile.
func (n *node) requiresAPSAck() bool {
	n.m.RLock()
	defer n.m.RUnlock()

	return n.useAPSAck
}

// groupingToken is the profile supplied secondary availability grouping key,
// empty when address grouping suffices.
func (n *node) groupingToken() string {
	n.m.RLock()
	defer n.m.RUnlock()

	return n.profile.GroupingToken
}

// nextTransactionSequence cycles the ZCL frame sequence number.
func (n *node) nextTransactionSequence() uint8 {
	nextSeq := <-n.sequence
	n.sequence <- nextSeq

	return nextSeq
}

// nextDatapointTransaction cycles the manufacturer cluster transaction
// identifier, which is carried separately from the ZCL sequence.
func (n *node) nextDatapointTransaction() uint8 {
	nextId := <-n.transaction
	n.transaction <- nextId

	return nextId
}

func (n *node) _nextDeviceSubIdentifier() uint8 {
	for i := uint8(0); i < math.MaxUint8; i++ {
		if _, found := n.device[i]; !found {
			return i
		}
	}

	return math.MaxUint8
}

func (n *node) mainDevice() *device {
	n.m.RLock()
	defer n.m.RUnlock()

	for _, d := range n.device {
		if d.isMain() {
			return d
		}
	}

	return nil
}

func (n *node) retryPolicy() dispatch.Policy {
	n.m.RLock()
	defer n.m.RUnlock()

	return dispatch.PolicyFor(n.profile.RetryProfile)
}

func (n *node) setRetryProfile(p dispatch.Profile) {
	n.m.Lock()
	defer n.m.Unlock()

	n.profile.RetryProfile = p
}

func (n *node) productInput() rules.Input {
	n.m.RLock()
	defer n.m.RUnlock()

	return rules.Input{
		Manufacturer: n.product.manufacturer,
		Product:      n.product.product,
		DeviceID:     n.product.deviceID,
	}
}
