package ztd

import (
	"context"
	"github.com/shimmeringbee/da"
	"github.com/shimmeringbee/zigbee"
	"github.com/shimmeringbee/ztd/availability"
	"github.com/shimmeringbee/ztd/dispatch"
	"github.com/shimmeringbee/ztd/routing"
	"github.com/shimmeringbee/ztd/rules"
	"golang.org/x/sync/semaphore"
	"sync"
)

func (z *ZTD) createNode(addr zigbee.IEEEAddress) (*node, bool) {
	z.nodeLock.Lock()
	defer z.nodeLock.Unlock()

	n, found := z.node[addr]
	if !found {
		n = &node{
			address:        addr,
			m:              &sync.RWMutex{},
			sequence:       makeTransactionSequence(),
			transaction:    makeTransactionSequence(),
			device:         make(map[uint8]*device),
			endpoint:       DefaultTuyaEndpoint,
			routes:         routing.NewTable(z.logger),
			enumerationSem: semaphore.NewWeighted(1),
		}

		n.dispatcher = dispatch.NewDispatcher(z.transmitFuncForNode(n), z.logger)

		n.tracker = availability.New(
			z.sectionForNode(addr).Section("availability"),
			z.siblingsFuncForNode(n),
			z,
			rules.MainsTimeout,
			z.logger,
		)

		z.node[addr] = n

		z.sectionForNode(n.address)
	}

	return n, !found
}

// siblingsFuncForNode resolves the devices an availability transition
// cascades to, lazily so devices created after the tracker still appear.
func (z *ZTD) siblingsFuncForNode(n *node) func() []da.Device {
	return func() []da.Device {
		main := n.mainDevice()
		if main == nil {
			return nil
		}

		return z.registry.Group(n.address, n.groupingToken(), main.compose())
	}
}

func (z *ZTD) getNode(addr zigbee.IEEEAddress) *node {
	z.nodeLock.RLock()
	defer z.nodeLock.RUnlock()

	return z.node[addr]
}

func (z *ZTD) getNodes() []*node {
	z.nodeLock.RLock()
	defer z.nodeLock.RUnlock()

	var nodes []*node

	for _, n := range z.node {
		nodes = append(nodes, n)
	}

	return nodes
}

func (z *ZTD) removeNode(addr zigbee.IEEEAddress) bool {
	z.nodeLock.Lock()
	defer z.nodeLock.Unlock()

	n, found := z.node[addr]
	if found {
		n.tracker.Stop()
		delete(z.node, addr)
		z.sectionRemoveNode(addr)
	}

	return found
}

func (z *ZTD) getDevice(addr IEEEAddressWithSubIdentifier) *device {
	n := z.getNode(addr.IEEEAddress)

	if n == nil {
		return nil
	}

	n.m.RLock()
	defer n.m.RUnlock()

	return n.device[addr.SubIdentifier]
}

func (z *ZTD) getDevices() []*device {
	var devices []*device

	for _, n := range z.getNodes() {
		devices = append(devices, z.getDevicesOnNode(n)...)
	}

	return devices
}

func (z *ZTD) getDevicesOnNode(n *node) []*device {
	n.m.RLock()
	defer n.m.RUnlock()

	var devices []*device

	for _, d := range n.device {
		devices = append(devices, d)
	}

	return devices
}

func (z *ZTD) createSpecificDevice(n *node, subId uint8) *device {
	n.m.Lock()
	defer n.m.Unlock()

	d := &device{
		address: IEEEAddressWithSubIdentifier{
			IEEEAddress:   n.address,
			SubIdentifier: subId,
		},
		gw:        z,
		n:         n,
		m:         &sync.RWMutex{},
		available: true,
	}

	n.device[subId] = d

	z.sectionForDevice(d.address)
	z.registry.Add(n.address, n.profile.GroupingToken, d.compose())

	z.sendEvent(da.DeviceAdded{Device: d.compose()})
	z.callbacks.Call(context.Background(), internalDeviceAdded{device: d})

	return d
}

func (z *ZTD) createNextDevice(n *node) *device {
	n.m.Lock()
	subId := n._nextDeviceSubIdentifier()
	n.m.Unlock()

	return z.createSpecificDevice(n, subId)
}

func (z *ZTD) removeDevice(addr IEEEAddressWithSubIdentifier) bool {
	n := z.getNode(addr.IEEEAddress)

	if n == nil {
		return false
	}

	n.m.Lock()
	defer n.m.Unlock()

	if d, found := n.device[addr.SubIdentifier]; found {
		n.routes.Deregister(d.compose())
		z.registry.Remove(n.address, d.compose())

		delete(n.device, addr.SubIdentifier)
		z.sectionRemoveDevice(d.address)

		z.sendEvent(da.DeviceRemoved{Device: d.compose()})
		z.callbacks.Call(context.Background(), internalDeviceRemoved{device: d})
		return true
	}

	return false
}
