package ztd

import (
	"fmt"
	"github.com/shimmeringbee/da"
	"github.com/shimmeringbee/zigbee"
	"sync"
)

type IEEEAddressWithSubIdentifier struct {
	IEEEAddress   zigbee.IEEEAddress
	SubIdentifier uint8
}

func (a IEEEAddressWithSubIdentifier) String() string {
	return fmt.Sprintf("%s-%02x", a.IEEEAddress, a.SubIdentifier)
}

// device is one virtual device on a physical node. Multi gang hardware
// produces several of these per node, the gang 0 device is the main device
// and owns the node wide resources.
type device struct {
	// Immutable data.
	address IEEEAddressWithSubIdentifier
	gw      da.Gateway
	n       *node
	m       *sync.RWMutex

	// Mutable data, obtain lock first.
	gang       uint8
	main       bool
	datapoints []uint8
	available  bool
}

// compose returns the host facing representation of the device.
func (d *device) compose() da.Device {
	return da.BaseDevice{
		DeviceGateway:    d.gw,
		DeviceIdentifier: d.address,
	}
}

func (d *device) isMain() bool {
	d.m.RLock()
	defer d.m.RUnlock()

	return d.main
}

func (d *device) setAvailable(available bool) bool {
	d.m.Lock()
	defer d.m.Unlock()

	if d.available == available {
		return false
	}

	d.available = available
	return true
}
