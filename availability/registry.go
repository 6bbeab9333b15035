package availability

import (
	"github.com/shimmeringbee/da"
	"github.com/shimmeringbee/zigbee"
	"sync"
)

// Registry is an explicit node to device group index, populated as virtual
// devices are added and removed rather than scanning the host's device list
// on every watchdog tick. Devices register under their node's hardware
// address and optionally a secondary grouping token for models whose gangs do
// not share an address.
type Registry struct {
	m         *sync.RWMutex
	byAddress map[zigbee.IEEEAddress][]entry
	byToken   map[string][]entry
}

type entry struct {
	device da.Device
	token  string
}

func NewRegistry() *Registry {
	return &Registry{
		m:         &sync.RWMutex{},
		byAddress: make(map[zigbee.IEEEAddress][]entry),
		byToken:   make(map[string][]entry),
	}
}

// Add registers a virtual device against its physical node. token may be
// empty when address grouping suffices.
func (r *Registry) Add(address zigbee.IEEEAddress, token string, d da.Device) {
	r.m.Lock()
	defer r.m.Unlock()

	e := entry{device: d, token: token}

	r.byAddress[address] = append(r.byAddress[address], e)

	if token != "" {
		r.byToken[token] = append(r.byToken[token], e)
	}
}

// Remove deregisters a virtual device.
func (r *Registry) Remove(address zigbee.IEEEAddress, d da.Device) {
	r.m.Lock()
	defer r.m.Unlock()

	r.byAddress[address] = withoutDevice(r.byAddress[address], d)
	if len(r.byAddress[address]) == 0 {
		delete(r.byAddress, address)
	}

	for token, entries := range r.byToken {
		r.byToken[token] = withoutDevice(entries, d)
		if len(r.byToken[token]) == 0 {
			delete(r.byToken, token)
		}
	}
}

// Group resolves the sibling set for a device: everything sharing its node's
// hardware address, falling back to its secondary grouping token, falling
// back to the device alone.
func (r *Registry) Group(address zigbee.IEEEAddress, token string, self da.Device) []da.Device {
	r.m.RLock()
	defer r.m.RUnlock()

	if entries, ok := r.byAddress[address]; ok && len(entries) > 0 {
		return devicesOf(entries)
	}

	if token != "" {
		if entries, ok := r.byToken[token]; ok && len(entries) > 0 {
			return devicesOf(entries)
		}
	}

	if self != nil {
		return []da.Device{self}
	}

	return nil
}

func withoutDevice(entries []entry, d da.Device) []entry {
	var out []entry

	for _, e := range entries {
		if e.device.Identifier().String() != d.Identifier().String() {
			out = append(out, e)
		}
	}

	return out
}

func devicesOf(entries []entry) []da.Device {
	out := make([]da.Device, 0, len(entries))

	for _, e := range entries {
		out = append(out, e.device)
	}

	return out
}
