package ztd

import (
	"github.com/shimmeringbee/persistence"
	"github.com/shimmeringbee/zigbee"
	"strconv"
)

const (
	manufacturerKey = "Manufacturer"
	productKey      = "Product"
	deviceIDKey     = "DeviceID"
	endpointKey     = "Endpoint"
)

func (z *ZTD) sectionRemoveNode(i zigbee.IEEEAddress) bool {
	return z.section.Section("node").SectionDelete(i.String())
}

func (z *ZTD) sectionForNode(i zigbee.IEEEAddress) persistence.Section {
	return z.section.Section("node", i.String())
}

func (z *ZTD) nodeListFromPersistence() []zigbee.IEEEAddress {
	var nodeList []zigbee.IEEEAddress

	for _, k := range z.section.Section("node").SectionKeys() {
		if addr, err := strconv.ParseUint(k, 16, 64); err == nil {
			nodeList = append(nodeList, zigbee.IEEEAddress(addr))
		}
	}

	return nodeList
}

func (z *ZTD) sectionRemoveDevice(i IEEEAddressWithSubIdentifier) bool {
	return z.sectionForNode(i.IEEEAddress).Section("device").SectionDelete(strconv.Itoa(int(i.SubIdentifier)))
}

func (z *ZTD) sectionForDevice(i IEEEAddressWithSubIdentifier) persistence.Section {
	return z.sectionForNode(i.IEEEAddress).Section("device", strconv.Itoa(int(i.SubIdentifier)))
}

func (z *ZTD) deviceListFromPersistence(id zigbee.IEEEAddress) []IEEEAddressWithSubIdentifier {
	var deviceList []IEEEAddressWithSubIdentifier

	for _, k := range z.sectionForNode(id).Section("device").SectionKeys() {
		if i, err := strconv.Atoi(k); err == nil {
			deviceList = append(deviceList, IEEEAddressWithSubIdentifier{IEEEAddress: id, SubIdentifier: uint8(i)})
		}
	}

	return deviceList
}

// persistProduct stores the enumerated product identity so a restart can
// rebuild the device profile without interrogating the node again.
func (z *ZTD) persistProduct(n *node) {
	s := z.sectionForNode(n.address)

	n.m.RLock()
	defer n.m.RUnlock()

	s.Set(manufacturerKey, n.product.manufacturer)
	s.Set(productKey, n.product.product)
	s.Set(deviceIDKey, int64(n.product.deviceID))
	s.Set(endpointKey, int64(n.endpoint))
}

func (z *ZTD) loadProduct(n *node) bool {
	s := z.sectionForNode(n.address)

	manufacturer, mOk := s.String(manufacturerKey)
	product, pOk := s.String(productKey)

	if !mOk || !pOk {
		return false
	}

	n.m.Lock()
	defer n.m.Unlock()

	n.product.manufacturer = manufacturer
	n.product.product = product

	if v, ok := s.Int(deviceIDKey); ok {
		n.product.deviceID = uint16(v)
	}

	if v, ok := s.Int(endpointKey); ok {
		n.endpoint = zigbee.Endpoint(v)
	}

	return true
}
