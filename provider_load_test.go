package ztd

import (
	"github.com/shimmeringbee/persistence/impl/memory"
	"github.com/shimmeringbee/zcl"
	"github.com/shimmeringbee/zigbee"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"testing"
	"time"
)

func TestZTD_LoadPersistence(t *testing.T) {
	t.Run("a restart rebuilds nodes and devices from persisted product identity without touching the network", func(t *testing.T) {
		section := memory.New()
		addr := zigbee.GenerateLocalAdministeredIEEEAddress()

		mockProvider := new(zigbee.MockProvider)
		mzgc := new(mockZclGlobalCommunicator)
		first := New(mockProvider, mzgc, section, nil)

		enumerateTestNode(t, first, mockProvider, mzgc, addr, "_TZ3000_abcdefgh", "TS0002")
		assert.NoError(t, first.Stop())

		secondProvider := new(zigbee.MockProvider)
		secondZgc := new(mockZclGlobalCommunicator)
		second := New(secondProvider, secondZgc, section, nil)
		defer second.Stop()

		assert.NoError(t, second.loadPersistence())

		n := second.getNode(addr)
		assert.NotNil(t, n)
		assert.Equal(t, "TS0002", n.product.product)
		assert.Len(t, second.getDevicesOnNode(n), 2)

		main := second.getDevice(IEEEAddressWithSubIdentifier{IEEEAddress: addr, SubIdentifier: 0})
		sub := second.getDevice(IEEEAddressWithSubIdentifier{IEEEAddress: addr, SubIdentifier: 1})

		assert.True(t, n.routes.Owns(main.compose(), 1))
		assert.True(t, n.routes.Owns(sub.compose(), 2))

		secondZgc.AssertExpectations(t)
		secondProvider.AssertExpectations(t)
	})

	t.Run("a node persisted without product identity is scheduled for enumeration again", func(t *testing.T) {
		section := memory.New()
		addr := zigbee.GenerateLocalAdministeredIEEEAddress()

		mockProvider := new(zigbee.MockProvider)
		mzgc := new(mockZclGlobalCommunicator)
		z := New(mockProvider, mzgc, section, nil)
		defer z.Stop()

		// Seed a node section with no product keys, as a crashed first
		// enumeration would leave behind.
		z.sectionForNode(addr)

		mzgc.On("ReadAttributes", mock.Anything, addr, false, zcl.BasicId, zigbee.NoManufacturer, DefaultGatewayHomeAutomationEndpoint, DefaultTuyaEndpoint, mock.Anything, mock.Anything).
			Return(productRecords("_TZ3000_abcdefgh", "TS0001"), nil).Maybe()
		mockProvider.On("SendApplicationMessageToNode", mock.Anything, addr, mock.Anything, false).Return(nil).Maybe()

		assert.NoError(t, z.loadPersistence())

		assert.NotNil(t, z.getNode(addr))

		assert.Eventually(t, func() bool {
			return len(z.getDevicesOnNode(z.getNode(addr))) == 1
		}, time.Second, 10*time.Millisecond)
	})
}
