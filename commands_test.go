package ztd

import (
	"context"
	"github.com/shimmeringbee/da"
	"github.com/shimmeringbee/zigbee"
	"github.com/shimmeringbee/ztd/cluster"
	"github.com/shimmeringbee/ztd/dp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"testing"
)

func TestZTD_SetDatapoint(t *testing.T) {
	t.Run("a write is encoded and transmitted as a datapoint command", func(t *testing.T) {
		z, mockProvider, mzgc := NewTestZTD()
		defer z.Stop()

		addr := zigbee.GenerateLocalAdministeredIEEEAddress()
		enumerateTestNode(t, z, mockProvider, mzgc, addr, "_TZ3000_abcdefgh", "TS0002")

		sub := z.getDevice(IEEEAddressWithSubIdentifier{IEEEAddress: addr, SubIdentifier: 1})

		var sent []byte

		mockProvider.ExpectedCalls = nil
		mockProvider.On("SendApplicationMessageToNode", mock.Anything, addr, mock.MatchedBy(func(msg zigbee.ApplicationMessage) bool {
			f, err := cluster.ParseFrame(msg.Data)
			if err != nil || f.Command != cluster.DatapointCommand {
				return false
			}

			sent = f.Payload
			return true
		}), false).Return(nil)

		err := z.SetDatapoint(context.Background(), sub.compose(), 2, dp.TypeBool, true)
		assert.NoError(t, err)

		assert.NotNil(t, sent)
		// status, transid, then dp 2 as a single true boolean
		assert.Equal(t, []byte{2, 0x01, 0x00, 0x01, 0x01}, sent[2:])
	})

	t.Run("a write to a sibling's datapoint is rejected before transmission", func(t *testing.T) {
		z, mockProvider, mzgc := NewTestZTD()
		defer z.Stop()

		addr := zigbee.GenerateLocalAdministeredIEEEAddress()
		enumerateTestNode(t, z, mockProvider, mzgc, addr, "_TZ3000_abcdefgh", "TS0002")

		sub := z.getDevice(IEEEAddressWithSubIdentifier{IEEEAddress: addr, SubIdentifier: 1})

		err := z.SetDatapoint(context.Background(), sub.compose(), 1, dp.TypeBool, true)
		assert.ErrorIs(t, err, ErrDatapointNotOwned)
	})

	t.Run("a write for an unknown device is rejected", func(t *testing.T) {
		z, _, _ := NewTestZTD()
		defer z.Stop()

		stranger := da.BaseDevice{DeviceIdentifier: IEEEAddressWithSubIdentifier{IEEEAddress: zigbee.GenerateLocalAdministeredIEEEAddress()}}

		err := z.SetDatapoint(context.Background(), stranger, 1, dp.TypeBool, true)
		assert.ErrorIs(t, err, ErrUnknownDevice)
	})

	t.Run("a redundant write matching confirmed state is debounced", func(t *testing.T) {
		z, mockProvider, mzgc := NewTestZTD()
		defer z.Stop()

		addr := zigbee.GenerateLocalAdministeredIEEEAddress()
		n := enumerateTestNode(t, z, mockProvider, mzgc, addr, "_TZ3000_abcdefgh", "TS0001")

		main := z.getDevice(IEEEAddressWithSubIdentifier{IEEEAddress: addr, SubIdentifier: 0})

		// The device reports dp 1 on, as if confirming an earlier command.
		msg := cluster.DatapointMessage{Datapoint: 1, DataType: dp.TypeBool, Data: []byte{0x01}}
		n.routes.Dispatch(context.Background(), msg)

		transmissions := 0

		mockProvider.ExpectedCalls = nil
		mockProvider.On("SendApplicationMessageToNode", mock.Anything, addr, mock.Anything, false).Run(func(args mock.Arguments) {
			transmissions++
		}).Return(nil).Maybe()

		err := z.SetDatapoint(context.Background(), main.compose(), 1, dp.TypeBool, true)
		assert.NoError(t, err)
		assert.Equal(t, 0, transmissions)
	})
}

func TestZTD_SetDatapoints(t *testing.T) {
	t.Run("a bulk write transmits the items in order", func(t *testing.T) {
		z, mockProvider, mzgc := NewTestZTD()
		defer z.Stop()

		addr := zigbee.GenerateLocalAdministeredIEEEAddress()
		enumerateTestNode(t, z, mockProvider, mzgc, addr, "_TZ3000_t1blo2bj", "TS0601")

		main := z.getDevice(IEEEAddressWithSubIdentifier{IEEEAddress: addr, SubIdentifier: 0})

		var order []uint8

		mockProvider.ExpectedCalls = nil
		mockProvider.On("SendApplicationMessageToNode", mock.Anything, addr, mock.MatchedBy(func(msg zigbee.ApplicationMessage) bool {
			f, err := cluster.ParseFrame(msg.Data)
			if err != nil || f.Command != cluster.DatapointCommand {
				return false
			}

			order = append(order, f.Payload[2])
			return true
		}), false).Return(nil)

		results, err := z.SetDatapoints(context.Background(), main.compose(), []DatapointWrite{
			{Datapoint: 1, DataType: dp.TypeBool, Value: true},
			{Datapoint: 13, DataType: dp.TypeEnum, Value: uint8(2)},
		})

		assert.NoError(t, err)
		assert.Len(t, results, 2)
		assert.True(t, results[0].Success)
		assert.True(t, results[1].Success)
		assert.Equal(t, []uint8{1, 13}, order)
	})

	t.Run("a bulk write with an unencodable value is rejected before anything is sent", func(t *testing.T) {
		z, mockProvider, mzgc := NewTestZTD()
		defer z.Stop()

		addr := zigbee.GenerateLocalAdministeredIEEEAddress()
		enumerateTestNode(t, z, mockProvider, mzgc, addr, "_TZ3000_abcdefgh", "TS0001")

		main := z.getDevice(IEEEAddressWithSubIdentifier{IEEEAddress: addr, SubIdentifier: 0})

		_, err := z.SetDatapoints(context.Background(), main.compose(), []DatapointWrite{
			{Datapoint: 1, DataType: dp.TypeBool, Value: "not a bool"},
		})

		assert.Error(t, err)
	})
}
