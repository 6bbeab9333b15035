package ztd

import (
	"context"
	"github.com/shimmeringbee/persistence/impl/memory"
	"github.com/shimmeringbee/zcl"
	"github.com/shimmeringbee/zcl/commands/global"
	"github.com/shimmeringbee/zigbee"
	"github.com/shimmeringbee/ztd/cluster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"testing"
	"time"
)

type mockZclGlobalCommunicator struct {
	mock.Mock
}

func (m *mockZclGlobalCommunicator) ReadAttributes(ctx context.Context, ieeeAddress zigbee.IEEEAddress, requireAck bool, cluster zigbee.ClusterID, code zigbee.ManufacturerCode, sourceEndpoint zigbee.Endpoint, destEndpoint zigbee.Endpoint, transactionSequence uint8, attributes []zcl.AttributeID) ([]global.ReadAttributeResponseRecord, error) {
	args := m.Called(ctx, ieeeAddress, requireAck, cluster, code, sourceEndpoint, destEndpoint, transactionSequence, attributes)
	return args.Get(0).([]global.ReadAttributeResponseRecord), args.Error(1)
}

func NewTestZTD() (*ZTD, *zigbee.MockProvider, *mockZclGlobalCommunicator) {
	mockProvider := new(zigbee.MockProvider)
	mzgc := new(mockZclGlobalCommunicator)

	z := New(mockProvider, mzgc, memory.New(), nil)

	return z, mockProvider, mzgc
}

func productRecords(manufacturer string, product string) []global.ReadAttributeResponseRecord {
	return []global.ReadAttributeResponseRecord{
		{
			Identifier: manufacturerNameAttribute,
			Status:     0,
			DataTypeValue: &zcl.AttributeDataTypeValue{
				DataType: zcl.TypeStringCharacter8,
				Value:    manufacturer,
			},
		},
		{
			Identifier: modelIdentifierAttribute,
			Status:     0,
			DataTypeValue: &zcl.AttributeDataTypeValue{
				DataType: zcl.TypeStringCharacter8,
				Value:    product,
			},
		},
	}
}

// enumerateTestNode drives a node through the full join and enumeration path
// with mocked product reads.
func enumerateTestNode(t *testing.T, z *ZTD, mockProvider *zigbee.MockProvider, mzgc *mockZclGlobalCommunicator, addr zigbee.IEEEAddress, manufacturer string, product string) *node {
	mzgc.On("ReadAttributes", mock.Anything, addr, false, zcl.BasicId, zigbee.NoManufacturer, DefaultGatewayHomeAutomationEndpoint, DefaultTuyaEndpoint, mock.Anything, []zcl.AttributeID{manufacturerNameAttribute, modelIdentifierAttribute}).
		Return(productRecords(manufacturer, product), nil)
	mzgc.On("ReadAttributes", mock.Anything, addr, false, zcl.BasicId, zigbee.NoManufacturer, DefaultGatewayHomeAutomationEndpoint, DefaultTuyaEndpoint, mock.Anything, cluster.MagicAttributeIDs).
		Return([]global.ReadAttributeResponseRecord{}, nil)
	mockProvider.On("SendApplicationMessageToNode", mock.Anything, addr, mock.Anything, mock.Anything).Return(nil).Maybe()

	n, created := z.createNode(addr)
	assert.True(t, created)

	z.enumerateNode(context.Background(), n)

	return n
}

// drainEvent reads the next gateway event, failing the test on timeout.
func drainEvent(t *testing.T, z *ZTD) any {
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	e, err := z.ReadEvent(ctx)
	assert.NoError(t, err)

	return e
}

// drainEventOfType discards events until one of the wanted type arrives.
func drainEventOfType[T any](t *testing.T, z *ZTD) (T, bool) {
	deadline := time.Now().Add(250 * time.Millisecond)

	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		e, err := z.ReadEvent(ctx)
		cancel()

		if err != nil {
			break
		}

		if typed, ok := e.(T); ok {
			return typed, true
		}
	}

	var zero T
	return zero, false
}
