package cluster

import (
	"context"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/discard"
	"github.com/shimmeringbee/zigbee"
	"github.com/shimmeringbee/ztd/dp"
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestDatapointMessage(t *testing.T) {
	t.Run("marshals with a big endian length and trailing data", func(t *testing.T) {
		msg := DatapointMessage{
			Status:        0x00,
			TransactionID: 0x2a,
			Datapoint:     3,
			DataType:      dp.TypeValue,
			Data:          []byte{0x00, 0x00, 0x01, 0x2c},
		}

		assert.Equal(t, []byte{0x00, 0x2a, 0x03, 0x02, 0x00, 0x04, 0x00, 0x00, 0x01, 0x2c}, msg.Marshal())
	})

	t.Run("unmarshal round trips marshal", func(t *testing.T) {
		in := DatapointMessage{TransactionID: 1, Datapoint: 7, DataType: dp.TypeBool, Data: []byte{0x01}}

		out, err := unmarshalDatapointMessage(in.Marshal())
		assert.NoError(t, err)
		assert.Equal(t, in, out)
	})

	t.Run("unmarshal rejects truncated data", func(t *testing.T) {
		_, err := unmarshalDatapointMessage([]byte{0x00, 0x01, 0x03, 0x02, 0x00, 0x04, 0x00})
		assert.ErrorIs(t, err, ErrFrameTooShort)
	})
}

func TestParseFrame(t *testing.T) {
	t.Run("parses a cluster specific frame", func(t *testing.T) {
		f, err := ParseFrame([]byte{0x09, 0x42, 0x01, 0xaa, 0xbb})
		assert.NoError(t, err)
		assert.Equal(t, ReportingCommand, f.Command)
		assert.Equal(t, uint8(0x42), f.Sequence)
		assert.Equal(t, []byte{0xaa, 0xbb}, f.Payload)
	})

	t.Run("skips the manufacturer code when flagged", func(t *testing.T) {
		f, err := ParseFrame([]byte{0x05, 0x02, 0x10, 0x42, 0x01, 0xaa})
		assert.NoError(t, err)
		assert.Equal(t, ReportingCommand, f.Command)
		assert.Equal(t, uint8(0x42), f.Sequence)
		assert.Equal(t, []byte{0xaa}, f.Payload)
	})

	t.Run("rejects global frames", func(t *testing.T) {
		_, err := ParseFrame([]byte{0x00, 0x42, 0x0b, 0x01, 0x00})
		assert.ErrorIs(t, err, ErrNotTuyaFrame)
	})

	t.Run("frame marshal round trips", func(t *testing.T) {
		in := Frame{Command: DatapointCommand, Sequence: 9, Payload: []byte{0x01, 0x02}}

		out, err := ParseFrame(in.Marshal())
		assert.NoError(t, err)
		assert.Equal(t, in, out)
	})
}

func TestAdapterParse(t *testing.T) {
	addr := zigbee.GenerateLocalAdministeredIEEEAddress()
	a := NewAdapter(logwrap.New(discard.Discard()))

	frame := func(f Frame) []byte { return f.Marshal() }

	t.Run("reporting frames become DatapointReported events", func(t *testing.T) {
		msg := DatapointMessage{TransactionID: 5, Datapoint: 1, DataType: dp.TypeBool, Data: []byte{0x01}}

		e, ok := a.Parse(context.Background(), addr, 1, frame(Frame{Command: ReportingCommand, Payload: msg.Marshal()}))
		assert.True(t, ok)
		assert.Equal(t, DatapointReported{Address: addr, Endpoint: 1, Message: msg}, e)
	})

	t.Run("response frames become DatapointResponded events", func(t *testing.T) {
		msg := DatapointMessage{TransactionID: 6, Datapoint: 2, DataType: dp.TypeEnum, Data: []byte{0x02}}

		e, ok := a.Parse(context.Background(), addr, 1, frame(Frame{Command: ResponseCommand, Payload: msg.Marshal()}))
		assert.True(t, ok)
		assert.Equal(t, DatapointResponded{Address: addr, Endpoint: 1, Message: msg}, e)
	})

	t.Run("heartbeat frames carry status value and marker", func(t *testing.T) {
		e, ok := a.Parse(context.Background(), addr, 1, frame(Frame{Command: HeartbeatCommand, Payload: []byte{0x00, 0x64, 0x01}}))
		assert.True(t, ok)
		assert.Equal(t, HeartbeatReceived{Address: addr, Endpoint: 1, Status: 0x00, Value: 0x64, Marker: 0x01}, e)
	})

	t.Run("time sync requests keep the raw payload", func(t *testing.T) {
		e, ok := a.Parse(context.Background(), addr, 1, frame(Frame{Command: TimeSyncCommand, Sequence: 3, Payload: []byte{0x00, 0x08}}))
		assert.True(t, ok)
		assert.Equal(t, TimeSyncRequested{Address: addr, Endpoint: 1, Sequence: 3, Payload: []byte{0x00, 0x08}}, e)
	})

	t.Run("unknown command ids are dropped without error", func(t *testing.T) {
		_, ok := a.Parse(context.Background(), addr, 1, frame(Frame{Command: CommandID(0x6e)}))
		assert.False(t, ok)
	})

	t.Run("truncated datapoint frames are dropped", func(t *testing.T) {
		_, ok := a.Parse(context.Background(), addr, 1, frame(Frame{Command: ReportingCommand, Payload: []byte{0x00, 0x01}}))
		assert.False(t, ok)
	})
}
