package cluster

import (
	"github.com/shimmeringbee/zcl"
	"github.com/shimmeringbee/ztd/dp"
	"time"
)

// MagicAttributeIDs is the Basic cluster attribute set read on join to switch
// Tuya devices into datapoint reporting mode. The read itself matters more
// than the values returned.
var MagicAttributeIDs = []zcl.AttributeID{0x0004, 0x0000, 0x0001, 0x0005, 0x0007, 0xfffe}

// TimeSyncResponse builds the payload answering a time request. The request
// prefix selects the shape: 0x00,0x06, 0x00,0x00 or an absent payload asks
// for an eight byte reply, anything else (e.g. 0x00,0x08) a ten byte reply
// prefixed 0x00,0x08. Both carry UTC then local Unix seconds, big endian;
// the local offset is taken from at's zone at call time so DST shifts are
// honoured.
func TimeSyncResponse(request []byte, at time.Time) []byte {
	utc := uint32(at.Unix())

	_, offset := at.Zone()
	local := uint32(at.Unix() + int64(offset))

	var out []byte

	eightByte := len(request) < 2 || (request[0] == 0x00 && (request[1] == 0x00 || request[1] == 0x06))
	if !eightByte {
		out = append(out, 0x00, 0x08)
	}

	out = append(out, byte(utc>>24), byte(utc>>16), byte(utc>>8), byte(utc))
	out = append(out, byte(local>>24), byte(local>>16), byte(local>>8), byte(local))

	return out
}

// DatapointWrite builds the frame for an outbound datapoint command.
func DatapointWrite(seq uint8, transid uint8, datapoint uint8, dataType dp.DataType, data []byte) Frame {
	msg := DatapointMessage{
		TransactionID: transid,
		Datapoint:     datapoint,
		DataType:      dataType,
		Data:          data,
	}

	return Frame{Command: DatapointCommand, Sequence: seq, Payload: msg.Marshal()}
}

// DataQuery builds the frame requesting a full datapoint dump.
func DataQuery(seq uint8, transid uint8) Frame {
	return Frame{Command: DataQueryCommand, Sequence: seq, Payload: []byte{transid}}
}

// HeartbeatAck builds the frame acknowledging a keepalive, echoing the
// received status, value and marker bytes.
func HeartbeatAck(seq uint8, status uint8, value uint8, marker uint8) Frame {
	return Frame{Command: HeartbeatCommand, Sequence: seq, Payload: []byte{status, value, marker}}
}

// TimeSync builds the frame answering a time request.
func TimeSync(seq uint8, request []byte, at time.Time) Frame {
	return Frame{Command: TimeSyncCommand, Sequence: seq, Payload: TimeSyncResponse(request, at)}
}
