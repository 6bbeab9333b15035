package cluster

import (
	"context"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/zigbee"
)

// DatapointReported is emitted for device initiated datapoint state, from
// both the reporting command and an unsolicited datapoint command.
type DatapointReported struct {
	Address  zigbee.IEEEAddress
	Endpoint zigbee.Endpoint
	Message  DatapointMessage
}

// DatapointResponded is emitted when a device acknowledges a datapoint write.
type DatapointResponded struct {
	Address  zigbee.IEEEAddress
	Endpoint zigbee.Endpoint
	Message  DatapointMessage
}

// ReportingConfigured is emitted for reportingConfiguration frames.
type ReportingConfigured struct {
	Address  zigbee.IEEEAddress
	Endpoint zigbee.Endpoint
	Message  DatapointMessage
}

// HeartbeatReceived is emitted for the three byte keepalive frame.
type HeartbeatReceived struct {
	Address  zigbee.IEEEAddress
	Endpoint zigbee.Endpoint
	Status   uint8
	Value    uint8
	Marker   uint8
}

// TimeSyncRequested is emitted when a device asks for the current time. The
// raw request payload determines the response shape, see TimeSyncResponse.
type TimeSyncRequested struct {
	Address  zigbee.IEEEAddress
	Endpoint zigbee.Endpoint
	Sequence uint8
	Payload  []byte
}

// DataQueried is emitted for a dataQuery frame, which carries only a
// transaction id.
type DataQueried struct {
	Address       zigbee.IEEEAddress
	Endpoint      zigbee.Endpoint
	TransactionID uint8
}

// Adapter demultiplexes inbound Tuya cluster frames into named events.
type Adapter struct {
	logger logwrap.Logger
}

func NewAdapter(l logwrap.Logger) *Adapter {
	return &Adapter{logger: l}
}

// Parse converts a raw application payload received on the Tuya cluster into
// a typed event. Unknown command ids and malformed frames are logged and
// dropped, returning false; they must never take the dispatch loop down.
func (a *Adapter) Parse(ctx context.Context, addr zigbee.IEEEAddress, endpoint zigbee.Endpoint, data []byte) (any, bool) {
	frame, err := ParseFrame(data)
	if err != nil {
		if err != ErrNotTuyaFrame {
			a.logger.LogWarn(ctx, "Dropping malformed tuya cluster frame.", logwrap.Datum("IEEEAddress", addr.String()), logwrap.Err(err))
		}
		return nil, false
	}

	switch frame.Command {
	case DatapointCommand, ReportingCommand, ResponseCommand, ReportingConfigurationCommand:
		msg, err := unmarshalDatapointMessage(frame.Payload)
		if err != nil {
			a.logger.LogWarn(ctx, "Dropping truncated datapoint frame.", logwrap.Datum("IEEEAddress", addr.String()), logwrap.Datum("Command", frame.Command.String()), logwrap.Err(err))
			return nil, false
		}

		switch frame.Command {
		case ResponseCommand:
			return DatapointResponded{Address: addr, Endpoint: endpoint, Message: msg}, true
		case ReportingConfigurationCommand:
			return ReportingConfigured{Address: addr, Endpoint: endpoint, Message: msg}, true
		default:
			return DatapointReported{Address: addr, Endpoint: endpoint, Message: msg}, true
		}
	case HeartbeatCommand:
		if len(frame.Payload) < 3 {
			a.logger.LogWarn(ctx, "Dropping truncated heartbeat frame.", logwrap.Datum("IEEEAddress", addr.String()))
			return nil, false
		}

		return HeartbeatReceived{Address: addr, Endpoint: endpoint, Status: frame.Payload[0], Value: frame.Payload[1], Marker: frame.Payload[2]}, true
	case TimeSyncCommand:
		return TimeSyncRequested{Address: addr, Endpoint: endpoint, Sequence: frame.Sequence, Payload: frame.Payload}, true
	case DataQueryCommand:
		transid := uint8(0)
		if len(frame.Payload) > 0 {
			transid = frame.Payload[0]
		}

		return DataQueried{Address: addr, Endpoint: endpoint, TransactionID: transid}, true
	default:
		a.logger.LogDebug(ctx, "Ignoring unknown tuya cluster command.", logwrap.Datum("IEEEAddress", addr.String()), logwrap.Datum("Command", uint8(frame.Command)))
		return nil, false
	}
}
