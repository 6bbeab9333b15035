package cluster

import (
	"errors"
	"fmt"
	"github.com/shimmeringbee/zigbee"
	"github.com/shimmeringbee/ztd/dp"
)

// ClusterID is the Tuya proprietary cluster all datapoint traffic flows over.
const ClusterID = zigbee.ClusterID(0xef00)

// CommandID enumerates the commands of the Tuya proprietary cluster.
type CommandID uint8

const (
	DatapointCommand              CommandID = 0x00
	ReportingCommand              CommandID = 0x01
	ResponseCommand               CommandID = 0x02
	DataQueryCommand              CommandID = 0x03
	ReportingConfigurationCommand CommandID = 0x06
	HeartbeatCommand              CommandID = 0x11
	TimeSyncCommand               CommandID = 0x24
)

func (c CommandID) String() string {
	switch c {
	case DatapointCommand:
		return "Datapoint"
	case ReportingCommand:
		return "Reporting"
	case ResponseCommand:
		return "Response"
	case DataQueryCommand:
		return "DataQuery"
	case ReportingConfigurationCommand:
		return "ReportingConfiguration"
	case HeartbeatCommand:
		return "Heartbeat"
	case TimeSyncCommand:
		return "TimeSync"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", uint8(c))
	}
}

var (
	ErrUnknownCommand = errors.New("unknown tuya cluster command")
	ErrFrameTooShort  = errors.New("tuya cluster frame too short")
	ErrNotTuyaFrame   = errors.New("not a tuya cluster-specific frame")
)

// DatapointMessage is the payload shared by the datapoint, reporting,
// response and reportingConfiguration commands. The length field on the wire
// is big endian, unlike the little endian ZCL envelope around it.
type DatapointMessage struct {
	Status        uint8
	TransactionID uint8
	Datapoint     uint8
	DataType      dp.DataType
	Data          []byte
}

func (m DatapointMessage) Marshal() []byte {
	out := make([]byte, 0, 6+len(m.Data))
	out = append(out, m.Status, m.TransactionID, m.Datapoint, uint8(m.DataType))
	out = append(out, uint8(len(m.Data)>>8), uint8(len(m.Data)))
	out = append(out, m.Data...)

	return out
}

func unmarshalDatapointMessage(data []byte) (DatapointMessage, error) {
	if len(data) < 6 {
		return DatapointMessage{}, fmt.Errorf("%w: datapoint payload wants at least 6 bytes, got %d", ErrFrameTooShort, len(data))
	}

	length := int(data[4])<<8 | int(data[5])
	if len(data) < 6+length {
		return DatapointMessage{}, fmt.Errorf("%w: datapoint payload declares %d data bytes, %d present", ErrFrameTooShort, length, len(data)-6)
	}

	payload := make([]byte, length)
	copy(payload, data[6:6+length])

	return DatapointMessage{
		Status:        data[0],
		TransactionID: data[1],
		Datapoint:     data[2],
		DataType:      dp.DataType(data[3]),
		Data:          payload,
	}, nil
}

// ZCL envelope handling. Tuya commands are cluster-specific local commands,
// little endian framing per ZCL, optionally carrying a manufacturer code.
const (
	frameTypeMask          = 0b00000011
	frameTypeLocal         = 0b00000001
	frameManufacturerFlag  = 0b00000100
	frameDirectionToClient = 0b00001000
	frameDisableDefaultRsp = 0b00010000
)

// Frame is a Tuya cluster command with its ZCL envelope stripped.
type Frame struct {
	Command  CommandID
	Sequence uint8
	Payload  []byte
}

// ParseFrame extracts the Tuya command from a raw ZCL application payload.
// Global commands (default responses, attribute reports) on the cluster are
// rejected with ErrNotTuyaFrame so callers can ignore them.
func ParseFrame(data []byte) (Frame, error) {
	if len(data) < 3 {
		return Frame{}, fmt.Errorf("%w: zcl envelope wants at least 3 bytes, got %d", ErrFrameTooShort, len(data))
	}

	control := data[0]
	if control&frameTypeMask != frameTypeLocal {
		return Frame{}, ErrNotTuyaFrame
	}

	offset := 1
	if control&frameManufacturerFlag != 0 {
		offset += 2

		if len(data) < offset+2 {
			return Frame{}, fmt.Errorf("%w: manufacturer envelope truncated", ErrFrameTooShort)
		}
	}

	payload := make([]byte, len(data)-offset-2)
	copy(payload, data[offset+2:])

	return Frame{
		Command:  CommandID(data[offset+1]),
		Sequence: data[offset],
		Payload:  payload,
	}, nil
}

// Marshal packs the frame into a ZCL application payload, client to server
// with the default response suppressed.
func (f Frame) Marshal() []byte {
	out := make([]byte, 0, 3+len(f.Payload))
	out = append(out, frameTypeLocal|frameDisableDefaultRsp, f.Sequence, uint8(f.Command))
	out = append(out, f.Payload...)

	return out
}

// ApplicationMessage wraps a marshalled frame for transmission on the Tuya
// cluster between the given endpoints.
func ApplicationMessage(source zigbee.Endpoint, dest zigbee.Endpoint, f Frame) zigbee.ApplicationMessage {
	return zigbee.ApplicationMessage{
		ClusterID:           ClusterID,
		SourceEndpoint:      source,
		DestinationEndpoint: dest,
		Data:                f.Marshal(),
	}
}
