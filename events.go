package ztd

import (
	"context"
	"github.com/shimmeringbee/da"
	"github.com/shimmeringbee/ztd/dp"
)

// DeviceAvailable is sent when a device transitions to reachable.
type DeviceAvailable struct {
	Device da.Device
	Reason string
}

// DeviceUnavailable is sent when a device transitions to unreachable.
type DeviceUnavailable struct {
	Device da.Device
	Reason string
}

// DatapointUpdate is sent when a device reports a datapoint value, decoded
// to its Go representation.
type DatapointUpdate struct {
	Device    da.Device
	Datapoint uint8
	DataType  dp.DataType
	Value     any
}

func (z *ZTD) sendEvent(e any) {
	select {
	case z.events <- e:
	default:
		z.logger.LogWarn(z.ctx, "Event channel buffer full, dropping event.")
	}
}

func (z *ZTD) ReadEvent(ctx context.Context) (any, error) {
	select {
	case e := <-z.events:
		return e, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
