package ztd

import (
	"context"
	"errors"
	"fmt"
	"github.com/shimmeringbee/da"
	"github.com/shimmeringbee/ztd/cluster"
	"github.com/shimmeringbee/ztd/dispatch"
	"github.com/shimmeringbee/ztd/dp"
)

var (
	// ErrUnknownDevice rejects operations on devices this gateway does not
	// manage.
	ErrUnknownDevice = errors.New("device is not known to this gateway")

	// ErrDatapointNotOwned rejects a write to a datapoint owned by a sibling
	// gang or by nothing at all.
	ErrDatapointNotOwned = errors.New("datapoint is not owned by this device")
)

// DatapointWrite is one entry of a bulk write, carrying the Go value to
// encode.
type DatapointWrite struct {
	Datapoint uint8
	DataType  dp.DataType
	Value     any
}

func (z *ZTD) resolveDevice(d da.Device) (*device, error) {
	addr, ok := d.Identifier().(IEEEAddressWithSubIdentifier)
	if !ok {
		return nil, ErrUnknownDevice
	}

	dev := z.getDevice(addr)
	if dev == nil {
		return nil, ErrUnknownDevice
	}

	return dev, nil
}

// SetDatapoint encodes and dispatches a single datapoint write through the
// node's command dispatcher, applying the device's retry policy. A newer
// write to the same datapoint supersedes one still in flight.
func (z *ZTD) SetDatapoint(ctx context.Context, d da.Device, datapoint uint8, dataType dp.DataType, value any) error {
	dev, err := z.resolveDevice(d)
	if err != nil {
		return err
	}

	if !dev.n.routes.Owns(d, datapoint) {
		return fmt.Errorf("%w: datapoint %d", ErrDatapointNotOwned, datapoint)
	}

	data, err := dp.Encode(dataType, value)
	if err != nil {
		return fmt.Errorf("encode datapoint %d: %w", datapoint, err)
	}

	policy := dev.n.retryPolicy()

	return dev.n.dispatcher.Send(ctx, dispatch.Request{
		Datapoint: datapoint,
		DataType:  dataType,
		Data:      data,
		Retries:   policy.Retries,
		BaseDelay: policy.BaseDelay,
	})
}

// SetDatapoints dispatches an ordered bulk write, such as a scene or
// programme upload. Encoding is validated for every item before anything is
// transmitted, and the bulk is refused while the device is unavailable.
func (z *ZTD) SetDatapoints(ctx context.Context, d da.Device, writes []DatapointWrite) ([]dispatch.BulkResult, error) {
	dev, err := z.resolveDevice(d)
	if err != nil {
		return nil, err
	}

	items := make([]dispatch.BulkItem, 0, len(writes))

	for _, w := range writes {
		if !dev.n.routes.Owns(d, w.Datapoint) {
			return nil, fmt.Errorf("%w: datapoint %d", ErrDatapointNotOwned, w.Datapoint)
		}

		data, err := dp.Encode(w.DataType, w.Value)
		if err != nil {
			return nil, fmt.Errorf("encode datapoint %d: %w", w.Datapoint, err)
		}

		items = append(items, dispatch.BulkItem{Datapoint: w.Datapoint, DataType: w.DataType, Data: data})
	}

	return dev.n.dispatcher.SendBulk(ctx, dev.n.tracker.Available, items)
}

// QueryDatapoints asks the physical node to report the state of all of its
// datapoints.
func (z *ZTD) QueryDatapoints(ctx context.Context, d da.Device) error {
	dev, err := z.resolveDevice(d)
	if err != nil {
		return err
	}

	n := dev.n

	return z.sendFrame(ctx, n, cluster.DataQuery(n.nextTransactionSequence(), n.nextDatapointTransaction()))
}
