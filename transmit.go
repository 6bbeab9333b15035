package ztd

import (
	"context"
	"fmt"
	"github.com/shimmeringbee/da"
	"github.com/shimmeringbee/ztd/availability"
	"github.com/shimmeringbee/ztd/cluster"
	"github.com/shimmeringbee/ztd/dispatch"
	"github.com/shimmeringbee/ztd/dp"
)

func (z *ZTD) transmitFuncForNode(n *node) dispatch.TransmitFunc {
	return func(ctx context.Context, datapoint uint8, dataType dp.DataType, data []byte) error {
		f := cluster.DatapointWrite(n.nextTransactionSequence(), n.nextDatapointTransaction(), datapoint, dataType, data)
		return z.sendFrame(ctx, n, f)
	}
}

func (z *ZTD) sendFrame(ctx context.Context, n *node, f cluster.Frame) error {
	msg := cluster.ApplicationMessage(DefaultGatewayHomeAutomationEndpoint, n.endpoint, f)

	if err := z.sender.SendApplicationMessageToNode(ctx, n.address, msg, n.requiresAPSAck()); err != nil {
		return fmt.Errorf("send to %s: %w", n.address, err)
	}

	return nil
}

// SetAvailable applies an availability transition to one virtual device,
// emitting an event only when the state actually changes.
func (z *ZTD) SetAvailable(ctx context.Context, d da.Device, available bool, reason string) error {
	addr, ok := d.Identifier().(IEEEAddressWithSubIdentifier)
	if !ok {
		return fmt.Errorf("device identifier is not managed by this gateway: %s", d.Identifier())
	}

	dev := z.getDevice(addr)
	if dev == nil {
		return fmt.Errorf("unknown device: %s", addr)
	}

	if dev.setAvailable(available) {
		if available {
			z.sendEvent(DeviceAvailable{Device: d, Reason: reason})
		} else {
			z.sendEvent(DeviceUnavailable{Device: d, Reason: reason})
		}
	}

	return nil
}

var _ availability.Sink = (*ZTD)(nil)
