package ztd

import (
	"context"
	"errors"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/zigbee"
	"github.com/shimmeringbee/ztd/cluster"
	"github.com/shimmeringbee/ztd/dp"
	"github.com/shimmeringbee/ztd/routing"
	"time"
)

func (z *ZTD) providerLoop() {
	for {
		event, err := z.provider.ReadEvent(z.ctx)

		if err != nil {
			if errors.Is(err, context.Canceled) {
				z.logger.LogInfo(z.ctx, "Provider loop terminating due to cancelled context.")
			} else {
				z.logger.LogError(z.ctx, "Failed to read event from Zigbee provider.", logwrap.Err(err))
			}
			return
		}

		switch e := event.(type) {
		case zigbee.NodeJoinEvent:
			z.receiveNodeJoinEvent(e)
		case zigbee.NodeLeaveEvent:
			z.receiveNodeLeaveEvent(e)
		case zigbee.NodeIncomingMessageEvent:
			z.receiveNodeIncomingMessageEvent(e)
		}
	}
}

func (z *ZTD) receiveNodeJoinEvent(e zigbee.NodeJoinEvent) {
	z.logger.LogInfo(z.ctx, "Node has joined zigbee network.", logwrap.Datum("IEEEAddress", e.IEEEAddress.String()))

	n, created := z.createNode(e.IEEEAddress)
	if created {
		go z.enumerateNode(z.ctx, n)
	} else {
		// A rejoin of a known node, treat it as activity.
		n.tracker.Pulse(z.ctx, "node rejoined")
	}
}

func (z *ZTD) receiveNodeLeaveEvent(e zigbee.NodeLeaveEvent) {
	z.logger.LogInfo(z.ctx, "Node has left zigbee network.", logwrap.Datum("IEEEAddress", e.IEEEAddress.String()))

	if n := z.getNode(e.IEEEAddress); n != nil {
		for _, d := range z.getDevicesOnNode(n) {
			z.logger.LogInfo(z.ctx, "Remove device upon node leaving zigbee network.", logwrap.Datum("Identifier", d.address.String()))
			z.removeDevice(d.address)
		}

		_ = z.removeNode(e.IEEEAddress)
	} else {
		z.logger.LogWarn(z.ctx, "Received leave message for unknown node from provider.", logwrap.Datum("IEEEAddress", e.IEEEAddress.String()))
	}
}

// receiveNodeIncomingMessageEvent feeds every inbound frame to the node's
// availability tracker, then demultiplexes Tuya cluster traffic.
func (z *ZTD) receiveNodeIncomingMessageEvent(e zigbee.NodeIncomingMessageEvent) {
	n := z.getNode(e.IEEEAddress)
	if n == nil {
		z.logger.LogWarn(z.ctx, "Received message from unknown node.", logwrap.Datum("IEEEAddress", e.IEEEAddress.String()))
		return
	}

	n.tracker.Pulse(z.ctx, "frame received")

	msg := e.ApplicationMessage
	if msg.ClusterID != cluster.ClusterID {
		return
	}

	event, ok := z.adapter.Parse(z.ctx, e.IEEEAddress, msg.SourceEndpoint, msg.Data)
	if !ok {
		return
	}

	switch ev := event.(type) {
	case cluster.DatapointReported:
		n.routes.Dispatch(z.ctx, ev.Message)
	case cluster.DatapointResponded:
		n.routes.Dispatch(z.ctx, ev.Message)
	case cluster.HeartbeatReceived:
		z.logger.LogDebug(z.ctx, "Heartbeat received from node.", logwrap.Datum("IEEEAddress", n.address.String()), logwrap.Datum("Value", ev.Value))
		z.replyToHeartbeat(n, ev)
	case cluster.TimeSyncRequested:
		z.replyToTimeSync(n, ev)
	case cluster.ReportingConfigured:
		z.logger.LogDebug(z.ctx, "Reporting configuration acknowledged by node.", logwrap.Datum("IEEEAddress", n.address.String()))
	case cluster.DataQueried:
		z.logger.LogDebug(z.ctx, "Data query echoed by node.", logwrap.Datum("IEEEAddress", n.address.String()), logwrap.Datum("TransactionID", ev.TransactionID))
	}
}

func (z *ZTD) replyToHeartbeat(n *node, ev cluster.HeartbeatReceived) {
	f := cluster.HeartbeatAck(n.nextTransactionSequence(), ev.Status, ev.Value, ev.Marker)

	if err := z.sendFrame(z.ctx, n, f); err != nil {
		z.logger.LogWarn(z.ctx, "Failed to acknowledge heartbeat.", logwrap.Datum("IEEEAddress", n.address.String()), logwrap.Err(err))
	}
}

func (z *ZTD) replyToTimeSync(n *node, ev cluster.TimeSyncRequested) {
	f := cluster.TimeSync(n.nextTransactionSequence(), ev.Payload, time.Now())

	if err := z.sendFrame(z.ctx, n, f); err != nil {
		z.logger.LogWarn(z.ctx, "Failed to reply to time synchronisation request.", logwrap.Datum("IEEEAddress", n.address.String()), logwrap.Err(err))
	}
}

// datapointHandlerForDevice decodes routed datapoint messages for one device,
// feeds the echo cache so confirmed state debounces redundant writes, and
// publishes the update to the host.
func (z *ZTD) datapointHandlerForDevice(d *device) routing.Handler {
	return func(ctx context.Context, msg cluster.DatapointMessage) {
		value, err := dp.Decode(msg.DataType, msg.Data)
		if err != nil {
			z.logger.LogWarn(ctx, "Dropping undecodable datapoint value.", logwrap.Datum("Identifier", d.address.String()), logwrap.Datum("Datapoint", msg.Datapoint), logwrap.Err(err))
			return
		}

		d.n.dispatcher.NoteApplied(msg.Datapoint, msg.DataType, msg.Data)

		z.sendEvent(DatapointUpdate{
			Device:    d.compose(),
			Datapoint: msg.Datapoint,
			DataType:  msg.DataType,
			Value:     value,
		})
	}
}
