package ztd

import (
	"context"
	"fmt"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/retry"
	"github.com/shimmeringbee/zcl"
	"github.com/shimmeringbee/zigbee"
	"github.com/shimmeringbee/ztd/cluster"
	"github.com/shimmeringbee/ztd/dispatch"
	"github.com/shimmeringbee/ztd/routing"
	"github.com/shimmeringbee/ztd/rules"
)

const (
	manufacturerNameAttribute = zcl.AttributeID(0x0004)
	modelIdentifierAttribute  = zcl.AttributeID(0x0005)
)

// enumerateNode interrogates a freshly joined node for its product identity,
// resolves the matching device profile and builds the virtual devices. Only
// one enumeration runs per node at a time.
func (z *ZTD) enumerateNode(pctx context.Context, n *node) {
	if !n.enumerationSem.TryAcquire(1) {
		z.logger.LogWarn(pctx, "Enumeration already in progress.", logwrap.Datum("IEEEAddress", n.address.String()))
		return
	}
	defer n.enumerationSem.Release(1)

	ctx, end := z.logger.Segment(pctx, "Enumerating node.", logwrap.Datum("IEEEAddress", n.address.String()))
	defer end()

	if err := z.readProductInformation(ctx, n); err != nil {
		z.logger.LogError(ctx, "Failed to read product information from node.", logwrap.Err(err))
		return
	}

	// Tuya MCU devices only report datapoints spontaneously after their
	// magic attributes have been read once.
	if err := z.sendMagicPacket(ctx, n); err != nil {
		z.logger.LogWarn(ctx, "Failed to send reporting activation read to node.", logwrap.Err(err))
	}

	profile, found := z.profiles.Match(n.productInput())
	if !found {
		z.logger.LogWarn(ctx, "No profile matched node, using generic single gang profile.", logwrap.Datum("Manufacturer", n.product.manufacturer), logwrap.Datum("Product", n.product.product))
		profile = genericProfile()
	}

	if err := z.applyProfile(ctx, n, profile); err != nil {
		z.logger.LogError(ctx, "Failed to apply profile to node.", logwrap.Err(err))
		return
	}

	z.persistProduct(n)

	n.tracker.Start(z.ctx)
	z.callbacks.Call(ctx, internalNodeEnumerated{node: n})

	if err := z.sendFrame(ctx, n, cluster.DataQuery(n.nextTransactionSequence(), n.nextDatapointTransaction())); err != nil {
		z.logger.LogWarn(ctx, "Failed to query initial datapoint state.", logwrap.Err(err))
	}
}

func (z *ZTD) readProductInformation(ctx context.Context, n *node) error {
	return retry.Retry(ctx, DefaultNetworkTimeout, DefaultNetworkRetries, func(ctx context.Context) error {
		records, err := z.zclGlobalCommunicator.ReadAttributes(ctx, n.address, n.requiresAPSAck(), zcl.BasicId, zigbee.NoManufacturer, DefaultGatewayHomeAutomationEndpoint, n.endpoint, n.nextTransactionSequence(), []zcl.AttributeID{manufacturerNameAttribute, modelIdentifierAttribute})
		if err != nil {
			return err
		}

		n.m.Lock()
		defer n.m.Unlock()

		for _, record := range records {
			if record.Status != 0 {
				continue
			}

			switch record.Identifier {
			case manufacturerNameAttribute:
				n.product.manufacturer, _ = record.DataTypeValue.Value.(string)
			case modelIdentifierAttribute:
				n.product.product, _ = record.DataTypeValue.Value.(string)
			}
		}

		if n.product.product == "" {
			return fmt.Errorf("node %s returned no model identifier", n.address)
		}

		return nil
	})
}

// sendMagicPacket reads the set of Basic cluster attributes that switches a
// Tuya MCU into actively reporting datapoint state.
func (z *ZTD) sendMagicPacket(ctx context.Context, n *node) error {
	return retry.Retry(ctx, DefaultNetworkTimeout, DefaultNetworkRetries, func(ctx context.Context) error {
		_, err := z.zclGlobalCommunicator.ReadAttributes(ctx, n.address, n.requiresAPSAck(), zcl.BasicId, zigbee.NoManufacturer, DefaultGatewayHomeAutomationEndpoint, n.endpoint, n.nextTransactionSequence(), cluster.MagicAttributeIDs)
		return err
	})
}

// applyProfile creates one virtual device per gang and wires datapoint
// ownership into the node's routing table. The gang 0 device is main and
// additionally owns any node global datapoints.
func (z *ZTD) applyProfile(ctx context.Context, n *node, profile rules.Profile) error {
	n.m.Lock()
	n.profile = profile
	n.useAPSAck = profile.UseAPSAck
	n.m.Unlock()

	n.tracker.SetTimeout(profile.AvailabilityTimeout)

	if profile.DebounceWindow > 0 {
		n.dispatcher.SetDebounceWindow(profile.DebounceWindow)
	}

	gangs := profile.Gangs
	if gangs < 1 {
		gangs = 1
	}

	// Gangs are numbered from one in profiles, sub identifiers from zero.
	for gang := 0; gang < gangs; gang++ {
		d := z.createSpecificDevice(n, uint8(gang))

		d.m.Lock()
		d.gang = uint8(gang)
		d.main = gang == 0
		d.datapoints = append([]uint8(nil), profile.Datapoints[uint8(gang+1)]...)
		if d.main {
			d.datapoints = append(d.datapoints, profile.GlobalDatapoints...)
		}
		datapoints := d.datapoints
		main := d.main
		d.m.Unlock()

		if err := n.routes.Register(routing.Member{
			Device:     d.compose(),
			Datapoints: datapoints,
			Main:       main,
			Handler:    z.datapointHandlerForDevice(d),
		}); err != nil {
			return fmt.Errorf("register gang %d: %w", gang, err)
		}

		z.logger.LogInfo(ctx, "Created virtual device for gang.", logwrap.Datum("Identifier", d.address.String()), logwrap.Datum("Gang", gang), logwrap.Datum("Main", main))
	}

	return nil
}

// genericProfile covers devices without a matching rule: one device owning
// every datapoint, with conservative defaults. Known Tuya MCU firmwares drop
// APS acknowledged frames, so only unprofiled devices request acks.
func genericProfile() rules.Profile {
	return rules.Profile{
		Description:         "generic",
		Gangs:               1,
		AvailabilityTimeout: rules.MainsTimeout,
		RetryProfile:        dispatch.ProfileBalanced,
		UseAPSAck:           true,
	}
}
