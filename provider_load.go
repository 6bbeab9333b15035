package ztd

import (
	"context"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/zigbee"
)

// loadPersistence rebuilds nodes and their virtual devices from the persisted
// product identity, so a restart does not require re-enumerating hardware.
func (z *ZTD) loadPersistence() error {
	ctx, end := z.logger.Segment(z.ctx, "Loading persistence.")
	defer end()

	for _, i := range z.nodeListFromPersistence() {
		z.loadNode(ctx, i)
	}

	return nil
}

func (z *ZTD) loadNode(pctx context.Context, i zigbee.IEEEAddress) {
	ctx, end := z.logger.Segment(pctx, "Loading node data.", logwrap.Datum("node", i.String()))
	defer end()

	n, created := z.createNode(i)
	if !created {
		return
	}

	if !z.loadProduct(n) {
		z.logger.LogWarn(ctx, "Node persisted without product identity, enumerating again.")
		go z.enumerateNode(z.ctx, n)
		return
	}

	profile, found := z.profiles.Match(n.productInput())
	if !found {
		profile = genericProfile()
	}

	if err := z.applyProfile(ctx, n, profile); err != nil {
		z.logger.LogError(ctx, "Failed to apply profile to persisted node.", logwrap.Err(err))
		return
	}

	// Drop device sections the refreshed profile no longer produces.
	for _, id := range z.deviceListFromPersistence(i) {
		if z.getDevice(id) == nil {
			z.logger.LogInfo(ctx, "Removing stale persisted device.", logwrap.Datum("Identifier", id.String()))
			z.sectionRemoveDevice(id)
		}
	}

	n.tracker.Start(z.ctx)
}
