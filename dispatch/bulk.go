package dispatch

import (
	"context"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/ztd/dp"
	"time"
)

const (
	// BulkItemSpacing is the floor on the delay between bulk items, keeping
	// slower Tuya MCUs from dropping back to back writes.
	BulkItemSpacing = 150 * time.Millisecond

	bulkItemRetries   = 1
	bulkItemBaseDelay = 200 * time.Millisecond

	// bulkFailureLimit aborts the remainder of a batch once this many
	// consecutive items have failed, on the assumption the radio link is down.
	bulkFailureLimit = 2
)

// BulkItem is one entry of an ordered multi datapoint write.
type BulkItem struct {
	Datapoint uint8
	DataType  dp.DataType
	Data      []byte
}

// BulkResult reports the outcome of one bulk item.
type BulkResult struct {
	Datapoint uint8
	Success   bool
	Err       error
}

// AvailabilityCheck reports whether the owning device is currently believed
// reachable. Bulk sends are refused outright for unavailable devices.
type AvailabilityCheck func() bool

// SendBulk delivers an ordered sequence of datapoint writes with a paced
// inter item delay and a reduced per item retry budget. After two consecutive
// failures the remaining items are marked failed without transmission.
func (d *Dispatcher) SendBulk(ctx context.Context, available AvailabilityCheck, items []BulkItem) ([]BulkResult, error) {
	if available != nil && !available() {
		return nil, ErrUnavailable
	}

	results := make([]BulkResult, 0, len(items))
	consecutiveFailures := 0

	for i, item := range items {
		if consecutiveFailures >= bulkFailureLimit {
			results = append(results, BulkResult{Datapoint: item.Datapoint, Success: false, Err: ErrSkipped})
			continue
		}

		if i > 0 {
			select {
			case <-time.After(BulkItemSpacing):
			case <-ctx.Done():
				results = append(results, BulkResult{Datapoint: item.Datapoint, Success: false, Err: ctx.Err()})
				consecutiveFailures = bulkFailureLimit
				continue
			}
		}

		err := d.Send(ctx, Request{
			Datapoint: item.Datapoint,
			DataType:  item.DataType,
			Data:      item.Data,
			Retries:   bulkItemRetries,
			BaseDelay: bulkItemBaseDelay,
		})

		if err != nil {
			consecutiveFailures++
			d.logger.LogWarn(ctx, "Bulk item failed.", logwrap.Datum("Datapoint", item.Datapoint), logwrap.Err(err))
			results = append(results, BulkResult{Datapoint: item.Datapoint, Success: false, Err: err})
		} else {
			consecutiveFailures = 0
			results = append(results, BulkResult{Datapoint: item.Datapoint, Success: true})
		}
	}

	return results, nil
}
