package ztd

import (
	"context"
	"fmt"
	"github.com/shimmeringbee/da"
	"github.com/shimmeringbee/ztd/dispatch"
	"time"
)

const (
	// HealthMonitoringEnabledKey gates the availability watchdog for the
	// device's node.
	HealthMonitoringEnabledKey = "health_monitoring_enabled"

	// RetryStageKey selects the retry policy for outbound commands: "off",
	// "balanced" or "max".
	RetryStageKey = "retry_stage"

	// DebounceDelayKey overrides the suppression window for redundant
	// writes, in milliseconds.
	DebounceDelayKey = "debounce_delay_ms"

	maxDebounceDelay = 5 * time.Second
)

// ApplySettings validates and applies the recognised per device settings.
// Every value is validated before any is applied, so a bad settings change is
// rejected synchronously and leaves the device untouched. Unrecognised keys
// are ignored. Node wide settings reached through a sub device apply to the
// shared node resources.
func (z *ZTD) ApplySettings(ctx context.Context, d da.Device, settings map[string]any) error {
	dev, err := z.resolveDevice(d)
	if err != nil {
		return err
	}

	var apply []func()

	for k, v := range settings {
		switch k {
		case HealthMonitoringEnabledKey:
			enabled, ok := v.(bool)
			if !ok {
				return fmt.Errorf("setting %q: expected bool, got %T", k, v)
			}

			apply = append(apply, func() { dev.n.tracker.SetEnabled(ctx, enabled) })
		case RetryStageKey:
			stage, ok := v.(string)
			if !ok {
				return fmt.Errorf("setting %q: expected string, got %T", k, v)
			}

			if err := dispatch.ValidateProfile(dispatch.Profile(stage)); err != nil {
				return fmt.Errorf("setting %q: %w", k, err)
			}

			apply = append(apply, func() { dev.n.setRetryProfile(dispatch.Profile(stage)) })
		case DebounceDelayKey:
			ms, ok := settingInt(v)
			if !ok {
				return fmt.Errorf("setting %q: expected integer, got %T", k, v)
			}

			window := time.Duration(ms) * time.Millisecond
			if window < 0 || window > maxDebounceDelay {
				return fmt.Errorf("setting %q: %dms out of range [0, %s]", k, ms, maxDebounceDelay)
			}

			apply = append(apply, func() { dev.n.dispatcher.SetDebounceWindow(window) })
		}
	}

	for _, f := range apply {
		f()
	}

	return nil
}

func settingInt(v any) (int64, bool) {
	switch i := v.(type) {
	case int:
		return int64(i), true
	case int64:
		return i, true
	case float64:
		return int64(i), true
	default:
		return 0, false
	}
}
