package rules

import (
	"github.com/shimmeringbee/ztd/dispatch"
	"github.com/stretchr/testify/assert"
	"testing"
	"time"
)

func TestNewEngine(t *testing.T) {
	t.Run("rejects invalid filter expressions", func(t *testing.T) {
		_, err := NewEngine([]Rule{{Description: "broken", Filter: `Product ==`}})
		assert.Error(t, err)
	})

	t.Run("rejects invalid filters in children", func(t *testing.T) {
		_, err := NewEngine([]Rule{{
			Description: "parent",
			Filter:      `true`,
			Children:    []Rule{{Description: "broken child", Filter: `NoSuchField == 1`}},
		}})
		assert.Error(t, err)
	})
}

func TestEngineMatch(t *testing.T) {
	engine, err := NewEngine(DefaultRules())
	assert.NoError(t, err)

	t.Run("matches a root rule", func(t *testing.T) {
		p, ok := engine.Match(Input{Manufacturer: "_TZ3000_abcdefgh", Product: "TS0001"})
		assert.True(t, ok)
		assert.Equal(t, "tuya wall switch", p.Description)
		assert.Equal(t, 1, p.Gangs)
		assert.Equal(t, dispatch.ProfileBalanced, p.RetryProfile)
	})

	t.Run("a child refines its parent and inherits unset settings", func(t *testing.T) {
		p, ok := engine.Match(Input{Manufacturer: "_TZ3000_abcdefgh", Product: "TS0004"})
		assert.True(t, ok)
		assert.Equal(t, "four gang wall switch", p.Description)
		assert.Equal(t, 4, p.Gangs)
		assert.Equal(t, map[uint8][]uint8{1: {1}, 2: {2}, 3: {3}, 4: {4}}, p.Datapoints)

		// Inherited from the parent rule.
		assert.Equal(t, MainsTimeout, p.AvailabilityTimeout)
		assert.Equal(t, []uint8{DatapointPowerOnBehaviour, DatapointBacklightMode}, p.GlobalDatapoints)
		assert.Equal(t, dispatch.ProfileBalanced, p.RetryProfile)
	})

	t.Run("a child can force acknowledgement off and inherits the grouping token", func(t *testing.T) {
		on := true
		off := false

		engine, err := NewEngine([]Rule{{
			Description: "acked family",
			Filter:      `true`,
			Settings:    Settings{Gangs: 1, UseAPSAck: &on, GroupingToken: "family"},
			Children: []Rule{{
				Description: "quirky member",
				Filter:      `Product == "QK0001"`,
				Settings:    Settings{UseAPSAck: &off},
			}},
		}})
		assert.NoError(t, err)

		p, ok := engine.Match(Input{Product: "QK0001"})
		assert.True(t, ok)
		assert.False(t, p.UseAPSAck)
		assert.Equal(t, "family", p.GroupingToken)

		p, ok = engine.Match(Input{Product: "other"})
		assert.True(t, ok)
		assert.True(t, p.UseAPSAck)
	})

	t.Run("the first matching root rule wins", func(t *testing.T) {
		engine, err := NewEngine([]Rule{
			{Description: "first", Filter: `true`, Settings: Settings{Gangs: 1}},
			{Description: "second", Filter: `true`, Settings: Settings{Gangs: 2}},
		})
		assert.NoError(t, err)

		p, ok := engine.Match(Input{})
		assert.True(t, ok)
		assert.Equal(t, "first", p.Description)
	})

	t.Run("a sleepy sensor resolves a long timeout", func(t *testing.T) {
		p, ok := engine.Match(Input{Manufacturer: "_TZE200_whkgqxse", Product: "TS0601"})
		assert.True(t, ok)
		assert.Equal(t, "tuya mcu device", p.Description)
		assert.Equal(t, 6*time.Hour, p.AvailabilityTimeout)
		assert.Equal(t, dispatch.ProfileOff, p.RetryProfile)
	})

	t.Run("a siren child overrides its parent's timeout class", func(t *testing.T) {
		p, ok := engine.Match(Input{Manufacturer: "_TZE200_t1blo2bj", Product: "TS0601"})
		assert.True(t, ok)
		assert.Equal(t, "tuya siren", p.Description)
		assert.Equal(t, MainsTimeout, p.AvailabilityTimeout)
		assert.Equal(t, dispatch.ProfileMax, p.RetryProfile)
	})

	t.Run("unknown products do not match", func(t *testing.T) {
		_, ok := engine.Match(Input{Product: "LUMI-SENSOR"})
		assert.False(t, ok)
	})
}
