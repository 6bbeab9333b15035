package rules

import (
	"github.com/shimmeringbee/ztd/dispatch"
	"time"
)

// Timeout classes. Sleepy battery devices report rarely and get hours;
// mains powered devices heartbeat often enough for minutes.
const (
	MainsTimeout  = 15 * time.Minute
	SleepyTimeout = 6 * time.Hour
)

// Node global datapoints shared by most Tuya wall switches.
const (
	DatapointPowerOnBehaviour = 14
	DatapointBacklightMode    = 16
)

// DefaultRules is the shipped profile tree for known Tuya models. Host
// integrations may extend or replace it before constructing the engine.
func DefaultRules() []Rule {
	return []Rule{
		{
			Description: "tuya wall switch",
			Filter:      `Product startsWith "TS000"`,
			Settings: Settings{
				Gangs:               1,
				Datapoints:          map[uint8][]uint8{1: {1}},
				GlobalDatapoints:    []uint8{DatapointPowerOnBehaviour, DatapointBacklightMode},
				AvailabilityTimeout: MainsTimeout,
				RetryProfile:        dispatch.ProfileBalanced,
			},
			Children: []Rule{
				{
					Description: "two gang wall switch",
					Filter:      `Product == "TS0002"`,
					Settings:    Settings{Gangs: 2, Datapoints: map[uint8][]uint8{1: {1}, 2: {2}}},
				},
				{
					Description: "three gang wall switch",
					Filter:      `Product == "TS0003"`,
					Settings:    Settings{Gangs: 3, Datapoints: map[uint8][]uint8{1: {1}, 2: {2}, 3: {3}}},
				},
				{
					Description: "four gang wall switch",
					Filter:      `Product == "TS0004"`,
					Settings:    Settings{Gangs: 4, Datapoints: map[uint8][]uint8{1: {1}, 2: {2}, 3: {3}, 4: {4}}},
				},
			},
		},
		{
			Description: "tuya power strip",
			Filter:      `Product == "TS011F"`,
			Settings: Settings{
				Gangs:               4,
				Datapoints:          map[uint8][]uint8{1: {1}, 2: {2}, 3: {3}, 4: {4}},
				GlobalDatapoints:    []uint8{DatapointPowerOnBehaviour},
				AvailabilityTimeout: MainsTimeout,
				RetryProfile:        dispatch.ProfileBalanced,
			},
		},
		{
			Description: "tuya mcu device",
			Filter:      `Product == "TS0601"`,
			Settings: Settings{
				Gangs:               1,
				Datapoints:          map[uint8][]uint8{1: {1}},
				AvailabilityTimeout: SleepyTimeout,
				RetryProfile:        dispatch.ProfileOff,
			},
			Children: []Rule{
				{
					Description: "tuya siren",
					Filter:      `Manufacturer startsWith "_TZE200_t1blo2bj"`,
					Settings: Settings{
						Datapoints:          map[uint8][]uint8{1: {13, 5, 15}},
						AvailabilityTimeout: MainsTimeout,
						RetryProfile:        dispatch.ProfileMax,
					},
				},
				{
					Description: "tuya climate sensor",
					Filter:      `Manufacturer startsWith "_TZE200_bjawzodf"`,
					Settings: Settings{
						Datapoints: map[uint8][]uint8{1: {1, 2, 4}},
					},
				},
			},
		},
	}
}
