package ztd

import (
	"context"
	"github.com/shimmeringbee/callbacks"
	"github.com/shimmeringbee/da"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/discard"
	"github.com/shimmeringbee/persistence"
	"github.com/shimmeringbee/zigbee"
	"github.com/shimmeringbee/ztd/availability"
	"github.com/shimmeringbee/ztd/cluster"
	"github.com/shimmeringbee/ztd/rules"
	"sync"
	"time"
)

const (
	// DefaultGatewayHomeAutomationEndpoint is the local endpoint all traffic
	// originates from.
	DefaultGatewayHomeAutomationEndpoint = zigbee.Endpoint(0x01)

	// DefaultTuyaEndpoint is the remote endpoint Tuya devices expose the
	// proprietary cluster on.
	DefaultTuyaEndpoint = zigbee.Endpoint(0x01)

	DefaultNetworkTimeout = 3000 * time.Millisecond
	DefaultNetworkRetries = 5
)

// ZTD drives Tuya manufactured Zigbee devices behind the device abstraction:
// it speaks the proprietary datapoint cluster, tracks per node availability
// and fans multi gang nodes out into sibling virtual devices.
type ZTD struct {
	provider              zigbee.Provider
	sender                applicationMessageSender
	zclGlobalCommunicator zclGlobalCommunicator

	selfDevice da.BaseDevice

	logger  logwrap.Logger
	section persistence.Section

	ctx       context.Context
	ctxCancel context.CancelFunc

	nodeLock *sync.RWMutex
	node     map[zigbee.IEEEAddress]*node

	adapter   *cluster.Adapter
	profiles  *rules.Engine
	registry  *availability.Registry
	callbacks callbacks.AdderCaller

	events chan any
}

// New constructs the Tuya device layer against a Zigbee provider and a
// persistence section it owns. A nil rule engine selects the shipped default
// profiles.
func New(provider zigbee.Provider, zgc zclGlobalCommunicator, section persistence.Section, profiles *rules.Engine) *ZTD {
	ctx, cancel := context.WithCancel(context.Background())

	if profiles == nil {
		var err error
		if profiles, err = rules.NewEngine(rules.DefaultRules()); err != nil {
			panic("default profile rules failed to compile: " + err.Error())
		}
	}

	z := &ZTD{
		provider:              provider,
		sender:                provider,
		zclGlobalCommunicator: zgc,

		logger:  logwrap.New(discard.Discard()),
		section: section,

		ctx:       ctx,
		ctxCancel: cancel,

		nodeLock: &sync.RWMutex{},
		node:     make(map[zigbee.IEEEAddress]*node),

		profiles:  profiles,
		registry:  availability.NewRegistry(),
		callbacks: callbacks.Create(),

		events: make(chan any, 100),
	}

	z.adapter = cluster.NewAdapter(z.logger)

	return z
}

// Start loads persisted nodes and begins consuming provider events.
func (z *ZTD) Start() error {
	// adapter captures the logger installed between New and Start.
	z.adapter = cluster.NewAdapter(z.logger)

	z.selfDevice = da.BaseDevice{
		DeviceGateway:    z,
		DeviceIdentifier: z.provider.AdapterNode().IEEEAddress,
	}

	if err := z.loadPersistence(); err != nil {
		return err
	}

	go z.providerLoop()

	return nil
}

// Stop halts the provider loop and every node watchdog.
func (z *ZTD) Stop() error {
	z.ctxCancel()

	for _, n := range z.getNodes() {
		n.tracker.Stop()
	}

	return nil
}

func (z *ZTD) Self() da.Device {
	return z.selfDevice
}

func (z *ZTD) Capability(_ da.Capability) interface{} {
	return nil
}

func (z *ZTD) Capabilities() []da.Capability {
	return nil
}

// Devices returns every virtual device currently known.
func (z *ZTD) Devices() []da.Device {
	out := []da.Device{z.selfDevice}

	for _, d := range z.getDevices() {
		out = append(out, d.compose())
	}

	return out
}

var _ da.Gateway = (*ZTD)(nil)
