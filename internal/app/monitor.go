package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/nvxd/internal/derive"
	"github.com/dokzlo13/nvxd/internal/eventbus"
)

// DeviceState is the availability of the device as seen by the poller.
type DeviceState string

const (
	DeviceUnknown DeviceState = "unknown"
	DeviceOnline  DeviceState = "online"
	DeviceOffline DeviceState = "offline"
)

// deviceMonitor logs availability and identity changes of the device once,
// instead of on every poll cycle.
type deviceMonitor struct {
	deviceID string

	mu       sync.Mutex
	state    DeviceState
	model    string
	mode     string
	firmware string
	failures int
}

func newDeviceMonitor(deviceID string) *deviceMonitor {
	return &deviceMonitor{deviceID: deviceID, state: DeviceUnknown}
}

func (m *deviceMonitor) attach(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.EventTypeView, m.handleView)
	bus.Subscribe(eventbus.EventTypePollFailed, m.handlePollFailed)
}

func (m *deviceMonitor) handleView(e eventbus.Event) {
	if reason, _ := e.Data["reason"].(string); reason != "poll" {
		return
	}
	view, ok := e.Data["view"].(derive.View)
	if !ok {
		return
	}
	model := view.Metrics[derive.PropModel]
	mode := view.Metrics[derive.PropDeviceMode]
	firmware := view.Metrics["FirmwareVersion"]

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.state != DeviceOnline:
		log.Info().
			Str("device", m.deviceID).
			Str("model", model).
			Str("mode", mode).
			Str("firmware", firmware).
			Int("failed_cycles", m.failures).
			Msg("Device online")
	case model != m.model || mode != m.mode || firmware != m.firmware:
		log.Info().
			Str("device", m.deviceID).
			Str("model", model).
			Str("mode", mode).
			Str("firmware", firmware).
			Str("previous_mode", m.mode).
			Str("previous_firmware", m.firmware).
			Msg("Device identity changed")
	}
	m.state = DeviceOnline
	m.model, m.mode, m.firmware = model, mode, firmware
	m.failures = 0
}

func (m *deviceMonitor) handlePollFailed(e eventbus.Event) {
	reason, _ := e.Data["error"].(string)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.failures++
	if m.state == DeviceOffline {
		return
	}
	log.Warn().Str("device", m.deviceID).Str("error", reason).Msg("Device offline")
	m.state = DeviceOffline
}

// State returns the current availability and the consecutive failed cycles.
func (m *deviceMonitor) State() (DeviceState, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.failures
}
