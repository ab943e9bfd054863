// Package mqtt mirrors adapter events onto an MQTT broker and optionally
// accepts control requests from it.
package mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/nvxd/internal/adapter"
	"github.com/dokzlo13/nvxd/internal/config"
	"github.com/dokzlo13/nvxd/internal/eventbus"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 1000 // milliseconds
	keepAlive         = 60 * time.Second
	controlTimeout    = 30 * time.Second

	statusOnline  = "online"
	statusOffline = "offline"
)

// ErrConnectionFailed is returned when the broker cannot be reached.
var ErrConnectionFailed = errors.New("mqtt: connection failed")

// Controller applies control requests received from the broker.
type Controller interface {
	ApplyBatch(ctx context.Context, reqs []adapter.ControlRequest) error
}

// Topics builds the topic names of one device.
type Topics struct {
	Prefix   string
	DeviceID string
}

func (t Topics) base() string { return t.Prefix + "/" + t.DeviceID }

// Status carries the retained online/offline marker and the LWT.
func (t Topics) Status() string { return t.base() + "/status" }

// View carries the retained latest view.
func (t Topics) View() string { return t.base() + "/view" }

// Events carries poll and control outcomes.
func (t Topics) Events() string { return t.base() + "/events" }

// Control is subscribed to when remote control is enabled.
func (t Topics) Control() string { return t.base() + "/control" }

// Publisher forwards bus events to MQTT.
type Publisher struct {
	client     pahomqtt.Client
	cfg        config.MQTTConfig
	topics     Topics
	controller Controller
	ctx        context.Context
}

// Connect dials the broker. controller may be nil, in which case the control
// topic is not subscribed even if cfg.Controls is set.
func Connect(ctx context.Context, cfg config.MQTTConfig, deviceID string, controller Controller) (*Publisher, error) {
	p := &Publisher{
		cfg:        cfg,
		topics:     Topics{Prefix: cfg.TopicPrefix, DeviceID: deviceID},
		controller: controller,
		ctx:        ctx,
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)
	opts.SetWill(p.topics.Status(), statusOffline, cfg.QoS, true)

	// Runs on every (re)connect, so the subscription survives broker restarts.
	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		c.Publish(p.topics.Status(), cfg.QoS, true, statusOnline)
		if p.controlsEnabled() {
			c.Subscribe(p.topics.Control(), cfg.QoS, p.handleControl)
		}
		log.Info().Str("broker", cfg.Broker).Str("topic", p.topics.base()).Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", cfg.Broker).Msg("MQTT connection lost")
	})

	p.client = pahomqtt.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return p, nil
}

func (p *Publisher) controlsEnabled() bool {
	return p.cfg.Controls && p.controller != nil
}

// Attach subscribes the publisher to the bus
func (p *Publisher) Attach(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.EventTypeView, p.handleView)
	for _, t := range []eventbus.EventType{
		eventbus.EventTypePollFailed,
		eventbus.EventTypeControlApplied,
		eventbus.EventTypeControlFailed,
	} {
		bus.Subscribe(t, p.handleEvent)
	}
}

func (p *Publisher) handleView(e eventbus.Event) {
	payload, err := viewPayload(e)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode view for MQTT")
		return
	}
	p.publish(p.topics.View(), true, payload)
}

func (p *Publisher) handleEvent(e eventbus.Event) {
	payload, err := eventPayload(e)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(e.Type)).Msg("Failed to encode event for MQTT")
		return
	}
	p.publish(p.topics.Events(), false, payload)
}

func (p *Publisher) publish(topic string, retained bool, payload []byte) {
	token := p.client.Publish(topic, p.cfg.QoS, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		log.Warn().Str("topic", topic).Msg("MQTT publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("MQTT publish failed")
	}
}

func (p *Publisher) handleControl(_ pahomqtt.Client, msg pahomqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("topic", msg.Topic()).Msg("MQTT control handler panic recovered")
		}
	}()

	reqs, err := decodeControls(msg.Payload())
	if err != nil {
		log.Warn().Err(err).Str("topic", msg.Topic()).Msg("Ignoring malformed control message")
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, controlTimeout)
	defer cancel()
	if err := p.controller.ApplyBatch(ctx, reqs); err != nil {
		// Failures are already published as control_failed events.
		log.Debug().Err(err).Int("requests", len(reqs)).Msg("MQTT control batch finished with errors")
	}
}

// Close publishes the offline marker and disconnects.
func (p *Publisher) Close() {
	if p.client == nil {
		return
	}
	if p.client.IsConnected() {
		p.client.Publish(p.topics.Status(), p.cfg.QoS, true, statusOffline).WaitTimeout(publishTimeout)
	}
	p.client.Disconnect(disconnectQuiesce)
}

type viewMessage struct {
	DeviceID string    `json:"device_id"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
	View     any       `json:"view"`
}

func viewPayload(e eventbus.Event) ([]byte, error) {
	view, ok := e.Data["view"]
	if !ok {
		return nil, errors.New("view event without view")
	}
	msg := viewMessage{View: view}
	msg.DeviceID, _ = e.Data["device_id"].(string)
	msg.Reason, _ = e.Data["reason"].(string)
	msg.At, _ = e.Data["at"].(time.Time)
	return json.Marshal(msg)
}

func eventPayload(e eventbus.Event) ([]byte, error) {
	out := make(map[string]any, len(e.Data)+1)
	for k, v := range e.Data {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		out[k] = v
	}
	out["type"] = string(e.Type)
	return json.Marshal(out)
}

// decodeControls accepts a single request object or a list of them.
func decodeControls(payload []byte) ([]adapter.ControlRequest, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, errors.New("empty payload")
	}
	if payload[0] == '[' {
		var reqs []adapter.ControlRequest
		if err := json.Unmarshal(payload, &reqs); err != nil {
			return nil, err
		}
		if len(reqs) == 0 {
			return nil, adapter.ErrEmptyBatch
		}
		return reqs, nil
	}
	var req adapter.ControlRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}
	if req.Property == "" {
		return nil, errors.New("property is required")
	}
	return []adapter.ControlRequest{req}, nil
}
