//go:build !no_mqtt

// Package mqtt bridges device state to MQTT with Home Assistant discovery
// derived from device definitions.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"zigbee-capability/internal/converter"
	"zigbee-capability/internal/coordinator"
	"zigbee-capability/internal/definition"
	"zigbee-capability/internal/store"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// Devices is the device manager surface the bridge needs.
type Devices interface {
	ListDevices() ([]*store.Device, error)
	GetDevice(ieee string) (*store.Device, error)
	Definition(ieee string) (*definition.Definition, error)
	SetState(ctx context.Context, ieee string, values map[string]any) (converter.State, error)
	Get(ctx context.Context, ieee, key string) error
	State(ieee string) (map[string]any, error)
}

var _ Devices = (*coordinator.DeviceManager)(nil)

// Bridge connects the Zigbee coordinator to MQTT with HA autodiscovery.
type Bridge struct {
	client  pahomqtt.Client
	devices Devices
	events  *coordinator.EventBus
	prefix  string
	logger  *slog.Logger
	unsub   func()
	ctx     context.Context
	cancel  context.CancelFunc

	// Discovery topics published per IEEE, cleared when a device leaves.
	mu         sync.Mutex
	discovered map[string][]string
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(coord *coordinator.Coordinator, cfg Config, logger *slog.Logger) (*Bridge, error) {
	b := newBridge(coord.Devices(), coord.Events(), cfg.TopicPrefix, logger)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "zigbee-capability"
	}
	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(cfg.TopicPrefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.publishBridgeState("online")
			b.publishAllDiscovery()
			b.subscribeCommands()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	// The client is set before connecting: the on-connect handler publishes
	// through it.
	b.client = pahomqtt.NewClient(opts)
	token := b.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return b, nil
}

func newBridge(devices Devices, events *coordinator.EventBus, prefix string, logger *slog.Logger) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		devices:    devices,
		events:     events,
		prefix:     prefix,
		logger:     logger.With("component", "mqtt"),
		ctx:        ctx,
		cancel:     cancel,
		discovered: make(map[string][]string),
	}
}

// Start subscribes to coordinator events and begins MQTT publishing.
func (b *Bridge) Start() {
	b.unsub = b.events.Subscribe(bridgeEvents, b.handleEvent)
	b.logger.Info("MQTT bridge started", "prefix", b.prefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	b.cancel()
	if b.unsub != nil {
		b.unsub()
	}
	b.publishBridgeState("offline")
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

// bridgeEvents are the events mirrored to the broker.
var bridgeEvents = coordinator.Filter{Types: []string{
	coordinator.EventStateUpdate,
	coordinator.EventDeviceInterview,
	coordinator.EventDeviceLeft,
}}

func (b *Bridge) handleEvent(event coordinator.Event) {
	if event.IEEE == "" {
		return
	}
	switch event.Type {
	case coordinator.EventStateUpdate:
		if upd, ok := event.Data.(coordinator.StateUpdate); ok {
			b.publishState(upd.IEEE, upd.State)
		}
	case coordinator.EventDeviceInterview:
		if dev, err := b.devices.GetDevice(event.IEEE); err == nil {
			b.publishDeviceDiscovery(dev)
		}
	case coordinator.EventDeviceLeft:
		b.handleDeviceLeft(event.IEEE)
	}
}

// publishState publishes the full device state, plus endpoint views for
// endpoint-scoped lights.
func (b *Bridge) publishState(ieee string, state map[string]any) {
	dev, err := b.devices.GetDevice(ieee)
	if err != nil {
		return
	}
	out := make(map[string]any, len(state)+1)
	for k, v := range state {
		out[k] = v
	}
	if !dev.LastSeen.IsZero() {
		out["last_seen"] = dev.LastSeen.Format(time.RFC3339)
	}
	topic := b.prefix + "/" + deviceTopicName(dev)
	b.publish(topic, mustJSON(out), true)

	def, err := b.devices.Definition(ieee)
	if err != nil {
		return
	}
	for _, ep := range endpointLights(def) {
		if view := endpointView(state, ep); len(view) > 0 {
			b.publish(topic+"/"+ep, mustJSON(view), true)
		}
	}
}

func (b *Bridge) handleDeviceLeft(ieee string) {
	b.mu.Lock()
	topics := b.discovered[ieee]
	delete(b.discovered, ieee)
	b.mu.Unlock()

	for _, msg := range removeDiscovery(topics) {
		b.publish(msg.Topic, msg.Payload, true)
	}
}

func (b *Bridge) publishBridgeState(state string) {
	topic := b.prefix + "/bridge/state"
	b.publish(topic, []byte(state), true)
}

func (b *Bridge) publishAllDiscovery() {
	devices, err := b.devices.ListDevices()
	if err != nil {
		b.logger.Error("list devices for discovery", "err", err)
		return
	}
	for _, dev := range devices {
		if dev.Interviewed {
			b.publishDeviceDiscovery(dev)
		}
	}
}

func (b *Bridge) publishDeviceDiscovery(dev *store.Device) {
	def, err := b.devices.Definition(dev.IEEEAddress)
	if err != nil {
		b.logger.Debug("no discovery for device", "ieee", dev.IEEEAddress, "err", err)
		return
	}
	msgs := buildDiscovery(dev, def, b.prefix)
	topics := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		b.publish(msg.Topic, msg.Payload, true)
		topics = append(topics, msg.Topic)
	}
	b.mu.Lock()
	b.discovered[dev.IEEEAddress] = topics
	b.mu.Unlock()
	b.logger.Info("published HA discovery", "ieee", dev.IEEEAddress, "name", deviceDisplayName(dev), "entities", len(msgs))
}

// subscribeCommands subscribes to the wildcard command topics:
//
//	<prefix>/<device>/set            JSON object of keys
//	<prefix>/<device>/set/<key>      raw value for one key
//	<prefix>/<device>/<endpoint>/set JSON object, keys scoped to endpoint
//	<prefix>/<device>/get            JSON object whose keys are read
func (b *Bridge) subscribeCommands() {
	filters := map[string]byte{
		b.prefix + "/+/set":   1,
		b.prefix + "/+/set/+": 1,
		b.prefix + "/+/+/set": 1,
		b.prefix + "/+/get":   1,
	}
	token := b.client.SubscribeMultiple(filters, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.handleMessage(msg.Topic(), msg.Payload())
	})
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT subscribe timeout")
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT subscribe error", "err", err)
		}
	}()
}

// command is a parsed command topic.
type command struct {
	device   string
	endpoint string
	key      string
	get      bool
}

func (b *Bridge) parseTopic(topic string) (command, bool) {
	rest, ok := strings.CutPrefix(topic, b.prefix+"/")
	if !ok {
		return command{}, false
	}
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 2 && parts[1] == "set":
		return command{device: parts[0]}, true
	case len(parts) == 2 && parts[1] == "get":
		return command{device: parts[0], get: true}, true
	case len(parts) == 3 && parts[1] == "set":
		return command{device: parts[0], key: parts[2]}, true
	case len(parts) == 3 && parts[2] == "set":
		return command{device: parts[0], endpoint: parts[1]}, true
	}
	return command{}, false
}

// lookupTopic finds the device published under a topic name.
func (b *Bridge) lookupTopic(name string) (*store.Device, error) {
	devices, err := b.devices.ListDevices()
	if err != nil {
		return nil, err
	}
	for _, dev := range devices {
		if deviceTopicName(dev) == name || strings.EqualFold(dev.IEEEAddress, name) {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("topic %q: %w", name, store.ErrNotFound)
}

func (b *Bridge) handleMessage(topic string, payload []byte) {
	cmd, ok := b.parseTopic(topic)
	if !ok {
		return
	}
	dev, err := b.lookupTopic(cmd.device)
	if err != nil {
		b.logger.Warn("command for unknown device", "topic", topic)
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, 10*time.Second)
	defer cancel()

	values, err := commandValues(cmd, payload)
	if err != nil {
		b.logger.Warn("invalid command payload", "ieee", dev.IEEEAddress, "topic", topic, "err", err)
		return
	}
	if cmd.get {
		b.get(ctx, dev.IEEEAddress, values)
		return
	}
	if _, err := b.devices.SetState(ctx, dev.IEEEAddress, values); err != nil {
		b.logger.Warn("set failed", "ieee", dev.IEEEAddress, "name", deviceDisplayName(dev), "err", err)
	}
}

func (b *Bridge) get(ctx context.Context, ieee string, values map[string]any) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var errs []error
	for _, k := range keys {
		if err := b.devices.Get(ctx, ieee, k); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		b.logger.Warn("get failed", "ieee", ieee, "err", err)
	}
}

// commandValues decodes a command payload into semantic key/value pairs.
func commandValues(cmd command, payload []byte) (map[string]any, error) {
	if cmd.key != "" {
		return map[string]any{cmd.key: rawValue(payload)}, nil
	}
	var values map[string]any
	if err := json.Unmarshal(payload, &values); err != nil {
		return nil, err
	}
	if cmd.endpoint == "" {
		return values, nil
	}
	scoped := make(map[string]any, len(values))
	for k, v := range values {
		scoped[converter.EndpointKey(k, cmd.endpoint)] = v
	}
	return scoped, nil
}

// rawValue decodes a JSON scalar, falling back to the payload as a string
// so plain "ON" works as well as "\"ON\"".
func rawValue(payload []byte) any {
	var v any
	if err := json.Unmarshal(payload, &v); err == nil {
		return v
	}
	return strings.TrimSpace(string(payload))
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
