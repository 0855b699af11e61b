package coordinator

import (
	"log/slog"
	"slices"
	"sync"
)

// Event types.
const (
	EventDeviceJoined     = "device_joined"
	EventDeviceLeft       = "device_left"
	EventDeviceAnnounce   = "device_announce"
	EventDeviceInterview  = "device_interview"
	EventDeviceCommission = "device_commission"
	EventStateUpdate      = "state_update"
	EventConvertError     = "convert_error"
	EventNetworkState     = "network_state"
	EventPermitJoin       = "permit_join"
)

// Event is a notification about the network or one device. Data depends on
// Type; state updates carry a StateUpdate.
type Event struct {
	Type string `json:"type"`
	// IEEE is the device the event concerns, empty for network events.
	IEEE string `json:"ieee,omitempty"`
	Data any    `json:"data"`
}

// deviceEvent builds an event about one device.
func deviceEvent(typ, ieee string, data any) Event {
	return Event{Type: typ, IEEE: ieee, Data: data}
}

// EventHandler receives events.
type EventHandler func(Event)

// Filter selects events by type and device. Empty fields match anything.
type Filter struct {
	Types []string
	IEEE  string
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Event) bool {
	if len(f.Types) > 0 && !slices.Contains(f.Types, e.Type) {
		return false
	}
	return f.IEEE == "" || f.IEEE == e.IEEE
}

type subscriber struct {
	filter  Filter
	handler EventHandler
}

// EventBus delivers events to subscribers synchronously, in subscription
// order.
type EventBus struct {
	mu     sync.Mutex
	subs   []*subscriber // replaced on change, never mutated in place
	logger *slog.Logger
}

// NewEventBus creates an event bus without subscribers.
func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{logger: logger}
}

// Subscribe registers handler for events passing filter and returns the
// function that removes it.
func (eb *EventBus) Subscribe(filter Filter, handler EventHandler) (unsubscribe func()) {
	s := &subscriber{filter: filter, handler: handler}
	eb.mu.Lock()
	eb.subs = append(slices.Clip(eb.subs), s)
	eb.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			eb.mu.Lock()
			defer eb.mu.Unlock()
			eb.subs = slices.DeleteFunc(slices.Clone(eb.subs), func(o *subscriber) bool { return o == s })
		})
	}
}

// On subscribes to one event type.
func (eb *EventBus) On(eventType string, handler EventHandler) func() {
	return eb.Subscribe(Filter{Types: []string{eventType}}, handler)
}

// OnAll subscribes to every event.
func (eb *EventBus) OnAll(handler EventHandler) func() {
	return eb.Subscribe(Filter{}, handler)
}

// Emit delivers event to each matching subscriber. A panicking handler is
// logged and does not stop delivery to the others.
func (eb *EventBus) Emit(event Event) {
	eb.mu.Lock()
	subs := eb.subs
	eb.mu.Unlock()

	for _, s := range subs {
		if s.filter.Match(event) {
			eb.deliver(s.handler, event)
		}
	}
}

func (eb *EventBus) deliver(h EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error("event handler panic", "type", event.Type, "ieee", event.IEEE, "panic", r)
		}
	}()
	h(event)
}
