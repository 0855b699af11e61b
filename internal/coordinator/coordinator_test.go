package coordinator

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIEEE(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    [8]byte
		wantErr bool
	}{
		{"hex string no colons", "00124B001234ABCD", [8]byte{0x00, 0x12, 0x4B, 0x00, 0x12, 0x34, 0xAB, 0xCD}, false},
		{"hex string with colons", "00:12:4B:00:12:34:AB:CD", [8]byte{0x00, 0x12, 0x4B, 0x00, 0x12, 0x34, 0xAB, 0xCD}, false},
		{"all zeros", "0000000000000000", [8]byte{}, false},
		{"too short", "00124B", [8]byte{}, true},
		{"too long", "00124B001234ABCD00", [8]byte{}, true},
		{"invalid hex", "ZZZZZZZZZZZZZZZZ", [8]byte{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIEEE(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatIEEERoundTrip(t *testing.T) {
	addr := [8]byte{0x00, 0x15, 0x8D, 0x00, 0x01, 0x2A, 0x3B, 0x4C}
	s := FormatIEEE(addr)
	assert.Equal(t, "00158D00012A3B4C", s)
	back, err := ParseIEEE(s)
	require.NoError(t, err)
	assert.Equal(t, addr, back)
}

func TestFilterMatch(t *testing.T) {
	joined := deviceEvent(EventDeviceJoined, "00158D00012A3B4C", nil)
	network := Event{Type: EventPermitJoin}

	assert.True(t, Filter{}.Match(joined))
	assert.True(t, Filter{}.Match(network))
	assert.True(t, Filter{Types: []string{EventDeviceLeft, EventDeviceJoined}}.Match(joined))
	assert.False(t, Filter{Types: []string{EventDeviceLeft}}.Match(joined))
	assert.True(t, Filter{IEEE: "00158D00012A3B4C"}.Match(joined))
	assert.False(t, Filter{IEEE: "00158D00012A3B4C"}.Match(network), "network events have no device")
	assert.False(t, Filter{Types: []string{EventDeviceJoined}, IEEE: "00158D00012A3B4D"}.Match(joined))
}

func TestEventBusDeliversInSubscriptionOrder(t *testing.T) {
	eb := NewEventBus(testLogger())
	var got []string
	eb.OnAll(func(Event) { got = append(got, "all") })
	eb.On(EventDeviceJoined, func(Event) { got = append(got, "joined") })
	eb.Subscribe(Filter{IEEE: "A"}, func(Event) { got = append(got, "device") })
	eb.On(EventDeviceLeft, func(Event) { got = append(got, "left") })

	eb.Emit(deviceEvent(EventDeviceJoined, "A", "payload"))
	assert.Equal(t, []string{"all", "joined", "device"}, got)
}

func TestEventBusUnsubscribe(t *testing.T) {
	eb := NewEventBus(testLogger())
	var first, second atomic.Int32
	unsub := eb.On(EventDeviceJoined, func(Event) { first.Add(1) })
	eb.OnAll(func(Event) { second.Add(1) })

	eb.Emit(Event{Type: EventDeviceJoined})
	unsub()
	unsub()
	eb.Emit(Event{Type: EventDeviceJoined})

	assert.Equal(t, int32(1), first.Load())
	assert.Equal(t, int32(2), second.Load(), "removing one subscriber keeps the others")
}

func TestEventBusUnsubscribeDuringEmit(t *testing.T) {
	eb := NewEventBus(testLogger())
	var calls atomic.Int32
	var unsub func()
	unsub = eb.OnAll(func(Event) {
		calls.Add(1)
		unsub()
	})
	eb.OnAll(func(Event) { calls.Add(1) })

	eb.Emit(Event{Type: EventStateUpdate})
	eb.Emit(Event{Type: EventStateUpdate})
	assert.Equal(t, int32(3), calls.Load())
}

func TestEventBusRecoversHandlerPanic(t *testing.T) {
	eb := NewEventBus(testLogger())
	var called atomic.Int32
	eb.On(EventDeviceJoined, func(Event) {
		called.Add(1)
		panic("boom")
	})
	eb.On(EventDeviceJoined, func(Event) { called.Add(1) })

	assert.NotPanics(t, func() { eb.Emit(Event{Type: EventDeviceJoined}) })
	assert.Equal(t, int32(2), called.Load())
}

func TestEventBusConcurrentEmitAndSubscribe(t *testing.T) {
	eb := NewEventBus(testLogger())
	var count atomic.Int32
	eb.OnAll(func(Event) { count.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			eb.Emit(Event{Type: EventStateUpdate})
		}()
		go func() {
			defer wg.Done()
			eb.On(EventPermitJoin, func(Event) {})()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(100), count.Load())
}
