package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/civicwatch/alertwatch/internal/alerts"
	"github.com/civicwatch/alertwatch/internal/consensus"
	"github.com/civicwatch/alertwatch/internal/observability/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeProvider records delivered events. When block is set, Send waits on it.
type fakeProvider struct {
	name    string
	err     error
	block   chan struct{}
	started chan struct{}

	mu     sync.Mutex
	events []Event
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Send(ctx context.Context, e Event) error {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return f.err
}

func (f *fakeProvider) received() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}

func testTransition(id string, to consensus.State) alerts.Transition {
	return alerts.Transition{
		Alert: alerts.Alert{
			ID: id, Reason: "flood", Location: "Main St", Urgency: "high",
			ConfirmedCount: 3, State: to,
		},
		From:    consensus.StatePending,
		To:      to,
		ActorID: "u4",
		At:      time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestDispatcherDeliversToAllProviders(t *testing.T) {
	a := &fakeProvider{name: "a"}
	b := &fakeProvider{name: "b"}
	d := NewDispatcher(DispatcherConfig{}, nil, nil, a, b)

	var obs alerts.Observer = d
	obs.AlertTransitioned(context.Background(), testTransition("alert-1", consensus.StateConfirmed))
	obs.AlertTransitioned(context.Background(), testTransition("alert-2", consensus.StateFake))

	require.NoError(t, d.Close(context.Background()))

	for _, p := range []*fakeProvider{a, b} {
		got := p.received()
		require.Len(t, got, 2, p.name)
		assert.Equal(t, "alert-1", got[0].AlertID)
		assert.Equal(t, "confirmed", got[0].To)
		assert.Equal(t, "pending", got[0].From)
		assert.Equal(t, "fake", got[1].To)
	}
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	m, err := metrics.NewNotificationMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	p := &fakeProvider{name: "slow", block: make(chan struct{}), started: make(chan struct{}, 4)}
	d := NewDispatcher(DispatcherConfig{QueueSize: 1}, m, nil, p)

	require.True(t, d.Enqueue(EventFromTransition(testTransition("first", consensus.StateConfirmed))))
	<-p.started // worker holds "first"

	assert.True(t, d.Enqueue(EventFromTransition(testTransition("second", consensus.StateConfirmed))))
	assert.False(t, d.Enqueue(EventFromTransition(testTransition("third", consensus.StateConfirmed))))
	assert.InDelta(t, 1, testutil.ToFloat64(m.DroppedTotal), 0)

	close(p.block)
	require.NoError(t, d.Close(context.Background()))

	got := p.received()
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].AlertID)
	assert.Equal(t, "second", got[1].AlertID)
	assert.InDelta(t, 2, testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("slow", metrics.StatusSuccess)), 0)
}

func TestDispatcherClose(t *testing.T) {
	p := &fakeProvider{name: "p"}
	d := NewDispatcher(DispatcherConfig{}, nil, nil, p)

	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))
	assert.False(t, d.Enqueue(Event{AlertID: "late"}))
	assert.Empty(t, p.received())
}

func TestDispatcherCloseDeadlineCancelsDelivery(t *testing.T) {
	p := &fakeProvider{name: "stuck", block: make(chan struct{}), started: make(chan struct{}, 4)}
	d := NewDispatcher(DispatcherConfig{Timeout: time.Minute}, nil, nil, p)

	d.Enqueue(Event{AlertID: "a"})
	d.Enqueue(Event{AlertID: "b"})
	<-p.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, p.received())
}

func TestFailingProviderDoesNotBlockOthers(t *testing.T) {
	bad := &fakeProvider{name: "bad", err: errors.New("unreachable")}
	good := &fakeProvider{name: "good"}
	d := NewDispatcher(DispatcherConfig{Breaker: CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Hour, HalfOpenMaxRequests: 1}}, nil, nil, bad, good)

	for i := 0; i < 4; i++ {
		d.Enqueue(Event{AlertID: "a", To: "confirmed"})
	}
	require.NoError(t, d.Close(context.Background()))

	assert.Len(t, good.received(), 4)
	assert.Len(t, bad.received(), 2, "breaker opens after two failures")
	assert.Equal(t, StateOpen, d.targets[0].breaker.State())
}

// fakeMQTT records publishes.
type fakeMQTT struct {
	connected bool
	topic     string
	payload   []byte
}

func (f *fakeMQTT) Connect(context.Context) error { f.connected = true; return nil }
func (f *fakeMQTT) IsConnected() bool             { return f.connected }
func (f *fakeMQTT) Disconnect()                   { f.connected = false }

func (f *fakeMQTT) Publish(_ context.Context, topic string, payload []byte) error {
	if !f.connected {
		return errors.New("not connected to MQTT broker")
	}
	f.topic, f.payload = topic, payload
	return nil
}

func TestMQTTProviderPublishesPerState(t *testing.T) {
	client := &fakeMQTT{connected: true}
	p := NewMQTTProvider(client, "alertwatch/alerts/")
	e := EventFromTransition(testTransition("alert-1", consensus.StateConfirmed))

	require.NoError(t, p.Send(context.Background(), e))
	assert.Equal(t, "alertwatch/alerts/confirmed", client.topic)

	var decoded Event
	require.NoError(t, json.Unmarshal(client.payload, &decoded))
	assert.Equal(t, "alert-1", decoded.AlertID)
	assert.Equal(t, 3, decoded.ConfirmedCount)
	assert.Equal(t, "u4", decoded.ActorID)

	client.Disconnect()
	assert.Error(t, p.Send(context.Background(), e))
}

func TestEventText(t *testing.T) {
	e := EventFromTransition(testTransition("alert-1", consensus.StateConfirmed))
	assert.Equal(t, "Alert confirmed: flood", e.Title())
	assert.Equal(t, "high alert at Main St moved from pending to confirmed (3 confirmed, 0 rejected)", e.Message())
}
