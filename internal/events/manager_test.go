package events

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"backtestCore/internal/clock"
	"backtestCore/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct {
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

// recorder logs "<name>:<kind>" for every event it handles.
type recorder struct {
	name string
	log  *[]string
}

func (r *recorder) Handle(ctx context.Context, event Event) error {
	*r.log = append(*r.log, fmt.Sprintf("%s:%s", r.name, event.Kind()))
	return nil
}

type barEvent struct {
	at time.Time
}

func (e barEvent) Kind() Kind           { return "bar" }
func (e barEvent) Timestamp() time.Time { return e.at }
func (e barEvent) Chain() []Kind        { return []Kind{"bar"} }

var start = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T) (*Manager, *clock.Simulated) {
	t.Helper()
	clk := clock.NewSimulated(start)
	m, err := NewManager(Config{Clock: clk, Logger: &mockLogger{}})
	require.NoError(t, err)
	return m, clk
}

func typed[E Event](r *recorder) Listener[E] {
	return ListenerFunc[E](func(ctx context.Context, e E) error {
		return r.Handle(ctx, e)
	})
}

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager(Config{Logger: &mockLogger{}})
	assert.Error(t, err)
	_, err = NewManager(Config{Clock: clock.Real{}})
	assert.Error(t, err)
}

func TestDispatchNextEvent_SynthesizesEmptyQueue(t *testing.T) {
	m, clk := newTestManager(t)
	now := start.Add(time.Hour)
	require.NoError(t, clk.Set(now))

	var got []EmptyQueueEvent
	require.NoError(t, Subscribe[EmptyQueueEvent](m, KindEmptyQueue, ListenerFunc[EmptyQueueEvent](func(ctx context.Context, e EmptyQueueEvent) error {
		got = append(got, e)
		return nil
	})))

	require.NoError(t, m.DispatchNextEvent(context.Background()))
	require.Len(t, got, 1)
	assert.Equal(t, now, got[0].At)
	assert.True(t, m.ContinueTrading())
}

func TestDispatchNextEvent_DualDispatch(t *testing.T) {
	m, _ := newTestManager(t)
	var log []string

	require.NoError(t, Subscribe(m, "market_open", typed[TimeEvent](&recorder{name: "open", log: &log})))
	require.NoError(t, Subscribe(m, KindTimeEvent, typed[TimeEvent](&recorder{name: "time", log: &log})))
	m.SubscribeAll(&recorder{name: "all", log: &log})

	m.Publish(TimeEvent{Type: "market_open", At: start})
	require.NoError(t, m.DispatchNextEvent(context.Background()))

	assert.Equal(t, []string{"open:market_open", "time:market_open", "all:market_open"}, log)
}

func TestDispatchNextEvent_TimeEventWithoutSpecificNotifier(t *testing.T) {
	m, _ := newTestManager(t)
	var log []string
	require.NoError(t, Subscribe(m, KindTimeEvent, typed[TimeEvent](&recorder{name: "time", log: &log})))

	m.Publish(TimeEvent{Type: "market_close", At: start})
	require.NoError(t, m.DispatchNextEvent(context.Background()))
	assert.Equal(t, []string{"time:market_close"}, log)
}

func TestDispatchNextEvent_NoNotifier(t *testing.T) {
	m, _ := newTestManager(t)
	m.SubscribeAll(&recorder{name: "all", log: new([]string)})

	m.Publish(barEvent{at: start})
	err := m.DispatchNextEvent(context.Background())
	assert.ErrorIs(t, err, ports.ErrNoNotifier)
	assert.ErrorIs(t, err, ports.ErrConfiguration)
}

func TestSubscribe_Mismatch(t *testing.T) {
	m, _ := newTestManager(t)
	err := Subscribe[EmptyQueueEvent](m, KindEndTrading, ListenerFunc[EmptyQueueEvent](func(ctx context.Context, e EmptyQueueEvent) error { return nil }))
	assert.ErrorIs(t, err, ports.ErrListenerMismatch)

	err = Subscribe[Event](m, KindAll, ListenerFunc[Event](func(ctx context.Context, e Event) error { return nil }))
	assert.ErrorIs(t, err, ports.ErrListenerMismatch)
}

func TestRegisterNotifier(t *testing.T) {
	m, _ := newTestManager(t)
	n := NewNotifier[barEvent]()
	var got int
	n.Subscribe(ListenerFunc[barEvent](func(ctx context.Context, e barEvent) error {
		got++
		return nil
	}))

	require.NoError(t, m.RegisterNotifier("bar", n))
	assert.True(t, m.HasNotifier("bar"))
	assert.ErrorIs(t, m.RegisterNotifier("bar", n), ports.ErrDuplicateNotifier)
	assert.ErrorIs(t, m.RegisterNotifier(KindEmptyQueue, n), ports.ErrDuplicateNotifier)

	m.Publish(barEvent{at: start})
	require.NoError(t, m.DispatchNextEvent(context.Background()))
	assert.Equal(t, 1, got)
}

func TestRun_StopsOnEndTrading(t *testing.T) {
	m, clk := newTestManager(t)
	var log []string
	m.SubscribeAll(&recorder{name: "all", log: &log})

	emptyCount := 0
	require.NoError(t, Subscribe[EmptyQueueEvent](m, KindEmptyQueue, ListenerFunc[EmptyQueueEvent](func(ctx context.Context, e EmptyQueueEvent) error {
		emptyCount++
		if emptyCount == 3 {
			m.Publish(EndTradingEvent{At: clk.Now()})
			return nil
		}
		m.Publish(TimeEvent{Type: "tick", At: clk.Now()})
		return nil
	})))

	require.NoError(t, m.Run(context.Background()))
	assert.False(t, m.ContinueTrading())
	assert.Equal(t, []string{
		"all:empty_queue", "all:tick",
		"all:empty_queue", "all:tick",
		"all:empty_queue", "all:end_trading",
	}, log)
}

func TestRun_PropagatesListenerError(t *testing.T) {
	m, _ := newTestManager(t)
	boom := errors.New("boom")
	require.NoError(t, Subscribe[EmptyQueueEvent](m, KindEmptyQueue, ListenerFunc[EmptyQueueEvent](func(ctx context.Context, e EmptyQueueEvent) error {
		return boom
	})))

	err := m.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.True(t, m.ContinueTrading())
}

func TestRun_ContextCanceled(t *testing.T) {
	m, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, Subscribe[EmptyQueueEvent](m, KindEmptyQueue, ListenerFunc[EmptyQueueEvent](func(ctx context.Context, e EmptyQueueEvent) error {
		cancel()
		return nil
	})))

	err := m.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_Deterministic(t *testing.T) {
	run := func() []string {
		m, _ := newTestManager(t)
		var log []string
		require.NoError(t, Subscribe(m, "a", typed[TimeEvent](&recorder{name: "a1", log: &log})))
		require.NoError(t, Subscribe(m, "a", typed[TimeEvent](&recorder{name: "a2", log: &log})))
		require.NoError(t, Subscribe(m, KindTimeEvent, typed[TimeEvent](&recorder{name: "t", log: &log})))
		m.SubscribeAll(&recorder{name: "all", log: &log})

		m.Publish(
			TimeEvent{Type: "a", At: start},
			TimeEvent{Type: "b", At: start},
			TimeEvent{Type: "a", At: start.Add(time.Minute)},
			EndTradingEvent{At: start.Add(time.Minute)},
		)
		require.NoError(t, m.Run(context.Background()))
		return log
	}

	first := run()
	assert.Equal(t, first, run())
	assert.Equal(t, []string{"a1:a", "a2:a", "t:a", "all:a"}, first[:4])
}

func TestNotifier_SubscribeDedup(t *testing.T) {
	n := NewNotifier[Event]()
	r := &recorder{name: "r", log: new([]string)}
	n.Subscribe(r)
	n.Subscribe(r)
	assert.Equal(t, 1, n.Len())

	f := ListenerFunc[Event](func(ctx context.Context, e Event) error { return nil })
	n.Subscribe(f)
	n.Subscribe(f)
	assert.Equal(t, 3, n.Len())

	assert.True(t, n.Unsubscribe(r))
	assert.False(t, n.Unsubscribe(r))
	assert.Equal(t, 2, n.Len())
}

func TestNotifier_DispatchMismatch(t *testing.T) {
	n := NewNotifier[EndTradingEvent]()
	err := n.Dispatch(context.Background(), EmptyQueueEvent{At: start})
	assert.ErrorIs(t, err, ports.ErrListenerMismatch)
}

func TestTimeEvent_Chain(t *testing.T) {
	assert.Equal(t, []Kind{"market_open", KindTimeEvent}, TimeEvent{Type: "market_open"}.Chain())
	assert.Equal(t, []Kind{KindTimeEvent}, TimeEvent{Type: KindTimeEvent}.Chain())
	assert.True(t, IsEngineKind(KindEndTrading))
	assert.False(t, IsEngineKind("market_open"))
}
