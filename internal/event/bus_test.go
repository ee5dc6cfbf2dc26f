package event

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_Fire_NoListeners(t *testing.T) {
	bus := NewBus()
	assert.NoError(t, bus.Fire(context.Background(), pingEvent{}))
}

func TestBus_Fire_NilEvent(t *testing.T) {
	bus := NewBus()
	assert.ErrorIs(t, bus.Fire(context.Background(), nil), ErrNilEvent)
}

func TestBus_Fire_PriorityOrder(t *testing.T) {
	bus := NewBus()
	tr := &trace{}
	owner := &testListener{name: "owner"}

	// Registered in reverse so registration order cannot explain the result.
	low := &testListener{name: "low", handlers: []Handler{recordBase(tr, "LOW", PriorityLow)}}
	normal := &testListener{name: "normal", handlers: []Handler{recordBase(tr, "NORMAL", PriorityNormal)}}
	high := &testListener{name: "high", handlers: []Handler{recordBase(tr, "HIGH", PriorityHigh)}}
	for _, l := range []*testListener{low, normal, high} {
		require.NoError(t, bus.RegisterListeners(owner, l))
	}

	for i := 0; i < 1000; i++ {
		tr.reset()
		require.NoError(t, bus.Fire(context.Background(), baseEvent{N: i}))
		require.Equal(t, []string{"HIGH", "NORMAL", "LOW"}, tr.get(), "fire %d", i)
	}
}

func TestBus_Fire_TiesKeepRegistrationOrder(t *testing.T) {
	bus := NewBus()
	tr := &trace{}
	owner := "owner"

	first := &testListener{name: "first", handlers: []Handler{
		recordBase(tr, "first.a", PriorityNormal),
		recordBase(tr, "first.b", PriorityNormal),
	}}
	second := &testListener{name: "second", handlers: []Handler{
		recordBase(tr, "second.a", PriorityNormal),
		recordBase(tr, "second.critical", PriorityCritical),
	}}
	require.NoError(t, bus.RegisterListeners(owner, first))
	require.NoError(t, bus.RegisterListeners(owner, second))

	require.NoError(t, bus.Fire(context.Background(), baseEvent{}))
	assert.Equal(t, []string{"second.critical", "first.a", "first.b", "second.a"}, tr.get())
}

func TestBus_Fire_ExactTypeOnly(t *testing.T) {
	bus := NewBus()
	tr := &trace{}
	l := &testListener{name: "base", handlers: []Handler{recordBase(tr, "base", PriorityNormal)}}
	require.NoError(t, bus.RegisterListeners("owner", l))

	require.NoError(t, bus.Fire(context.Background(), derivedEvent{}))
	assert.Empty(t, tr.get())

	require.NoError(t, bus.Fire(context.Background(), baseEvent{}))
	assert.Equal(t, []string{"base"}, tr.get())
}

func TestBus_Fire_PointerEvent(t *testing.T) {
	bus := NewBus()
	var got string
	l := &testListener{handlers: []Handler{
		On(PriorityNormal, func(_ context.Context, ev *ptrEvent) error {
			got = ev.Payload
			return nil
		}),
	}}
	require.NoError(t, bus.RegisterListeners("owner", l))

	require.NoError(t, bus.Fire(context.Background(), &ptrEvent{Payload: "hello"}))
	assert.Equal(t, "hello", got)
}

func TestBus_Fire_ErrorAbortsDispatch(t *testing.T) {
	bus := NewBus()
	tr := &trace{}
	boom := errors.New("boom")
	l := &testListener{name: "failing", handlers: []Handler{
		recordBase(tr, "first", PriorityHigh),
		On(PriorityNormal, func(context.Context, baseEvent) error { return boom }).Named("fails"),
		recordBase(tr, "never", PriorityLow),
	}}
	require.NoError(t, bus.RegisterListeners("owner", l))

	err := bus.Fire(context.Background(), baseEvent{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDispatch)
	assert.ErrorIs(t, err, boom)

	var de *DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "fails", de.Handler)
	assert.Equal(t, "failing", de.Listener)
	assert.Equal(t, "test.base", de.Event)
	assert.Equal(t, []string{"first"}, tr.get())
}

func TestBus_Fire_PanicBecomesDispatchError(t *testing.T) {
	bus := NewBus()
	l := &testListener{handlers: []Handler{
		On(PriorityNormal, func(context.Context, pingEvent) error { panic("kaboom") }).Named("panics"),
	}}
	require.NoError(t, bus.RegisterListeners("owner", l))

	err := bus.Fire(context.Background(), pingEvent{})
	assert.ErrorIs(t, err, ErrDispatch)
	assert.ErrorIs(t, err, ErrHandlerPanic)

	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "kaboom", pe.Value)
	assert.NotEmpty(t, pe.Stack)
}

func TestBus_Fire_CancelledContext(t *testing.T) {
	bus := NewBus()
	tr := &trace{}
	l := &testListener{handlers: []Handler{recordBase(tr, "x", PriorityNormal)}}
	require.NoError(t, bus.RegisterListeners("owner", l))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, bus.Fire(ctx, baseEvent{}))
	assert.Equal(t, []string{"x"}, tr.get())
}

func TestBus_Fire_HandlerCancelsContext(t *testing.T) {
	bus := NewBus()
	tr := &trace{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := &testListener{handlers: []Handler{
		On(PriorityHigh, func(context.Context, baseEvent) error {
			tr.add("high")
			cancel()
			return nil
		}).Named("high"),
		recordBase(tr, "low", PriorityLow),
	}}
	require.NoError(t, bus.RegisterListeners("owner", l))

	require.NoError(t, bus.Fire(ctx, baseEvent{}))
	assert.Equal(t, []string{"high", "low"}, tr.get())
}

func TestBus_Fire_SlowWarning(t *testing.T) {
	var buf bytes.Buffer
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	bus := NewBus(
		WithLogger(zerolog.New(&buf)),
		WithSlowFireThreshold(time.Millisecond),
		WithMetrics(metrics),
	)
	l := &testListener{handlers: []Handler{
		On(PriorityNormal, func(context.Context, pingEvent) error {
			time.Sleep(10 * time.Millisecond)
			return nil
		}),
	}}
	require.NoError(t, bus.RegisterListeners("owner", l))

	require.NoError(t, bus.Fire(context.Background(), pingEvent{}))
	assert.Contains(t, buf.String(), "slow event fire")
	assert.Contains(t, buf.String(), `"event":"test.ping"`)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.slowFires.WithLabelValues("test.ping")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.dispatchErrors.WithLabelValues("test.ping")))
}

func TestBus_Fire_DispatchErrorMetric(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	bus := NewBus(WithMetrics(metrics))
	l := &testListener{handlers: []Handler{
		On(PriorityNormal, func(context.Context, pingEvent) error { return errors.New("no") }),
	}}
	require.NoError(t, bus.RegisterListeners("owner", l))

	require.Error(t, bus.Fire(context.Background(), pingEvent{}))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.dispatchErrors.WithLabelValues("test.ping")))
}

func TestBus_HandlersAndSnapshot(t *testing.T) {
	bus := NewBus()
	tr := &trace{}
	l := &testListener{name: "lst", handlers: []Handler{
		recordBase(tr, "b", PriorityLow),
		recordBase(tr, "a", PriorityHigh),
		On(PriorityNormal, func(context.Context, pingEvent) error { return nil }).Named("ping"),
	}}
	require.NoError(t, bus.RegisterListeners(&testListener{name: "plugin"}, l))

	infos := bus.Handlers(reflect.TypeFor[baseEvent]())
	require.Len(t, infos, 2)
	assert.Equal(t, "a", infos[0].Name)
	assert.Equal(t, PriorityHigh, infos[0].Priority)
	assert.Equal(t, "lst", infos[0].Listener)
	assert.Equal(t, "plugin", infos[0].Owner)

	snap := bus.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "event.baseEvent", snap[0].TypeName)
	assert.Equal(t, "test.base", snap[0].Name)
	assert.Equal(t, "event.pingEvent", snap[1].TypeName)
	assert.Equal(t, "test.ping", snap[1].Name)
}

func TestBus_ConcurrentFireAndRegister(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()
	var wg sync.WaitGroup

	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_ = bus.Fire(ctx, baseEvent{})
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		l := &testListener{name: fmt.Sprint(i), handlers: []Handler{
			On(PriorityNormal, func(context.Context, baseEvent) error { return nil }),
		}}
		require.NoError(t, bus.RegisterListeners("owner", l))
		if i%2 == 0 {
			bus.DeregisterListener(l)
		}
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, 100, bus.ListenerCount())
	assert.Len(t, bus.Handlers(reflect.TypeFor[baseEvent]()), 100)
}
