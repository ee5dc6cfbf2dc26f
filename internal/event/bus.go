package event

import (
	"context"
	"fmt"
	"reflect"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Bus delivers events to the handlers of registered listeners.
//
// Registration changes take the bus mutex and rebuild the dispatch table in
// full. Fire never locks: it reads the most recently published table, so a
// Fire running concurrently with a registration change sees either the old or
// the new table, never a mix.
type Bus struct {
	mu sync.Mutex

	// owners maps a listener to the owner that registered it.
	owners map[any]any

	// byOwner lists each owner's listeners in registration order.
	byOwner map[any][]Listener

	// listeners is every registered listener in registration order.
	listeners []Listener

	// compiled holds each listener's validated handlers.
	compiled map[any][]Handler

	table atomic.Pointer[dispatchTable]

	config busConfig
}

// dispatchTable is an immutable snapshot of handlers grouped by event type.
type dispatchTable struct {
	entries map[reflect.Type][]entry
}

// entry is one handler bound to its listener and owner.
type entry struct {
	listener Listener
	owner    any
	handler  Handler
}

// NewBus creates a new event bus with the given options.
func NewBus(opts ...BusOption) *Bus {
	config := defaultBusConfig()
	for _, opt := range opts {
		opt(&config)
	}

	b := &Bus{
		owners:   make(map[any]any),
		byOwner:  make(map[any][]Listener),
		compiled: make(map[any][]Handler),
		config:   config,
	}
	b.table.Store(&dispatchTable{entries: map[reflect.Type][]entry{}})
	return b
}

// Fire delivers ev to every handler registered for its exact type, in
// ascending priority order. The first handler that fails or panics stops
// delivery and its error is returned as a *DispatchError. Firing an event
// nobody listens to is a no-op. ctx is passed to every handler; its
// cancellation does not stop delivery.
func (b *Bus) Fire(ctx context.Context, ev Event) error {
	if ev == nil {
		return ErrNilEvent
	}
	entries := b.table.Load().entries[reflect.TypeOf(ev)]
	if len(entries) == 0 {
		return nil
	}

	name := ev.EventName()
	start := time.Now()
	var err error
	for _, e := range entries {
		if herr := b.invoke(ctx, e, ev); herr != nil {
			err = &DispatchError{
				Handler:  e.handler.name,
				Listener: describe(e.listener),
				Event:    name,
				Err:      herr,
			}
			break
		}
	}
	elapsed := time.Since(start)

	b.config.metrics.observeFire(name, elapsed, err)
	if elapsed > b.config.slowFire {
		b.config.metrics.slowFire(name)
		b.config.logger.Warn().
			Str("event", name).
			Int("handlers", len(entries)).
			Float64("elapsed_ms", float64(elapsed.Microseconds())/1000).
			Msg("slow event fire")
	}
	return err
}

// invoke runs one handler, converting a panic into a *PanicError.
func (b *Bus) invoke(ctx context.Context, e entry, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()
	return e.handler.invoke(ctx, ev)
}

// Handlers returns the handlers registered for events of type t, in dispatch
// order.
func (b *Bus) Handlers(t reflect.Type) []HandlerInfo {
	entries := b.table.Load().entries[t]
	out := make([]HandlerInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.info())
	}
	return out
}

// Snapshot describes the current dispatch table, sorted by type name.
func (b *Bus) Snapshot() []TableEntry {
	tbl := b.table.Load()
	out := make([]TableEntry, 0, len(tbl.entries))
	for t, entries := range tbl.entries {
		te := TableEntry{
			Type:     t,
			TypeName: t.String(),
			Name:     eventNameOf(t),
			Handlers: make([]HandlerInfo, 0, len(entries)),
		}
		for _, e := range entries {
			te.Handlers = append(te.Handlers, e.info())
		}
		out = append(out, te)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TypeName < out[j].TypeName
	})
	return out
}

// ListenerCount returns the number of registered listeners.
func (b *Bus) ListenerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

// Logger returns the bus logger.
func (b *Bus) Logger() zerolog.Logger {
	return b.config.logger
}

// bakeLocked rebuilds and publishes the dispatch table.
// The caller must hold b.mu.
func (b *Bus) bakeLocked() {
	entries := make(map[reflect.Type][]entry)
	for _, l := range b.listeners {
		owner := b.owners[l]
		for _, h := range b.compiled[l] {
			entries[h.eventType] = append(entries[h.eventType], entry{
				listener: l,
				owner:    owner,
				handler:  h,
			})
		}
	}
	// Stable sort keeps listener registration order, then declaration order,
	// among equal priorities.
	for _, list := range entries {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].handler.priority < list[j].handler.priority
		})
	}
	b.table.Store(&dispatchTable{entries: entries})
}

func (e entry) info() HandlerInfo {
	return HandlerInfo{
		Name:     e.handler.name,
		Priority: e.handler.priority,
		Listener: describe(e.listener),
		Owner:    describe(e.owner),
	}
}

// describe renders a listener or owner for logs and errors.
func describe(v any) string {
	if v == nil {
		return "<nil>"
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", v)
}
