package event

import (
	"context"
	"sync"
)

type baseEvent struct {
	N int
}

func (baseEvent) EventName() string { return "test.base" }

// derivedEvent embeds baseEvent and so also implements Event.
type derivedEvent struct {
	baseEvent
}

type pingEvent struct{}

func (pingEvent) EventName() string { return "test.ping" }

type ptrEvent struct {
	Payload string
}

func (*ptrEvent) EventName() string { return "test.ptr" }

type oldEvent struct{}

func (oldEvent) EventName() string        { return "test.old" }
func (oldEvent) DeprecationNotice() string { return "use test.ping" }

// testListener returns a fixed handler manifest.
type testListener struct {
	name     string
	handlers []Handler
}

func (l *testListener) Handlers() []Handler { return l.handlers }

func (l *testListener) String() string { return l.name }

// trace records handler invocations in order.
type trace struct {
	mu    sync.Mutex
	calls []string
}

func (tr *trace) add(s string) {
	tr.mu.Lock()
	tr.calls = append(tr.calls, s)
	tr.mu.Unlock()
}

func (tr *trace) get() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.calls...)
}

func (tr *trace) reset() {
	tr.mu.Lock()
	tr.calls = nil
	tr.mu.Unlock()
}

func recordBase(tr *trace, label string, p Priority) Handler {
	return On(p, func(_ context.Context, _ baseEvent) error {
		tr.add(label)
		return nil
	}).Named(label)
}
