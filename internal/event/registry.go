package event

import (
	"fmt"
	"reflect"
)

// RegisterListeners registers every handler declared by listener on behalf of
// owner. Deregistering by owner later removes all of them together.
//
// Handlers are validated before anything is registered; a single invalid
// handler fails the whole call with a *ConfigurationError. A listener that
// declares no handlers is ignored, and registering the same listener twice is
// a no-op.
func (b *Bus) RegisterListeners(owner any, listener Listener) error {
	if err := checkIdentity(owner, listener); err != nil {
		return err
	}

	declared := listener.Handlers()
	compiled := make([]Handler, 0, len(declared))
	for _, h := range declared {
		c, err := h.compile()
		if err != nil {
			return &ConfigurationError{
				Owner:    describe(owner),
				Listener: describe(listener),
				Handler:  h.name,
				Reason:   err.Error(),
			}
		}
		compiled = append(compiled, c)
	}
	if len(compiled) == 0 {
		b.config.logger.Debug().
			Str("owner", describe(owner)).
			Str("listener", describe(listener)).
			Msg("listener declares no handlers")
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.owners[listener]; exists {
		b.config.logger.Debug().
			Str("owner", describe(owner)).
			Str("listener", describe(listener)).
			Msg("listener already registered")
		return nil
	}

	for _, h := range compiled {
		if notice, ok := isDeprecated(h.eventType); ok {
			b.config.logger.Warn().
				Str("owner", describe(owner)).
				Str("listener", describe(listener)).
				Str("event", h.eventType.String()).
				Str("notice", notice).
				Msg("handler registered for deprecated event")
		}
	}

	b.owners[listener] = owner
	b.byOwner[owner] = append(b.byOwner[owner], listener)
	b.listeners = append(b.listeners, listener)
	b.compiled[listener] = compiled
	b.bakeLocked()
	return nil
}

// DeregisterListener removes one listener and all of its handlers.
// Returns false if the listener was not registered.
func (b *Bus) DeregisterListener(listener Listener) bool {
	if listener == nil || !hashable(listener) {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.removeLocked(listener) {
		return false
	}
	b.bakeLocked()
	return true
}

// DeregisterListeners removes every listener in ls.
// Returns the number of listeners removed.
func (b *Bus) DeregisterListeners(ls []Listener) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for _, l := range ls {
		if l == nil || !hashable(l) {
			continue
		}
		if b.removeLocked(l) {
			removed++
		}
	}
	if removed > 0 {
		b.bakeLocked()
	}
	return removed
}

// DeregisterAllListeners removes every listener registered by owner.
// Returns the number of listeners removed.
func (b *Bus) DeregisterAllListeners(owner any) int {
	if owner == nil || !hashable(owner) {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	ls := append([]Listener(nil), b.byOwner[owner]...)
	for _, l := range ls {
		b.removeLocked(l)
	}
	if len(ls) > 0 {
		b.bakeLocked()
	}
	return len(ls)
}

// Listeners returns the listeners registered by owner, in registration order.
func (b *Bus) Listeners(owner any) []Listener {
	if owner == nil || !hashable(owner) {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Listener(nil), b.byOwner[owner]...)
}

// removeLocked drops a listener from every index without rebaking.
// The caller must hold b.mu.
func (b *Bus) removeLocked(listener Listener) bool {
	owner, ok := b.owners[listener]
	if !ok {
		return false
	}
	delete(b.owners, listener)
	delete(b.compiled, listener)

	b.byOwner[owner] = without(b.byOwner[owner], listener)
	if len(b.byOwner[owner]) == 0 {
		delete(b.byOwner, owner)
	}
	b.listeners = without(b.listeners, listener)
	return true
}

func without(ls []Listener, target Listener) []Listener {
	out := ls[:0:0]
	for _, l := range ls {
		if l != target {
			out = append(out, l)
		}
	}
	return out
}

// checkIdentity validates the owner and listener used as map keys.
func checkIdentity(owner any, listener Listener) error {
	switch {
	case isNil(listener):
		return &ConfigurationError{Owner: describe(owner), Listener: "<nil>", Reason: "listener is nil"}
	case isNil(owner):
		return &ConfigurationError{Owner: "<nil>", Listener: describe(listener), Reason: "owner is nil"}
	case !hashable(listener):
		return &ConfigurationError{
			Owner:    describe(owner),
			Listener: describe(listener),
			Reason:   fmt.Sprintf("listener type %T is not comparable", listener),
		}
	case !hashable(owner):
		return &ConfigurationError{
			Owner:    describe(owner),
			Listener: describe(listener),
			Reason:   fmt.Sprintf("owner type %T is not comparable", owner),
		}
	}
	return nil
}

// hashable reports whether v can be used as a map key without panicking.
func hashable(v any) bool {
	return reflect.ValueOf(v).Comparable()
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
