// Package event provides the typed event bus that connects the host and its
// plugins.
//
// # Events
//
// Any type with an EventName method is an event. Handlers are bound to the
// exact dynamic type of the value passed to Fire: a handler for Base never
// sees a Derived value, even when Derived embeds Base.
//
// # Listeners
//
// A Listener returns an explicit manifest of handlers:
//
//	func (p *Greeter) Handlers() []event.Handler {
//	    return []event.Handler{
//	        event.On(event.PriorityHigh, p.onLoaded),
//	        event.Func("audit", event.PriorityMonitor, p.audit),
//	    }
//	}
//
// Listeners are registered on behalf of an owner, usually a plugin instance,
// and can be removed one at a time or all at once by owner.
//
// # Dispatch
//
// Registration changes rebuild an immutable dispatch table that is published
// atomically, so Fire never takes a lock. Handlers run synchronously on the
// calling goroutine in ascending priority order:
//
//   - Critical (0)
//   - High (100)
//   - Normal (200), the default
//   - Low (300)
//   - Monitor (400)
//
// Handlers with equal priority run in listener registration order, then in
// declaration order. The first handler that returns an error or panics stops
// delivery; Fire returns a *DispatchError describing it.
package event
