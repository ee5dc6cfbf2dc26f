package event

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
)

var (
	eventType      = reflect.TypeFor[Event]()
	deprecatedType = reflect.TypeFor[Deprecated]()
	errorType      = reflect.TypeFor[error]()
)

// Handler is one entry of a listener's handler manifest.
// Build handlers with On, OnType or Func.
type Handler struct {
	name      string
	priority  Priority
	eventType reflect.Type
	invoke    invokeFunc

	// fn holds a Func handler until it is compiled at registration.
	fn any
}

// On declares a typed handler for events of exactly type E.
func On[E Event](priority Priority, fn func(context.Context, E) error) Handler {
	h := Handler{
		name:      funcName(fn),
		priority:  priority,
		eventType: reflect.TypeFor[E](),
	}
	if fn != nil {
		h.invoke = func(ctx context.Context, ev Event) error {
			return fn(ctx, ev.(E))
		}
	}
	return h
}

// OnType declares a handler for a type only known at run time, such as an
// event resolved by name from a Catalog.
func OnType(name string, priority Priority, t reflect.Type, fn func(context.Context, Event) error) Handler {
	h := Handler{
		name:      name,
		priority:  priority,
		eventType: t,
	}
	if fn != nil {
		h.invoke = fn
	}
	return h
}

// Func declares a handler from an arbitrary function value.
// The function must take exactly one parameter of a concrete type that
// implements Event and return nothing or an error. The shape is checked when
// the owning listener is registered.
func Func(name string, priority Priority, fn any) Handler {
	if name == "" && fn != nil {
		name = funcName(fn)
	}
	return Handler{
		name:     name,
		priority: priority,
		fn:       fn,
	}
}

// Named returns a copy of h with the given name.
func (h Handler) Named(name string) Handler {
	h.name = name
	return h
}

// Name returns the handler name.
func (h Handler) Name() string {
	return h.name
}

// Priority returns the handler priority.
func (h Handler) Priority() Priority {
	return h.priority
}

// compile validates the handler and resolves its event type and invoker.
func (h Handler) compile() (Handler, error) {
	if h.fn != nil {
		return compileFunc(h)
	}
	if h.eventType == nil {
		return h, fmt.Errorf("handler %q has no event type", h.name)
	}
	if h.invoke == nil {
		return h, fmt.Errorf("handler %q has a nil function", h.name)
	}
	if err := checkEventType(h.eventType); err != nil {
		return h, fmt.Errorf("handler %q: %w", h.name, err)
	}
	return h, nil
}

func compileFunc(h Handler) (Handler, error) {
	v := reflect.ValueOf(h.fn)
	ft := v.Type()
	if ft.Kind() != reflect.Func {
		return h, fmt.Errorf("handler %q is a %s, not a function", h.name, ft)
	}
	if v.IsNil() {
		return h, fmt.Errorf("handler %q has a nil function", h.name)
	}
	if ft.IsVariadic() || ft.NumIn() != 1 {
		return h, fmt.Errorf("handler %q must take exactly one event parameter, has %d", h.name, ft.NumIn())
	}
	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) != errorType {
			return h, fmt.Errorf("handler %q must return nothing or error, returns %s", h.name, ft.Out(0))
		}
	default:
		return h, fmt.Errorf("handler %q must return nothing or error, returns %d values", h.name, ft.NumOut())
	}

	param := ft.In(0)
	if err := checkEventType(param); err != nil {
		return h, fmt.Errorf("handler %q: %w", h.name, err)
	}

	returnsErr := ft.NumOut() == 1
	h.eventType = param
	h.invoke = func(_ context.Context, ev Event) error {
		out := v.Call([]reflect.Value{reflect.ValueOf(ev)})
		if !returnsErr || out[0].IsNil() {
			return nil
		}
		return out[0].Interface().(error)
	}
	h.fn = nil
	return h, nil
}

// checkEventType rejects types that can never be the exact dynamic type of a
// fired event.
func checkEventType(t reflect.Type) error {
	if t.Kind() == reflect.Interface {
		return fmt.Errorf("event parameter %s is an interface type", t)
	}
	if !t.Implements(eventType) {
		return fmt.Errorf("event parameter %s does not implement Event", t)
	}
	return nil
}

func funcName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}
	if f := runtime.FuncForPC(v.Pointer()); f != nil {
		return f.Name()
	}
	return ""
}

// isDeprecated reports whether events of type t are deprecated, along with
// the notice text when it can be obtained from a zero value.
func isDeprecated(t reflect.Type) (string, bool) {
	if !t.Implements(deprecatedType) {
		return "", false
	}
	notice := ""
	func() {
		defer func() { _ = recover() }()
		zero := reflect.Zero(t)
		if t.Kind() == reflect.Pointer {
			zero = reflect.New(t.Elem())
		}
		if d, ok := zero.Interface().(Deprecated); ok {
			notice = d.DeprecationNotice()
		}
	}()
	return notice, true
}

// eventNameOf derives an event name from a type. It falls back to the Go
// type name when the zero value cannot answer.
func eventNameOf(t reflect.Type) (name string) {
	name = t.String()
	defer func() { _ = recover() }()
	zero := reflect.Zero(t)
	if t.Kind() == reflect.Pointer {
		zero = reflect.New(t.Elem())
	}
	if ev, ok := zero.Interface().(Event); ok {
		if n := ev.EventName(); n != "" {
			name = n
		}
	}
	return name
}
