// Package service provides the priority-ranked service registry.
//
// A service is identified by a Go type, usually an interface. Any number of
// providers may be registered for it, each at a distinct Priority; Provider
// returns the one with the highest priority. Reads never lock: each service
// keeps an immutable slice that writers replace under a per-service mutex.
package service

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Priority ranks providers of the same service. Higher wins.
type Priority int

const (
	Lowest Priority = iota
	Low
	Normal
	High
	Highest
)

// String returns a human-readable priority name.
func (p Priority) String() string {
	switch p {
	case Lowest:
		return "lowest"
	case Low:
		return "low"
	case Normal:
		return "normal"
	case High:
		return "high"
	case Highest:
		return "highest"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Registration is one provider registered for a service.
type Registration struct {
	// Service is the service type.
	Service reflect.Type

	// Provider implements Service.
	Provider any

	// Owner registered the provider, usually a plugin instance.
	Owner any

	// Priority ranks the provider among others for Service.
	Priority Priority
}

// Registry maps service types to their providers.
type Registry struct {
	lists  sync.Map // reflect.Type -> *providerList
	logger zerolog.Logger
}

// providerList holds the providers of one service in descending priority.
type providerList struct {
	mu      sync.Mutex
	entries atomic.Pointer[[]Registration]
}

func (l *providerList) load() []Registration {
	if p := l.entries.Load(); p != nil {
		return *p
	}
	return nil
}

func (l *providerList) store(entries []Registration) {
	l.entries.Store(&entries)
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) {
		r.logger = l.With().Str("component", "service").Logger()
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds provider for serviceType on behalf of owner.
//
// It returns false without error when another provider already holds
// priority for this service.
func (r *Registry) Register(serviceType reflect.Type, provider, owner any, priority Priority) (bool, error) {
	if err := validate(serviceType, provider, owner); err != nil {
		return false, err
	}

	list := r.list(serviceType, true)
	list.mu.Lock()
	defer list.mu.Unlock()

	current := list.load()
	i := sort.Search(len(current), func(i int) bool {
		return current[i].Priority <= priority
	})
	if i < len(current) && current[i].Priority == priority {
		r.logger.Debug().
			Str("service", serviceType.String()).
			Stringer("priority", priority).
			Msg("priority already taken")
		return false, nil
	}

	next := make([]Registration, 0, len(current)+1)
	next = append(next, current[:i]...)
	next = append(next, Registration{
		Service:  serviceType,
		Provider: provider,
		Owner:    owner,
		Priority: priority,
	})
	next = append(next, current[i:]...)
	list.store(next)

	r.logger.Debug().
		Str("service", serviceType.String()).
		Str("provider", fmt.Sprintf("%T", provider)).
		Stringer("priority", priority).
		Msg("provider registered")
	return true, nil
}

// Provider returns the highest-priority registration for serviceType.
func (r *Registry) Provider(serviceType reflect.Type) (Registration, bool) {
	list := r.list(serviceType, false)
	if list == nil {
		return Registration{}, false
	}
	entries := list.load()
	if len(entries) == 0 {
		return Registration{}, false
	}
	return entries[0], true
}

// Registrations returns every registration for serviceType, highest
// priority first.
func (r *Registry) Registrations(serviceType reflect.Type) []Registration {
	list := r.list(serviceType, false)
	if list == nil {
		return nil
	}
	return append([]Registration(nil), list.load()...)
}

// Services returns the service types that currently have a provider,
// sorted by type name.
func (r *Registry) Services() []reflect.Type {
	var types []reflect.Type
	r.lists.Range(func(key, value any) bool {
		if len(value.(*providerList).load()) > 0 {
			types = append(types, key.(reflect.Type))
		}
		return true
	})
	sort.Slice(types, func(i, j int) bool {
		return types[i].String() < types[j].String()
	})
	return types
}

// Cancel removes the first registration of provider for serviceType.
func (r *Registry) Cancel(serviceType reflect.Type, provider any) (Registration, bool) {
	if provider == nil || !hashable(provider) {
		return Registration{}, false
	}
	list := r.list(serviceType, false)
	if list == nil {
		return Registration{}, false
	}

	list.mu.Lock()
	defer list.mu.Unlock()

	current := list.load()
	for i, reg := range current {
		if reg.Provider != provider {
			continue
		}
		next := make([]Registration, 0, len(current)-1)
		next = append(next, current[:i]...)
		next = append(next, current[i+1:]...)
		list.store(next)
		return reg, true
	}
	return Registration{}, false
}

// CancelOwner removes every registration made by owner across all services
// and returns them.
func (r *Registry) CancelOwner(owner any) []Registration {
	if owner == nil || !hashable(owner) {
		return nil
	}
	var removed []Registration
	r.lists.Range(func(_, value any) bool {
		list := value.(*providerList)
		list.mu.Lock()
		defer list.mu.Unlock()

		current := list.load()
		next := make([]Registration, 0, len(current))
		for _, reg := range current {
			if reg.Owner == owner {
				removed = append(removed, reg)
				continue
			}
			next = append(next, reg)
		}
		if len(next) != len(current) {
			list.store(next)
		}
		return true
	})
	if len(removed) > 0 {
		r.logger.Debug().
			Int("count", len(removed)).
			Str("owner", fmt.Sprintf("%T", owner)).
			Msg("owner registrations cancelled")
	}
	return removed
}

// list returns the provider list for serviceType, creating it when create
// is set.
func (r *Registry) list(serviceType reflect.Type, create bool) *providerList {
	if serviceType == nil {
		return nil
	}
	if v, ok := r.lists.Load(serviceType); ok {
		return v.(*providerList)
	}
	if !create {
		return nil
	}
	v, _ := r.lists.LoadOrStore(serviceType, &providerList{})
	return v.(*providerList)
}

func validate(serviceType reflect.Type, provider, owner any) error {
	switch {
	case serviceType == nil:
		return ErrNilService
	case isNil(provider):
		return ErrNilProvider
	case isNil(owner):
		return ErrNilOwner
	case !hashable(provider):
		return fmt.Errorf("provider %T: %w", provider, ErrNotComparable)
	case !hashable(owner):
		return fmt.Errorf("owner %T: %w", owner, ErrNotComparable)
	case !reflect.TypeOf(provider).AssignableTo(serviceType):
		return fmt.Errorf("%T for %s: %w", provider, serviceType, ErrNotAssignable)
	}
	return nil
}

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
