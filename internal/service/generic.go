package service

import "reflect"

// Register registers provider for the service type S.
func Register[S any](r *Registry, provider S, owner any, priority Priority) (bool, error) {
	return r.Register(reflect.TypeFor[S](), provider, owner, priority)
}

// Lookup returns the highest-priority provider of S.
func Lookup[S any](r *Registry) (S, bool) {
	var zero S
	reg, ok := r.Provider(reflect.TypeFor[S]())
	if !ok {
		return zero, false
	}
	s, ok := reg.Provider.(S)
	return s, ok
}

// CancelProvider removes the registration of provider for S.
func CancelProvider[S any](r *Registry, provider S) bool {
	_, ok := r.Cancel(reflect.TypeFor[S](), provider)
	return ok
}
