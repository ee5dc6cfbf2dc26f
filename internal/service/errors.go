package service

import "errors"

// Sentinel errors for the service registry.
var (
	// ErrNilService is returned when the service type is nil.
	ErrNilService = errors.New("service type cannot be nil")

	// ErrNilProvider is returned when the provider is nil.
	ErrNilProvider = errors.New("provider cannot be nil")

	// ErrNilOwner is returned when the owner is nil.
	ErrNilOwner = errors.New("owner cannot be nil")

	// ErrNotComparable is returned when a provider or owner cannot be compared
	// by identity.
	ErrNotComparable = errors.New("value is not comparable")

	// ErrNotAssignable is returned when the provider does not implement or
	// match the service type.
	ErrNotAssignable = errors.New("provider is not assignable to service type")
)
