package event

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Catalog maps event names to event types so that script plugins can
// subscribe by name.
type Catalog struct {
	mu     sync.RWMutex
	byName map[string]reflect.Type
}

// NewCatalog creates a catalog pre-populated with the given sample events.
func NewCatalog(samples ...Event) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]reflect.Type)}
	for _, ev := range samples {
		if err := c.Register(ev); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register records the name and exact type of sample.
// Registering the same name and type again is a no-op.
func (c *Catalog) Register(sample Event) error {
	if sample == nil {
		return ErrNilEvent
	}
	t := reflect.TypeOf(sample)
	name := sample.EventName()

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.byName[name]; ok {
		if existing == t {
			return nil
		}
		return fmt.Errorf("%w: %q is bound to %s", ErrEventNameConflict, name, existing)
	}
	c.byName[name] = t
	return nil
}

// Lookup returns the type registered under name.
func (c *Catalog) Lookup(name string) (reflect.Type, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
	return t, nil
}

// Names returns all registered names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.byName))
	for n := range c.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
