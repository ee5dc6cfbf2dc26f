package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dshills/hostkit/internal/event"
)

// fakeLoader claims files named <key>.fake and serves descriptors from memory.
type fakeLoader struct {
	name string

	mu           sync.Mutex
	descriptors  map[string]*Descriptor
	decodeErrs   map[string]error
	factories    map[string]func(InitContext) (any, error)
	instantiated []string
	inits        []InitContext
}

func newFakeLoader(name string) *fakeLoader {
	return &fakeLoader{
		name:        name,
		descriptors: make(map[string]*Descriptor),
		decodeErrs:  make(map[string]error),
		factories:   make(map[string]func(InitContext) (any, error)),
	}
}

func (l *fakeLoader) Name() string { return l.name }

func (l *fakeLoader) Matches(path string) bool {
	return strings.HasSuffix(path, ".fake")
}

func (l *fakeLoader) Decode(_ context.Context, path string) (*Descriptor, error) {
	key := strings.TrimSuffix(filepath.Base(path), ".fake")
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, ok := l.decodeErrs[key]; ok {
		return nil, err
	}
	d, ok := l.descriptors[key]
	if !ok {
		return nil, errors.New("no descriptor for " + key)
	}
	return d.Clone(), nil
}

func (l *fakeLoader) Instantiate(_ context.Context, init InitContext) (any, error) {
	l.mu.Lock()
	l.instantiated = append(l.instantiated, init.Descriptor.ID)
	l.inits = append(l.inits, init)
	factory := l.factories[init.Descriptor.ID]
	l.mu.Unlock()

	if factory != nil {
		return factory(init)
	}
	return &fakePlugin{id: init.Descriptor.ID}, nil
}

func (l *fakeLoader) add(key string, d Descriptor) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.descriptors[key] = &d
}

func (l *fakeLoader) order() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.instantiated...)
}

// fakePlugin is a minimal plugin instance.
type fakePlugin struct {
	id       string
	closed   bool
	closeErr error
	handlers []event.Handler
}

func (p *fakePlugin) Close() error {
	p.closed = true
	return p.closeErr
}

// listenerPlugin also declares event handlers.
type listenerPlugin struct {
	fakePlugin
}

func (p *listenerPlugin) Handlers() []event.Handler { return p.handlers }

// touch creates empty files named <key>.fake in dir.
func touch(t *testing.T, dir string, keys ...string) {
	t.Helper()
	for _, k := range keys {
		require.NoError(t, os.WriteFile(filepath.Join(dir, k+".fake"), nil, 0o644))
	}
}

func dep(id, version string) Dependency {
	return Dependency{ID: id, Version: version}
}
