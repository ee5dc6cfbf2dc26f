package service

import (
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type Greeter interface {
	Greet() string
}

type greeter struct {
	name string
}

func (g *greeter) Greet() string { return "hello from " + g.name }

type owner struct {
	id string
}

var greeterType = reflect.TypeFor[Greeter]()

func TestRegistry_ProviderByPriority(t *testing.T) {
	r := NewRegistry()
	plugin := &owner{id: "p"}
	low := &greeter{name: "low"}
	high := &greeter{name: "high"}
	normal := &greeter{name: "normal"}

	for _, tc := range []struct {
		g *greeter
		p Priority
	}{{low, Low}, {high, High}, {normal, Normal}} {
		ok, err := Register[Greeter](r, tc.g, plugin, tc.p)
		require.NoError(t, err)
		require.True(t, ok)
	}

	g, ok := Lookup[Greeter](r)
	require.True(t, ok)
	assert.Equal(t, "hello from high", g.Greet())

	regs := r.Registrations(greeterType)
	require.Len(t, regs, 3)
	assert.Equal(t, []Priority{High, Normal, Low}, []Priority{regs[0].Priority, regs[1].Priority, regs[2].Priority})
	assert.Same(t, plugin, regs[0].Owner)
}

func TestRegistry_DuplicatePriority(t *testing.T) {
	r := NewRegistry()
	first := &greeter{name: "first"}

	ok, err := Register[Greeter](r, first, "owner", Normal)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Register[Greeter](r, &greeter{name: "second"}, "owner", Normal)
	require.NoError(t, err)
	assert.False(t, ok)

	g, _ := Lookup[Greeter](r)
	assert.Same(t, first, g)
}

func TestRegistry_Register_Invalid(t *testing.T) {
	r := NewRegistry()
	var nilGreeter *greeter

	tests := []struct {
		name     string
		service  reflect.Type
		provider any
		owner    any
		want     error
	}{
		{"nil service", nil, &greeter{}, "o", ErrNilService},
		{"nil provider", greeterType, nil, "o", ErrNilProvider},
		{"typed nil provider", greeterType, nilGreeter, "o", ErrNilProvider},
		{"nil owner", greeterType, &greeter{}, nil, ErrNilOwner},
		{"non-comparable owner", greeterType, &greeter{}, map[string]int{}, ErrNotComparable},
		{"not assignable", greeterType, "text", "o", ErrNotAssignable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := r.Register(tt.service, tt.provider, tt.owner, Normal)
			assert.False(t, ok)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, r.Services())
}

func TestRegistry_Lookup_Missing(t *testing.T) {
	r := NewRegistry()
	g, ok := Lookup[Greeter](r)
	assert.False(t, ok)
	assert.Nil(t, g)

	_, ok = r.Provider(nil)
	assert.False(t, ok)
}

func TestRegistry_Cancel(t *testing.T) {
	r := NewRegistry()
	a := &greeter{name: "a"}
	b := &greeter{name: "b"}
	_, _ = Register[Greeter](r, a, "o", High)
	_, _ = Register[Greeter](r, b, "o", Low)

	assert.True(t, CancelProvider[Greeter](r, a))
	assert.False(t, CancelProvider[Greeter](r, a))

	g, ok := Lookup[Greeter](r)
	require.True(t, ok)
	assert.Same(t, b, g)

	reg, ok := r.Cancel(greeterType, b)
	require.True(t, ok)
	assert.Equal(t, Low, reg.Priority)

	_, ok = Lookup[Greeter](r)
	assert.False(t, ok)
	assert.Empty(t, r.Services())
}

type Clock interface{ Now() int }

type fixedClock int

func (c fixedClock) Now() int { return int(c) }

func TestRegistry_CancelOwner(t *testing.T) {
	r := NewRegistry()
	pa := &owner{id: "a"}
	pb := &owner{id: "b"}

	_, _ = Register[Greeter](r, &greeter{name: "a-high"}, pa, High)
	_, _ = Register[Greeter](r, &greeter{name: "b-normal"}, pb, Normal)
	_, _ = Register[Clock](r, fixedClock(1), pa, Normal)
	_, _ = Register[Clock](r, fixedClock(2), pb, Lowest)

	removed := r.CancelOwner(pa)
	require.Len(t, removed, 2)
	for _, reg := range removed {
		assert.Same(t, pa, reg.Owner)
	}

	g, ok := Lookup[Greeter](r)
	require.True(t, ok)
	assert.Equal(t, "hello from b-normal", g.Greet())

	c, ok := Lookup[Clock](r)
	require.True(t, ok)
	assert.Equal(t, 2, c.Now())

	assert.Empty(t, r.CancelOwner(pa))
	assert.Nil(t, r.CancelOwner(nil))
}

func TestRegistry_Services(t *testing.T) {
	r := NewRegistry()
	_, _ = Register[Greeter](r, &greeter{}, "o", Normal)
	_, _ = Register[Clock](r, fixedClock(0), "o", Normal)

	services := r.Services()
	require.Len(t, services, 2)
	assert.Equal(t, reflect.TypeFor[Clock](), services[0])
	assert.Equal(t, greeterType, services[1])
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o := &owner{id: fmt.Sprint(i)}
			for p := Lowest; p <= Highest; p++ {
				_, _ = Register[Greeter](r, &greeter{name: fmt.Sprint(i, p)}, o, p)
				_, _ = Lookup[Greeter](r)
			}
			r.CancelOwner(o)
		}(i)
	}
	wg.Wait()
	_, ok := Lookup[Greeter](r)
	assert.False(t, ok)
}

func TestPriority_String(t *testing.T) {
	assert.Equal(t, "lowest", Lowest.String())
	assert.Equal(t, "highest", Highest.String())
	assert.Equal(t, "priority(9)", Priority(9).String())
}

// model mirrors the registry with a plain map for property checks.
type model struct {
	byPriority map[Priority]*greeter
	owners     map[*greeter]*owner
}

func TestRegistry_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := NewRegistry()
		owners := []*owner{{id: "a"}, {id: "b"}, {id: "c"}}
		m := model{byPriority: map[Priority]*greeter{}, owners: map[*greeter]*owner{}}
		var providers []*greeter

		t.Repeat(map[string]func(*rapid.T){
			"register": func(t *rapid.T) {
				p := Priority(rapid.IntRange(int(Lowest), int(Highest)).Draw(t, "priority"))
				o := rapid.SampledFrom(owners).Draw(t, "owner")
				g := &greeter{name: fmt.Sprint(len(providers))}
				ok, err := Register[Greeter](r, g, o, p)
				if err != nil {
					t.Fatalf("register: %v", err)
				}
				_, taken := m.byPriority[p]
				if ok == taken {
					t.Fatalf("register returned %v with priority taken=%v", ok, taken)
				}
				if ok {
					m.byPriority[p] = g
					m.owners[g] = o
					providers = append(providers, g)
				}
			},
			"cancelOwner": func(t *rapid.T) {
				o := rapid.SampledFrom(owners).Draw(t, "owner")
				removed := r.CancelOwner(o)
				want := 0
				for p, g := range m.byPriority {
					if m.owners[g] == o {
						delete(m.byPriority, p)
						want++
					}
				}
				if len(removed) != want {
					t.Fatalf("removed %d registrations, want %d", len(removed), want)
				}
				for _, reg := range removed {
					if reg.Owner != o {
						t.Fatalf("removed registration of another owner")
					}
				}
			},
			"": func(t *rapid.T) {
				var best *greeter
				bestP := Priority(-1)
				for p, g := range m.byPriority {
					if p > bestP {
						best, bestP = g, p
					}
				}
				got, ok := Lookup[Greeter](r)
				if best == nil {
					if ok {
						t.Fatalf("expected no provider, got %v", got)
					}
					return
				}
				if !ok || got != Greeter(best) {
					t.Fatalf("provider = %v, want %v", got, best)
				}
				regs := r.Registrations(greeterType)
				for i := 1; i < len(regs); i++ {
					if regs[i-1].Priority <= regs[i].Priority {
						t.Fatalf("registrations not in descending priority order")
					}
				}
			},
		})
	})
}
