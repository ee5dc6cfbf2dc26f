package lua

import (
	"context"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DefaultCallTimeout bounds a single DoFile, DoString, CallGlobal or Call.
const DefaultCallTimeout = 5 * time.Second

// State wraps a sandboxed gopher-lua state.
//
// gopher-lua's LState is not goroutine-safe. Every method locks the state,
// so handlers fired concurrently from the event bus run one at a time.
type State struct {
	L *lua.LState

	mu          sync.Mutex
	callTimeout time.Duration
	closed      bool
}

// StateOption configures a State.
type StateOption func(*State)

// WithCallTimeout sets the deadline applied to bounded calls. Zero
// disables it. Invoke is never bounded.
func WithCallTimeout(d time.Duration) StateOption {
	return func(s *State) {
		s.callTimeout = d
	}
}

// NewState creates a sandboxed Lua state.
func NewState(opts ...StateOption) *State {
	s := &State{callTimeout: DefaultCallTimeout}
	for _, opt := range opts {
		opt(s)
	}

	s.L = lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(s.L)
	installSandbox(s.L)
	return s
}

// openSafeLibraries opens base, table, string and math.
// io, os, debug and package are never opened.
func openSafeLibraries(L *lua.LState) {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
}

// DoFile executes a script file.
func (s *State) DoFile(ctx context.Context, path string) error {
	return s.run(ctx, func() error {
		return s.L.DoFile(path)
	})
}

// DoString executes a chunk of source.
func (s *State) DoString(ctx context.Context, code string) error {
	return s.run(ctx, func() error {
		return s.L.DoString(code)
	})
}

// CallGlobal calls the global function name if it is defined.
// It reports whether the function existed.
func (s *State) CallGlobal(ctx context.Context, name string, args ...lua.LValue) (bool, error) {
	var found bool
	err := s.run(ctx, func() error {
		fn, ok := s.L.GetGlobal(name).(*lua.LFunction)
		if !ok {
			return nil
		}
		found = true
		return s.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...)
	})
	return found, err
}

// Call calls fn with args built by the supplied function and returns the
// first result. args runs under the state lock so it may allocate tables.
// The call deadline applies.
func (s *State) Call(ctx context.Context, fn *lua.LFunction, args func(*lua.LState) []lua.LValue) (lua.LValue, error) {
	return s.call(ctx, s.callTimeout, fn, args)
}

// Invoke is Call without a deadline. Cancellation of the caller's context
// does not abort it either.
func (s *State) Invoke(fn *lua.LFunction, args func(*lua.LState) []lua.LValue) (lua.LValue, error) {
	return s.call(context.Background(), 0, fn, args)
}

func (s *State) call(ctx context.Context, timeout time.Duration, fn *lua.LFunction, args func(*lua.LState) []lua.LValue) (ret lua.LValue, err error) {
	err = s.runWithin(ctx, timeout, func() error {
		var in []lua.LValue
		if args != nil {
			in = args(s.L)
		}
		top := s.L.GetTop()
		if err := s.L.CallByParam(lua.P{Fn: fn, NRet: 2, Protect: true}, in...); err != nil {
			return err
		}
		ret = s.L.Get(top + 1)
		msg := s.L.Get(top + 2)
		s.L.SetTop(top)
		// Lua convention: nil, "message" signals failure.
		if ret == lua.LNil && msg != lua.LNil {
			return fmt.Errorf("%s", msg.String())
		}
		return nil
	})
	return ret, err
}

// Do runs fn with exclusive access to the underlying LState.
func (s *State) Do(fn func(L *lua.LState) error) error {
	return s.run(context.Background(), func() error {
		return fn(s.L)
	})
}

// run serializes access, applies the call deadline and recovers panics.
func (s *State) run(ctx context.Context, fn func() error) error {
	return s.runWithin(ctx, s.callTimeout, fn)
}

func (s *State) runWithin(ctx context.Context, timeout time.Duration, fn func() error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStateClosed
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	if err := fn(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ErrCallAborted, ctxErr)
		}
		return err
	}
	return nil
}

// Closed reports whether Close has been called.
func (s *State) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases the state. It is safe to call more than once.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.L.Close()
	s.closed = true
	return nil
}
