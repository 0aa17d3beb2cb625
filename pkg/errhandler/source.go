package errhandler

import "sync"

// Hook receives an uncaught value and reports whether the environment's
// default error surface should be suppressed.
type Hook func(v any) bool

// Source is the injectable origin of process-wide error signals. The
// handler installs hooks on it during Initialize and restores the previous
// hooks verbatim on Destroy, so install/uninstall logic is testable
// without a real global environment.
type Source interface {
	// SetUncaughtHook installs h as the uncaught-error hook and returns
	// the previously installed hook (nil if none).
	SetUncaughtHook(h Hook) Hook

	// SetRejectionHook installs h as the unobserved-async-failure hook
	// and returns the previously installed hook (nil if none).
	SetRejectionHook(h Hook) Hook
}

// ChainSource is an in-memory Source. It is the building block for tests
// and for embedding the handler into host environments that deliver error
// signals programmatically.
type ChainSource struct {
	mu        sync.Mutex
	uncaught  Hook
	rejection Hook
}

// NewChainSource creates an empty source.
func NewChainSource() *ChainSource {
	return &ChainSource{}
}

// SetUncaughtHook swaps the uncaught-error hook, returning the previous one.
func (s *ChainSource) SetUncaughtHook(h Hook) Hook {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.uncaught
	s.uncaught = h
	return prev
}

// SetRejectionHook swaps the async-failure hook, returning the previous one.
func (s *ChainSource) SetRejectionHook(h Hook) Hook {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.rejection
	s.rejection = h
	return prev
}

// UncaughtHook returns the currently installed uncaught-error hook.
func (s *ChainSource) UncaughtHook() Hook {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uncaught
}

// RejectionHook returns the currently installed async-failure hook.
func (s *ChainSource) RejectionHook() Hook {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rejection
}

// Uncaught delivers an uncaught value to the installed hook. It reports
// whether the default surface was suppressed; with no hook installed it
// returns false.
func (s *ChainSource) Uncaught(v any) bool {
	if h := s.UncaughtHook(); h != nil {
		return h(v)
	}
	return false
}

// Rejected delivers an unobserved async failure to the installed hook.
func (s *ChainSource) Rejected(v any) bool {
	if h := s.RejectionHook(); h != nil {
		return h(v)
	}
	return false
}

// RuntimeSource adapts Go runtime failures onto the Source contract.
// Goroutines spawned through Go have their panics recovered and routed to
// the uncaught hook; error results delivered through Reject feed the
// rejection hook.
type RuntimeSource struct {
	ChainSource
}

// NewRuntimeSource creates a runtime-backed source.
func NewRuntimeSource() *RuntimeSource {
	return &RuntimeSource{}
}

// Go runs fn in a new goroutine, routing any panic to the uncaught hook
// instead of crashing the process.
func (s *RuntimeSource) Go(fn func()) {
	go func() {
		defer func() {
			if v := recover(); v != nil {
				s.Uncaught(v)
			}
		}()
		fn()
	}()
}

// Reject reports an asynchronous failure nobody else will observe.
func (s *RuntimeSource) Reject(err error) {
	if err != nil {
		s.Rejected(err)
	}
}
