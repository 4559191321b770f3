package scheduler

// circuitState tracks consecutive failed executions of one task key.
//
// On success the failures reset. Once failures reach the trip count the key
// is held out of matching for an exponentially growing number of ticks.
type circuitState struct {
	fails       int
	openUntil   uint64
	lastFailure uint64
}

// circuitStore is guarded by Service.mu.
type circuitStore struct {
	m map[string]*circuitState
}

func (c *circuitStore) get(key string) *circuitState {
	if c.m == nil {
		c.m = make(map[string]*circuitState)
	}
	st := c.m[key]
	if st == nil {
		st = &circuitState{}
		c.m[key] = st
	}
	return st
}

func (c *circuitStore) counts(tick uint64) (total, open int) {
	for _, st := range c.m {
		total++
		if tick < st.openUntil {
			open++
		}
	}
	return total, open
}

func (s *Service) circuitOpen(key string, tick uint64) bool {
	if s.cfg.CircuitTripFailures < 0 || s.circuits.m == nil {
		return false
	}
	st, ok := s.circuits.m[key]
	if !ok {
		return false
	}
	s.circuitMaybeReset(st, tick)
	return tick < st.openUntil
}

func (s *Service) circuitMaybeReset(st *circuitState, tick uint64) {
	if st.lastFailure > 0 && tick > st.lastFailure && tick-st.lastFailure > s.cfg.CircuitResetTicks {
		st.fails = 0
		st.openUntil = 0
	}
}

func (s *Service) circuitSuccess(key string) {
	if s.circuits.m == nil {
		return
	}
	delete(s.circuits.m, key)
}

// circuitFailure records a failure and reports whether the circuit tripped.
func (s *Service) circuitFailure(key string, tick uint64) bool {
	cfg := s.cfg
	if cfg.CircuitTripFailures < 0 {
		return false
	}
	st := s.circuits.get(key)
	s.circuitMaybeReset(st, tick)

	st.fails++
	st.lastFailure = tick
	if st.fails < cfg.CircuitTripFailures {
		return false
	}

	d := cfg.CircuitBaseTicks
	for i := 0; i < st.fails-cfg.CircuitTripFailures; i++ {
		d *= 2
		if d >= cfg.CircuitMaxTicks {
			break
		}
	}
	d = min(d, cfg.CircuitMaxTicks)
	st.openUntil = tick + 1 + d
	return true
}
