package capacity

// slots is a channel-based counting semaphore. Tokens are pre-filled up to
// limit; a held slot is a missing token.
type slots struct {
	limit int
	ch    chan struct{}
}

func newSlots(limit int) *slots {
	if limit < 0 {
		limit = 0
	}
	s := &slots{limit: limit, ch: make(chan struct{}, limit)}
	for i := 0; i < limit; i++ {
		s.ch <- struct{}{}
	}
	return s
}

func (s *slots) tryAcquire() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

func (s *slots) release() {
	// Never block: a release without a matching acquire is dropped.
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

func (s *slots) free() int  { return len(s.ch) }
func (s *slots) inUse() int { return s.limit - len(s.ch) }
