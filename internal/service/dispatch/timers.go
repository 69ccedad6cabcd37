package dispatch

import (
	"sync"
	"time"
)

type stopper interface {
	Stop() bool
}

type afterFunc func(d time.Duration, f func()) stopper

func realAfterFunc(d time.Duration, f func()) stopper { return time.AfterFunc(d, f) }

type timerEntry struct {
	id  int64
	seq uint64
	t   stopper
}

// timerSet holds at most one cancellable timer per order.
type timerSet struct {
	mu    sync.Mutex
	after afterFunc
	seq   uint64
	byKey map[string]timerEntry
}

func newTimerSet(after afterFunc) *timerSet {
	return &timerSet{after: after, byKey: make(map[string]timerEntry)}
}

// start replaces any pending timer of key. id tags the timer for stopIf;
// firing is matched on an internal sequence so tags may repeat.
func (s *timerSet) start(key string, id int64, d time.Duration, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.byKey[key]; ok {
		cur.t.Stop()
	}
	s.seq++
	seq := s.seq
	s.byKey[key] = timerEntry{id: id, seq: seq, t: s.after(d, func() {
		if s.release(key, seq) {
			f()
		}
	})}
}

// release forgets a fired timer. False means it was replaced or stopped meanwhile.
func (s *timerSet) release(key string, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byKey[key]
	if !ok || cur.seq != seq {
		return false
	}
	delete(s.byKey, key)
	return true
}

func (s *timerSet) stop(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.byKey[key]; ok {
		cur.t.Stop()
		delete(s.byKey, key)
	}
}

// stopIf stops the timer of key only if it belongs to id.
func (s *timerSet) stopIf(key string, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.byKey[key]; ok && cur.id == id {
		cur.t.Stop()
		delete(s.byKey, key)
	}
}

func (s *timerSet) pending(key string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byKey[key]
	return cur.id, ok
}

func (s *timerSet) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, cur := range s.byKey {
		cur.t.Stop()
		delete(s.byKey, key)
	}
}
