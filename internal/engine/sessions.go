package engine

import (
	"sync"
	"time"

	"github.com/Veraticus/parcel/internal/model"
)

type conversation struct {
	seen      time.Time
	exchanges []model.Exchange
}

// sessions tracks in-flight submissions and recent conversation per session.
// Gates exist only while a submission runs; conversations idle past ttl are
// dropped.
type sessions struct {
	now       func() time.Time
	inFlight  map[string]struct{}
	convos    map[string]*conversation
	lastPrune time.Time
	ttl       time.Duration
	mu        sync.Mutex
	limit     int
}

func newSessions(limit int, ttl time.Duration) *sessions {
	return &sessions{
		now:      time.Now,
		inFlight: make(map[string]struct{}),
		convos:   make(map[string]*conversation),
		ttl:      ttl,
		limit:    limit,
	}
}

// acquire marks the session busy without blocking. ok is false while
// another submission for the session is in flight.
func (s *sessions) acquire(id string) (release func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return nil, false
	}
	s.inFlight[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.inFlight, id)
			s.mu.Unlock()
		})
	}, true
}

func (s *sessions) remember(id string, ex model.Exchange) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pruneLocked(now)
	c := s.convos[id]
	if c == nil {
		c = &conversation{}
		s.convos[id] = c
	}
	c.seen = now
	c.exchanges = append(c.exchanges, ex)
	if len(c.exchanges) > s.limit {
		c.exchanges = append([]model.Exchange(nil), c.exchanges[len(c.exchanges)-s.limit:]...)
	}
}

func (s *sessions) history(id string) []model.Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.convos[id]
	if c == nil {
		return nil
	}
	if s.ttl > 0 && s.now().Sub(c.seen) >= s.ttl {
		delete(s.convos, id)
		return nil
	}
	return append([]model.Exchange(nil), c.exchanges...)
}

// size reports how many sessions hold state.
func (s *sessions) size() (inFlight, conversations int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight), len(s.convos)
}

// pruneLocked drops idle conversations, at most once per ttl.
func (s *sessions) pruneLocked(now time.Time) {
	if s.ttl <= 0 || now.Sub(s.lastPrune) < s.ttl {
		return
	}
	s.lastPrune = now
	for id, c := range s.convos {
		if now.Sub(c.seen) >= s.ttl {
			delete(s.convos, id)
		}
	}
}
