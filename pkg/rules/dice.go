package rules

import (
	"math/rand"
	"sync"
	"time"
)

// Roller produces die rolls. The rules engine takes its randomness from a
// Roller so tests can force specific outcomes.
type Roller interface {
	// Roll returns a uniform integer in [1, sides].
	Roll(sides int) int
}

// randRoller is the production roller backed by math/rand.
type randRoller struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRoller returns a Roller seeded from the current time.
func NewRoller() Roller {
	return &randRoller{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (r *randRoller) Roll(sides int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(sides) + 1
}

// SequenceRoller replays a fixed sequence of rolls, then wraps around.
// Test helper for forcing skill-check and damage outcomes.
type SequenceRoller struct {
	Rolls []int
	next  int
}

func (s *SequenceRoller) Roll(sides int) int {
	if len(s.Rolls) == 0 {
		return 1
	}
	v := s.Rolls[s.next%len(s.Rolls)]
	s.next++
	return v
}
