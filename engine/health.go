package engine

import (
	"math"
	"sync"
	"time"
)

// Health scoring rules:
//   - Success: errScore -= 0.5 (min 0)
//   - Failure: errScore += 1.0
//
// Retirement triggers (any one):
//   - errScore >= retireScore
//   - useCount >= maxUses
//   - age >= maxAge
type Health struct {
	mu          sync.Mutex
	errScore    float64
	useCount    int
	created     time.Time
	retireScore float64
	maxUses     int
	maxAge      time.Duration
}

// NewHealth creates a fresh tracker. Zero limits fall back to 3 / 50 / 50m.
func NewHealth(retireScore float64, maxUses int, maxAge time.Duration) *Health {
	if retireScore <= 0 {
		retireScore = 3.0
	}
	if maxUses <= 0 {
		maxUses = 50
	}
	if maxAge <= 0 {
		maxAge = 50 * time.Minute
	}
	return &Health{
		created:     time.Now(),
		retireScore: retireScore,
		maxUses:     maxUses,
		maxAge:      maxAge,
	}
}

// RecordSuccess decreases the error score (min 0).
func (h *Health) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore = math.Max(0, h.errScore-0.5)
}

// RecordFailure increases the error score.
func (h *Health) RecordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore += 1.0
}

// ShouldRetire returns true if the context should be replaced.
func (h *Health) ShouldRetire() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errScore >= h.retireScore ||
		h.useCount >= h.maxUses ||
		time.Since(h.created) >= h.maxAge
}

// Reset clears the score after the underlying context was replaced.
func (h *Health) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errScore = 0
	h.useCount = 0
	h.created = time.Now()
}

// Score returns the current error score.
func (h *Health) Score() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errScore
}
