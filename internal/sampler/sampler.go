// Package sampler decides whether a captured error is forwarded.
package sampler

import "math/rand"

// Sampler keeps an error iff a uniform draw from [0,1) is below the rate.
type Sampler struct {
	float64 func() float64
}

// New returns a Sampler drawing from src, or from the global source when src
// is nil.
func New(src func() float64) *Sampler {
	if src == nil {
		src = rand.Float64
	}
	return &Sampler{float64: src}
}

// Keep reports whether an error should be forwarded at the given rate.
// A rate of 0 keeps nothing and a rate of 1 keeps everything.
func (s *Sampler) Keep(rate float64) bool {
	return s.float64() < rate
}
