// ============================================================================
// Sparrow Job-Size Sampler
// ============================================================================
//
// Package: internal/sampler
// File: sampler.go
// Purpose: Pluggable tasks-per-job distribution (spec.md §4.3), ported from
// original_source/Python_codes/simulation.py's make_sampler.
//
// Each scheduler owns one Sampler built from its own *rand.Rand (spec.md
// §6: "Implementations MUST seed each scheduler's RNG independently").
//
// ============================================================================

package sampler

import (
	"math/rand"

	"github.com/ChuLiYu/sparrow/pkg/types"
)

// Sampler returns tasks-per-job on each call.
type Sampler interface {
	Sample() int
}

// New builds a Sampler for the given kind and parameters, validating the
// parameters eagerly so misconfiguration is a caller error (spec.md §7:
// "Sampler overflow ... rejected at configuration time").
func New(kind types.JobSizeKind, params types.JobSizeParams, rng *rand.Rand) (Sampler, error) {
	switch kind {
	case types.JobSizeFixed:
		k := params.Fixed
		if k == 0 {
			k = 3
		}
		return &fixedSampler{k: k}, nil

	case types.JobSizeUniform:
		lo, hi := params.Lo, params.Hi
		if lo == 0 && hi == 0 {
			lo, hi = 1, 10
		}
		if hi < lo {
			return nil, &types.ConfigError{Field: "jobsize.hi", Reason: "hi must be >= lo"}
		}
		return &uniformSampler{lo: lo, hi: hi, rng: rng}, nil

	case types.JobSizePowerLaw:
		choices := params.Choices
		if len(choices) == 0 {
			choices = []int{1, 2, 3, 4, 8, 16, 32, 64, 128}
		}
		weights := params.Weights
		if len(weights) == 0 {
			weights = make([]float64, len(choices))
			for i := range weights {
				weights[i] = 1.0 / float64(i+1)
			}
		}
		if len(weights) != len(choices) {
			return nil, &types.ConfigError{Field: "jobsize.weights", Reason: "must have the same length as choices"}
		}
		return &powerLawSampler{choices: choices, weights: weights, rng: rng}, nil

	case types.JobSizeMixed:
		max := params.Max
		if max == 0 {
			max = 200
		}
		return &mixedSampler{max: max, rng: rng}, nil

	default:
		return nil, &types.ConfigError{Field: "jobsize", Reason: "unknown kind " + string(kind)}
	}
}

func coerce(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

type fixedSampler struct{ k int }

func (s *fixedSampler) Sample() int { return coerce(s.k) }

type uniformSampler struct {
	lo, hi int
	rng    *rand.Rand
}

func (s *uniformSampler) Sample() int {
	return coerce(s.lo + s.rng.Intn(s.hi-s.lo+1))
}

// powerLawSampler is a weighted categorical draw over a fixed list of sizes
// (spec.md §4.3 "powerlaw").
type powerLawSampler struct {
	choices []int
	weights []float64
	rng     *rand.Rand
}

func (s *powerLawSampler) Sample() int {
	total := 0.0
	for _, w := range s.weights {
		total += w
	}
	r := s.rng.Float64() * total
	acc := 0.0
	for i, w := range s.weights {
		acc += w
		if r < acc {
			return coerce(s.choices[i])
		}
	}
	return coerce(s.choices[len(s.choices)-1])
}

// mixedSampler implements spec.md §4.3 "mixed": 70% U{1,5}, 20% U{6,20},
// 10% U{21,200}, each capped by max.
type mixedSampler struct {
	max int
	rng *rand.Rand
}

func (s *mixedSampler) Sample() int {
	r := s.rng.Float64()
	switch {
	case r < 0.7:
		return coerce(uniformBetween(s.rng, 1, min(5, s.max)))
	case r < 0.9:
		return coerce(uniformBetween(s.rng, 6, min(20, s.max)))
	default:
		return coerce(uniformBetween(s.rng, 21, min(200, s.max)))
	}
}

func uniformBetween(rng *rand.Rand, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return lo + rng.Intn(hi-lo+1)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
