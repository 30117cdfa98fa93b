// Package loadshape generates skewed account-selection patterns for
// exercising a branch under concurrent transfer load, the way a benchmark
// driver picks "hot" accounts rather than sampling uniformly.
//
// Uses github.com/pingcap/go-ycsb's pkg/generator for its Zipfian key
// generator, the same one YCSB-style workloads use to pick hot keys,
// repurposed here to pick which of a branch's N seeded accounts a
// simulated transfer should hit.
package loadshape

import (
	"math/rand"

	"github.com/pingcap/go-ycsb/pkg/generator"
)

// zipfianConstant is the skew applied to the zipfian picker: the same
// value benchmark drivers commonly pin for a "few hot keys" distribution.
const zipfianConstant = 0.99

// numberGenerator is the subset of go-ycsb's generator surface AccountPicker
// needs. generator.Zipfian and generator.Uniform both implement it via
// pointer receivers; there is no shared exported interface in the package
// itself, so this is declared locally.
type numberGenerator interface {
	Next(r *rand.Rand) int64
}

// AccountPicker hands out account indices in [0, n) according to some
// distribution, letting a stress test concentrate load on a hot subset.
type AccountPicker struct {
	n   int64
	gen numberGenerator
	r   *rand.Rand
}

// NewZipfian builds a picker biased toward low-numbered accounts, the
// typical "a few accounts see most traffic" shape.
func NewZipfian(n int, seed int64) *AccountPicker {
	if n < 1 {
		n = 1
	}
	return &AccountPicker{
		n:   int64(n),
		gen: generator.NewZipfianWithRange(0, int64(n)-1, zipfianConstant),
		r:   rand.New(rand.NewSource(seed)),
	}
}

// NewUniform builds a picker that samples accounts with equal probability,
// used as the baseline to compare skewed runs against.
func NewUniform(n int, seed int64) *AccountPicker {
	if n < 1 {
		n = 1
	}
	return &AccountPicker{
		n:   int64(n),
		gen: generator.NewUniform(0, int64(n)-1),
		r:   rand.New(rand.NewSource(seed)),
	}
}

// Next returns the next account index, 0-based.
func (p *AccountPicker) Next() int {
	return int(p.gen.Next(p.r))
}
