// Package bloom backs the snapshot domain prefilter with bits-and-blooms.
package bloom

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/rr-guard/internal/guard/repos/rulestore"
)

const defaultFPRate = 0.01

type factory struct{}

// NewFactory returns a BloomFactory sized with bits-and-blooms estimates.
func NewFactory() rulestore.BloomFactory { return factory{} }

// New returns a filter for capacity keys at fpRate. Zero capacity is treated
// as one key; an fpRate outside (0,1) falls back to 1%.
func (factory) New(capacity uint64, fpRate float64) rulestore.BloomFilter {
	if capacity == 0 {
		capacity = 1
	}
	if !(fpRate > 0 && fpRate < 1) {
		fpRate = defaultFPRate
	}
	return &filter{bf: bitsbloom.NewWithEstimates(uint(capacity), fpRate)}
}

// filter is written only while its snapshot is built, so probes take no lock.
type filter struct {
	bf *bitsbloom.BloomFilter
}

func (f *filter) Add(key []byte) { f.bf.Add(key) }

func (f *filter) MightContain(key []byte) bool { return f.bf.Test(key) }
