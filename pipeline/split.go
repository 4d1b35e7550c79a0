package pipeline

import (
	"fmt"
	"math"

	"github.com/spaolacci/murmur3"
)

// Subset names the half of a train/test split a record belongs to.
type Subset string

// Subsets produced by a Splitter.
const (
	Train Subset = "train"
	Test  Subset = "test"
)

// unitHash maps id to [0, 1) using a seeded murmur3 hash.
func unitHash(id string, seed uint32) float64 {
	return float64(murmur3.Sum32WithSeed([]byte(id), seed)) / (math.MaxUint32 + 1.0)
}

// Splitter assigns records to the train or test subset by hashing their
// passenger id, so that any re-run puts an id in the same subset.
type Splitter struct {
	TestFraction float64
	Seed         uint32
}

// Assign returns the subset for id.
func (s Splitter) Assign(id string) Subset {
	if unitHash(id, s.Seed) < s.TestFraction {
		return Test
	}
	return Train
}

// Sampler keeps a deterministic pseudo-random fraction of records.
type Sampler struct {
	Fraction float64
	Seed     uint32
}

// Keep reports whether the record with the given id is in the sample.
func (s Sampler) Keep(id string) bool {
	if s.Fraction >= 1 {
		return true
	}
	// Offset the seed so sampling is independent of the train/test split.
	return unitHash(id, s.Seed^0x5bd1e995) < s.Fraction
}

// ValidateFraction checks that a configured fraction lies in [0, 1].
func ValidateFraction(name string, f float64) error {
	if math.IsNaN(f) || f < 0 || f > 1 {
		return fmt.Errorf("%s must be between 0 and 1, got %v", name, f)
	}
	return nil
}
