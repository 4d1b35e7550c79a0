// Package pipeline provides the jobs that run the passenger record
// transformer over whole datasets: featurization into train/test labeled
// points, and a summary of label and feature counts.
package pipeline

import (
	"fmt"

	"github.com/bcongdon/titanic"
	"github.com/bcongdon/titanic/record"
)

// Featurizer is a Mapper and Reducer that converts passenger lines into
// labeled points. Points are shuffled under their subset, so a reduce bin
// holds at most two keys. Output lines look like "train\t1 1:0 2:1 3:1".
type Featurizer struct {
	Splitter Splitter
	Sampler  Sampler
	Policy   Policy

	rejected rejections
}

// NewFeaturizer returns a Featurizer that keeps every record.
func NewFeaturizer(splitter Splitter, policy Policy) *Featurizer {
	return &Featurizer{
		Splitter: splitter,
		Sampler:  Sampler{Fraction: 1},
		Policy:   policy,
	}
}

// Map parses one line and emits its labeled point keyed by subset.
func (f *Featurizer) Map(key, value string, emitter titanic.Emitter) error {
	passenger, err := record.SplitFields(value)
	if err != nil {
		return f.rejected.handle(f.Policy, value, err)
	}
	point, err := passenger.LabeledPoint()
	if err != nil {
		return f.rejected.handle(f.Policy, value, err)
	}
	if !f.Sampler.Keep(passenger.ID) {
		return nil
	}
	return emitter.Emit(string(f.Splitter.Assign(passenger.ID)), point.String())
}

// RejectLine applies the policy to a line too long to read.
func (f *Featurizer) RejectLine(err error, emitter titanic.Emitter) error {
	return f.rejected.handle(f.Policy, "", longLineError(err))
}

// Reduce writes every point of a subset.
func (f *Featurizer) Reduce(key string, values titanic.ValueIterator, emitter titanic.Emitter) error {
	for value := range values.Iter() {
		var point record.LabeledPoint
		if err := point.UnmarshalText([]byte(value)); err != nil {
			return fmt.Errorf("%s point: %w", key, err)
		}
		if err := emitter.Emit(key, point.String()); err != nil {
			return err
		}
	}
	return nil
}

// Rejected returns the number of skipped lines per error kind.
func (f *Featurizer) Rejected() map[string]int64 {
	return f.rejected.snapshot()
}
