package pipeline

import (
	"fmt"
	"strconv"

	"github.com/bcongdon/titanic"
	"github.com/bcongdon/titanic/record"
)

// Summary keys
const (
	RecordsKey  = "records"
	rejectedKey = "rejected="
)

// Summarizer is a Mapper and Reducer that counts records, labels and
// feature values. Rejected lines are counted under "rejected=<kind>" when
// the policy is Skip.
type Summarizer struct {
	Policy Policy

	rejected rejections
}

// Map emits a count of one for every statistic the line contributes to.
func (s *Summarizer) Map(key, value string, emitter titanic.Emitter) error {
	point, err := record.ParseLine(value)
	if err != nil {
		return s.reject(value, err, emitter)
	}

	features := point.Features()
	keys := []string{
		RecordsKey,
		fmt.Sprintf("label=%g", point.Label()),
		fmt.Sprintf("class=%g", features[0]),
		fmt.Sprintf("adults=%g", features[1]),
		fmt.Sprintf("women=%g", features[2]),
	}
	for _, k := range keys {
		if err := emitter.Emit(k, "1"); err != nil {
			return err
		}
	}
	return nil
}

// RejectLine counts a line too long to read as a structural rejection.
func (s *Summarizer) RejectLine(err error, emitter titanic.Emitter) error {
	return s.reject("", longLineError(err), emitter)
}

func (s *Summarizer) reject(line string, err error, emitter titanic.Emitter) error {
	if err := s.rejected.handle(s.Policy, line, err); err != nil {
		return err
	}
	return emitter.Emit(rejectedKey+record.Kind(err), "1")
}

// Reduce sums the counts of a key.
func (s *Summarizer) Reduce(key string, values titanic.ValueIterator, emitter titanic.Emitter) error {
	var total int64
	for value := range values.Iter() {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("count for %q: %w", key, err)
		}
		total += n
	}
	return emitter.Emit(key, strconv.FormatInt(total, 10))
}

// Rejected returns the number of skipped lines per error kind.
func (s *Summarizer) Rejected() map[string]int64 {
	return s.rejected.snapshot()
}
