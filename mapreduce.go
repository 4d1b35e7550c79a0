package titanic

import "errors"

// ValueIterator iterates over a sequence of values.
// This is used during the Reduce phase, wherein a reduce task
// iterates over all values for a particular key.
type ValueIterator struct {
	values chan string
}

// Iter iterates over all the values in the iterator.
// Values arrive in the order the shuffle read them.
func (v *ValueIterator) Iter() <-chan string {
	return v.values
}

func newValueIterator(c chan string) ValueIterator {
	return ValueIterator{
		values: c,
	}
}

// Mapper defines the interface for a Map task.
// A non-nil error aborts the mapper's bin and, through it, the whole run.
type Mapper interface {
	Map(key, value string, emitter Emitter) error
}

// ErrLineTooLong is reported for input lines longer than the configured
// maximum line size.
var ErrLineTooLong = errors.New("input line too long")

// LineRejecter is an optional Mapper extension. The job passes lines it
// could not read in full to RejectLine instead of failing the mapper; a
// non-nil return still fails it.
type LineRejecter interface {
	RejectLine(err error, emitter Emitter) error
}

// Reducer defines the interface for a Reduce task.
// Implementations must drain values even when they fail early.
type Reducer interface {
	Reduce(key string, values ValueIterator, emitter Emitter) error
}

// keyValue is used to store intermediate shuffle data as key-value pairs
type keyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
