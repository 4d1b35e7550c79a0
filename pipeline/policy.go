package pipeline

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bcongdon/titanic/record"
	log "github.com/sirupsen/logrus"
)

// Policy decides what happens to a line the transformer rejects.
type Policy int

const (
	// Skip logs and counts the rejected line, then moves on.
	Skip Policy = iota
	// Abort fails the mapper, which cancels the whole run.
	Abort
)

func (p Policy) String() string {
	switch p {
	case Skip:
		return "skip"
	case Abort:
		return "abort"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy parses "skip" or "abort".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "skip":
		return Skip, nil
	case "abort":
		return Abort, nil
	}
	return Skip, fmt.Errorf("unknown invalid-record policy %q (want skip or abort)", s)
}

// rejections counts rejected lines by error kind.
type rejections struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (r *rejections) add(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int64)
	}
	r.counts[kind]++
}

func (r *rejections) snapshot() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64, len(r.counts))
	for k, v := range r.counts {
		out[k] = v
	}
	return out
}

// handle applies the policy to a transformer error. It returns nil when the
// line should be skipped.
func (r *rejections) handle(policy Policy, line string, err error) error {
	kind := record.Kind(err)
	if policy == Abort {
		return err
	}
	r.add(kind)
	log.WithFields(log.Fields{
		"kind": kind,
		"line": line,
	}).Warnf("Skipping rejected record: %s", err)
	return nil
}

// longLineError reports an unreadable overlong line as a structural error.
func longLineError(err error) error {
	return &record.StructuralError{Reason: err.Error()}
}
