package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/bcongdon/titanic"
	"github.com/bcongdon/titanic/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memEmitter struct {
	mu      sync.Mutex
	emitted map[string][]string
}

func newMemEmitter() *memEmitter {
	return &memEmitter{emitted: make(map[string][]string)}
}

func (m *memEmitter) Emit(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitted[key] = append(m.emitted[key], value)
	return nil
}

const passengers = `"id","class","age","sex","survived"
"1","1st","adults","women","yes"
"2","3rd","child","man","no"
"3","2nd","adults","man","no"
"4","1st","adults","robot","yes"
"5","3rd","child","women"
"6","2nd","child","women","yes"
`

func TestFeaturizerMap(t *testing.T) {
	featurizer := NewFeaturizer(Splitter{TestFraction: 0}, Skip)
	emitter := newMemEmitter()

	require.NoError(t, featurizer.Map("", `"1","1st","adults","women","yes"`, emitter))
	require.NoError(t, featurizer.Map("", `"2","3rd","child","man","no"`, emitter))
	assert.Equal(t, map[string][]string{
		"train": {"1 1:0 2:1 3:1", "0 1:2 2:0 3:0"},
	}, emitter.emitted)
}

func TestFeaturizerRejectLine(t *testing.T) {
	tooLong := fmt.Errorf("%w: line at byte 10", titanic.ErrLineTooLong)

	skipping := NewFeaturizer(Splitter{}, Skip)
	assert.NoError(t, skipping.RejectLine(tooLong, newMemEmitter()))
	assert.Equal(t, map[string]int64{"structural": 1}, skipping.Rejected())

	aborting := NewFeaturizer(Splitter{}, Abort)
	err := aborting.RejectLine(tooLong, newMemEmitter())
	assert.True(t, record.IsStructural(err))
	assert.Contains(t, err.Error(), "line at byte 10")
}

func TestFeaturizerSkipsRejectedRecords(t *testing.T) {
	featurizer := NewFeaturizer(Splitter{TestFraction: 0.5}, Skip)
	emitter := newMemEmitter()

	assert.NoError(t, featurizer.Map("", `4,1st,adults,robot,yes`, emitter))
	assert.NoError(t, featurizer.Map("", `5,3rd,child,women`, emitter))
	assert.NoError(t, featurizer.Map("", `6,x,child,women,no`, emitter))
	assert.Empty(t, emitter.emitted)

	assert.Equal(t, map[string]int64{"validation": 1, "structural": 2}, featurizer.Rejected())
}

func TestFeaturizerAbortsOnRejectedRecords(t *testing.T) {
	featurizer := NewFeaturizer(Splitter{}, Abort)
	emitter := newMemEmitter()

	err := featurizer.Map("", `4,1st,adults,robot,yes`, emitter)
	var ve *record.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "sex", ve.Field)
	assert.Empty(t, featurizer.Rejected())
}

func TestFeaturizerSampling(t *testing.T) {
	featurizer := NewFeaturizer(Splitter{}, Skip)
	featurizer.Sampler = Sampler{Fraction: 0}
	emitter := newMemEmitter()

	require.NoError(t, featurizer.Map("", `1,1st,adults,women,yes`, emitter))
	assert.Empty(t, emitter.emitted)
}

func TestSummarizerMap(t *testing.T) {
	summarizer := &Summarizer{Policy: Skip}
	emitter := newMemEmitter()

	require.NoError(t, summarizer.Map("", `2,3rd,child,man,no`, emitter))
	require.NoError(t, summarizer.Map("", `bad`, emitter))

	assert.Equal(t, map[string][]string{
		"records":             {"1"},
		"label=0":             {"1"},
		"class=2":             {"1"},
		"adults=0":            {"1"},
		"women=0":             {"1"},
		"rejected=structural": {"1"},
	}, emitter.emitted)
}

func TestSummarizerRejectLine(t *testing.T) {
	summarizer := &Summarizer{Policy: Skip}
	emitter := newMemEmitter()

	require.NoError(t, summarizer.RejectLine(titanic.ErrLineTooLong, emitter))
	assert.Equal(t, map[string][]string{"rejected=structural": {"1"}}, emitter.emitted)
	assert.Equal(t, map[string]int64{"structural": 1}, summarizer.Rejected())
}

func TestSummarizerAbort(t *testing.T) {
	summarizer := &Summarizer{Policy: Abort}
	err := summarizer.Map("", `1,1st,adults,women,unknown`, newMemEmitter())
	assert.True(t, record.IsValidation(err))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("skip")
	assert.NoError(t, err)
	assert.Equal(t, Skip, p)

	p, err = ParsePolicy(" ABORT ")
	assert.NoError(t, err)
	assert.Equal(t, Abort, p)
	assert.Equal(t, "abort", p.String())

	_, err = ParsePolicy("retry")
	assert.Error(t, err)
}

func runJob(t *testing.T, mapper titanic.Mapper, reducer titanic.Reducer, contents string, options ...titanic.Option) (string, error) {
	t.Helper()

	inputDir, outDir := t.TempDir(), t.TempDir()
	input := filepath.Join(inputDir, "passengers.csv")
	require.NoError(t, ioutil.WriteFile(input, []byte(contents), 0600))

	options = append([]titanic.Option{
		titanic.WithInputs(input),
		titanic.WithWorkingLocation(outDir),
		titanic.WithSplitSize(32),
		titanic.WithMapBinSize(64),
		titanic.WithReduceBins(4),
		titanic.WithSkipHeader(true),
		titanic.WithProgress(false),
	}, options...)
	driver := titanic.NewDriver(titanic.NewJob(mapper, reducer), options...)
	return outDir, driver.Run(context.Background())
}

func readLines(t *testing.T, dir string) []string {
	t.Helper()

	parts, err := filepath.Glob(filepath.Join(dir, "output-part-*"))
	require.NoError(t, err)

	lines := make([]string, 0)
	for _, part := range parts {
		contents, err := ioutil.ReadFile(part)
		require.NoError(t, err)
		for _, line := range strings.Split(string(contents), "\n") {
			if line != "" {
				lines = append(lines, line)
			}
		}
	}
	sort.Strings(lines)
	return lines
}

func TestFeaturizeJob(t *testing.T) {
	featurizer := NewFeaturizer(Splitter{TestFraction: 0}, Skip)
	outDir, err := runJob(t, featurizer, featurizer, passengers)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"train\t0 1:1 2:1 3:0",
		"train\t0 1:2 2:0 3:0",
		"train\t1 1:0 2:1 3:1",
		"train\t1 1:1 2:0 3:1",
	}, readLines(t, outDir))
	assert.Equal(t, map[string]int64{"validation": 1, "structural": 1}, featurizer.Rejected())
}

const invalidSexPassengers = `"id","class","age","sex","survived"
"1","1st","adults","women","yes"
"2","3rd","child","man","no"
"3","2nd","adults","robot","no"
"4","2nd","child","women","yes"
`

const shortRecordPassengers = `"id","class","age","sex","survived"
"1","1st","adults","women","yes"
"2","3rd","child"
"3","2nd","adults","man","no"
`

func TestFeaturizeJobAbortOnValidationError(t *testing.T) {
	featurizer := NewFeaturizer(Splitter{}, Abort)
	_, err := runJob(t, featurizer, featurizer, invalidSexPassengers)
	require.Error(t, err)

	var ve *record.ValidationError
	require.True(t, errors.As(err, &ve), "%v", err)
	assert.Equal(t, "sex", ve.Field)
	assert.Equal(t, "robot", ve.Value)
}

func TestFeaturizeJobAbortOnStructuralError(t *testing.T) {
	featurizer := NewFeaturizer(Splitter{}, Abort)
	_, err := runJob(t, featurizer, featurizer, shortRecordPassengers)
	require.Error(t, err)

	var se *record.StructuralError
	require.True(t, errors.As(err, &se), "%v", err)
	assert.Equal(t, `"2","3rd","child"`, se.Line)
	assert.False(t, record.IsValidation(err))
}

func TestFeaturizeJobSkipsLongLines(t *testing.T) {
	contents := passengers + `"7","1st",` + strings.Repeat(`"adults",`, 10) + `"yes"` + "\n" +
		`"8","3rd","adults","man","yes"` + "\n"

	featurizer := NewFeaturizer(Splitter{TestFraction: 0}, Skip)
	outDir, err := runJob(t, featurizer, featurizer, contents, titanic.WithMaxLineSize(64))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"train\t0 1:1 2:1 3:0",
		"train\t0 1:2 2:0 3:0",
		"train\t1 1:0 2:1 3:1",
		"train\t1 1:1 2:0 3:1",
		"train\t1 1:2 2:1 3:0",
	}, readLines(t, outDir))
	assert.Equal(t, map[string]int64{"validation": 1, "structural": 2}, featurizer.Rejected())
}

// peakGoroutines records the goroutine count whenever a reduce starts.
type peakGoroutines struct {
	titanic.Reducer

	mu   sync.Mutex
	peak int
}

func (p *peakGoroutines) Reduce(key string, values titanic.ValueIterator, emitter titanic.Emitter) error {
	p.mu.Lock()
	if n := runtime.NumGoroutine(); n > p.peak {
		p.peak = n
	}
	p.mu.Unlock()
	return p.Reducer.Reduce(key, values, emitter)
}

func TestFeaturizeJobReducerGoroutinesDoNotGrowWithRecords(t *testing.T) {
	const rows = 5000

	var contents strings.Builder
	contents.WriteString("id,class,age,sex,survived\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&contents, "%d,%dst,adults,man,no\n", i, i%3+1)
	}

	featurizer := NewFeaturizer(Splitter{TestFraction: 0.3, Seed: 42}, Skip)
	reducer := &peakGoroutines{Reducer: featurizer}
	outDir, err := runJob(t, featurizer, reducer, contents.String(),
		titanic.WithSplitSize(16*1024),
		titanic.WithMapBinSize(32*1024),
	)
	require.NoError(t, err)

	assert.Len(t, readLines(t, outDir), rows)
	assert.True(t, reducer.peak < 100, "peak goroutines during reduce: %d", reducer.peak)
}

func TestSummarizeJob(t *testing.T) {
	summarizer := &Summarizer{Policy: Skip}
	outDir, err := runJob(t, summarizer, summarizer, passengers)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"adults=0\t2",
		"adults=1\t2",
		"class=0\t1",
		"class=1\t2",
		"class=2\t1",
		"label=0\t2",
		"label=1\t2",
		"records\t4",
		"rejected=structural\t1",
		"rejected=validation\t1",
		"women=0\t2",
		"women=1\t2",
	}, readLines(t, outDir))
}
