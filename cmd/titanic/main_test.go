package main

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/bcongdon/titanic/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passengers = `"id","class","age","sex","survived"
"1","1st","adults","women","yes"
"2","3rd","child","man","no"
"3","2nd","adults","robot","no"
"4","2nd","child","women","yes"
`

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newRootCommand()
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func readParts(t *testing.T, dir string) []string {
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

func TestParseCommand(t *testing.T) {
	stdout, stderr, err := execute(t, passengers, "parse")
	require.NoError(t, err)

	assert.Equal(t, "1 1:0 2:1 3:1\n0 1:2 2:0 3:0\n1 1:1 2:0 3:1\n", stdout)
	assert.Contains(t, stderr, "validation")
}

func TestParseCommandWithoutHeader(t *testing.T) {
	stdout, _, err := execute(t, "1,1st,adults,women,yes\n", "parse", "--skip-header=false")
	require.NoError(t, err)
	assert.Equal(t, "1 1:0 2:1 3:1\n", stdout)
}

func TestParseCommandAbort(t *testing.T) {
	stdout, _, err := execute(t, passengers, "parse", "--on-invalid", "abort")
	require.Error(t, err)

	assert.True(t, record.IsValidation(err))
	assert.Contains(t, err.Error(), "line 4")
	assert.Equal(t, "1 1:0 2:1 3:1\n0 1:2 2:0 3:0\n", stdout)
}

func TestParseCommandRejectsBadSettings(t *testing.T) {
	_, _, err := execute(t, "", "parse", "--on-invalid", "retry")
	assert.Error(t, err)

	_, _, err = execute(t, "", "parse", "--test-fraction", "1.5")
	assert.Error(t, err)
}

func TestFeaturizeCommand(t *testing.T) {
	inputDir, outDir := t.TempDir(), t.TempDir()
	input := filepath.Join(inputDir, "passengers.csv")
	require.NoError(t, ioutil.WriteFile(input, []byte(passengers), 0600))

	_, _, err := execute(t, "", "featurize",
		"--out", outDir,
		"--progress=false",
		"--split-size", "40",
		"--map-bin-size", "80",
		"--reduce-bins", "2",
		"--test-fraction", "1",
		input,
	)
	require.NoError(t, err)

	parts, err := filepath.Glob(filepath.Join(outDir, "output-part-*"))
	require.NoError(t, err)
	assert.Len(t, parts, 2)

	assert.Equal(t, []string{
		"test\t0 1:2 2:0 3:0",
		"test\t1 1:0 2:1 3:1",
		"test\t1 1:1 2:0 3:1",
	}, readParts(t, outDir))
}

func TestSummarizeCommand(t *testing.T) {
	inputDir, outDir := t.TempDir(), t.TempDir()
	input := filepath.Join(inputDir, "passengers.csv")
	require.NoError(t, ioutil.WriteFile(input, []byte(passengers), 0600))

	_, stderr, err := execute(t, "", "summarize",
		"--out", outDir,
		"--progress=false",
		"--reduce-bins", "3",
		input,
	)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Skipped rejected records")

	assert.Equal(t, []string{
		"adults=0\t2",
		"adults=1\t1",
		"class=0\t1",
		"class=1\t1",
		"class=2\t1",
		"label=0\t1",
		"label=1\t2",
		"records\t3",
		"rejected=validation\t1",
		"women=0\t1",
		"women=1\t2",
	}, readParts(t, outDir))
}

func TestSummarizeCommandAbort(t *testing.T) {
	input := filepath.Join(t.TempDir(), "passengers.csv")
	require.NoError(t, ioutil.WriteFile(input, []byte(passengers), 0600))

	_, _, err := execute(t, "", "summarize",
		"--out", t.TempDir(),
		"--progress=false",
		"--on-invalid", "abort",
		input,
	)
	require.Error(t, err)
	assert.True(t, record.IsValidation(err), "%v", err)
}

func TestFeaturizeCommandRequiresInputs(t *testing.T) {
	_, _, err := execute(t, "", "featurize")
	assert.Error(t, err)
}
