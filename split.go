package titanic

import (
	"bufio"
	"bytes"
	"io"

	"github.com/bcongdon/titanic/internal/pkg/tfs"
	humanize "github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
)

// inputSplit contains the information about a contiguous chunk of an input file.
// startOffset and endOffset are inclusive. For example, if the startOffset was 10
// and the endOffset was 14, then the inputSplit would describe a 5 byte chunk
// of the file.
//
// A line belongs to the split that holds its first byte.
type inputSplit struct {
	Filename    string // The file that the input split operates on
	StartOffset int64  // The starting byte index of the split in the file
	EndOffset   int64  // The ending byte index (inclusive) of the split in the file
}

// Size returns the number of bytes that the inputSplit spans
func (i inputSplit) Size() int64 {
	return i.EndOffset - i.StartOffset + 1
}

// readOffset is where a reader of the split starts. It is one byte before
// StartOffset so that a line beginning exactly at StartOffset is not taken
// for the tail of the previous split's last line.
func (i inputSplit) readOffset() int64 {
	if i.StartOffset == 0 {
		return 0
	}
	return i.StartOffset - 1
}

func min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func splitInputFile(file tfs.FileInfo, maxSplitSize int64) []inputSplit {
	splits := make([]inputSplit, 0)

	for startOffset := int64(0); startOffset < file.Size; startOffset += maxSplitSize {
		endOffset := min(startOffset+maxSplitSize-1, file.Size-1)
		newSplit := inputSplit{
			Filename:    file.Name,
			StartOffset: startOffset,
			EndOffset:   endOffset,
		}
		splits = append(splits, newSplit)
	}

	return splits
}

// inputBin is a collection of inputSplits.
type inputBin struct {
	splits []inputSplit
	// The total size of the inputBin. (The sum of the size of all splits)
	size int64
}

// packInputSplits partitions inputSplits into bins.
// The combined size of each bin will be no greater than maxBinSize
func packInputSplits(splits []inputSplit, maxBinSize int64) [][]inputSplit {
	if len(splits) == 0 {
		return [][]inputSplit{}
	}

	bins := make([]*inputBin, 1)
	bins[0] = &inputBin{
		splits: make([]inputSplit, 0),
		size:   0,
	}

	// Partition splits into bins using a naive Next-Fit packing algorithm
	for _, split := range splits {
		currBin := bins[len(bins)-1]

		if currBin.size+split.Size() <= maxBinSize {
			currBin.splits = append(currBin.splits, split)
			currBin.size += split.Size()
		} else {
			newBin := &inputBin{
				splits: []inputSplit{split},
				size:   split.Size(),
			}
			bins = append(bins, newBin)
		}
	}

	binnedSplits := make([][]inputSplit, 0, len(bins))
	totalSize := int64(0)
	for _, bin := range bins {
		if len(bin.splits) == 0 {
			continue
		}
		totalSize += bin.size
		binnedSplits = append(binnedSplits, bin.splits)
	}
	if len(binnedSplits) > 0 {
		log.Debugf("Average input bin size: %s", humanize.Bytes(uint64(totalSize/int64(len(binnedSplits)))))
	}
	return binnedSplits
}

// countingSplitFunc wraps a bufio.SplitFunc and keeps track of the number of bytes advanced.
// Upon each scan, the value of *bytesRead will be incremented by the number of bytes
// that the SplitFunc advances.
func countingSplitFunc(split bufio.SplitFunc, bytesRead *int64) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (advance int, token []byte, err error) {
		adv, tok, err := split(data, atEOF)
		(*bytesRead) += int64(adv)
		return adv, tok, err
	}
}

// DefaultMaxLineSize bounds the length of an input line when no limit is
// configured.
const DefaultMaxLineSize = 1024 * 1024

// splitReader yields the lines owned by an inputSplit: those whose first
// byte lies inside the split. Lines of maxLine bytes or more are not
// returned; Next reports them through TooLong and skips their contents.
type splitReader struct {
	split      inputSplit
	scanner    *bufio.Scanner
	maxLine    int
	skipHeader bool

	primed     bool
	bytesRead  int64
	lineStart  int64
	discarding bool
	tooLong    bool
}

// newSplitReader reads split from r, which must be positioned at
// split.readOffset().
func newSplitReader(r io.Reader, split inputSplit, maxLine int, skipHeader bool) *splitReader {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineSize
	}
	s := &splitReader{
		split:      split,
		scanner:    bufio.NewScanner(r),
		maxLine:    maxLine,
		skipHeader: skipHeader,
	}
	s.scanner.Buffer(make([]byte, 0, int(min(int64(maxLine), bufio.MaxScanTokenSize))), maxLine)
	s.scanner.Split(countingSplitFunc(s.scanLines, &s.bytesRead))
	return s
}

// scanLines is bufio.ScanLines with a length bound. An overlong line is
// consumed in buffer-sized pieces and then surfaced as one empty token.
func (s *splitReader) scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if s.discarding {
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			s.discarding, s.tooLong = false, true
			return i + 1, []byte{}, nil
		}
		if atEOF {
			s.discarding, s.tooLong = false, true
			return len(data), []byte{}, nil
		}
		return len(data), nil, nil
	}

	advance, token, err := bufio.ScanLines(data, atEOF)
	if token != nil && len(token) >= s.maxLine {
		s.tooLong = true
		return advance, []byte{}, err
	}
	if token == nil && err == nil && !atEOF && len(data) >= s.maxLine {
		s.discarding = true
		return len(data), nil, nil
	}
	return advance, token, err
}

// Next advances to the next line owned by the split.
func (s *splitReader) Next() bool {
	if !s.primed {
		s.primed = true
		// Drop the partial line owned by the previous split, or the file header.
		if s.split.StartOffset != 0 || s.skipHeader {
			if !s.scanner.Scan() {
				return false
			}
		}
	}

	s.lineStart = s.split.readOffset() + s.bytesRead
	if s.lineStart > s.split.EndOffset {
		return false
	}
	s.tooLong = false
	return s.scanner.Scan()
}

// Line returns the current line without its line ending.
func (s *splitReader) Line() string {
	return s.scanner.Text()
}

// Offset returns the file offset of the current line's first byte.
func (s *splitReader) Offset() int64 {
	return s.lineStart
}

// TooLong reports whether the current line reached the length limit.
func (s *splitReader) TooLong() bool {
	return s.tooLong
}

// BytesRead returns the number of bytes consumed so far.
func (s *splitReader) BytesRead() int64 {
	return s.bytesRead
}

func (s *splitReader) Err() error {
	return s.scanner.Err()
}
