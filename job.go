package titanic

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/bcongdon/titanic/internal/pkg/tfs"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Job is the logical container for a Map and a Reduce task run over the
// lines of one or more input files.
type Job struct {
	Map    Mapper
	Reduce Reducer

	inputFS          tfs.FileSystem
	outputFS         tfs.FileSystem
	config           *config
	scratchDir       string
	intermediateBins uint

	recordsRead  int64
	bytesRead    int64
	bytesWritten int64
}

// Stats summarizes the work a Job has done so far.
type Stats struct {
	RecordsRead  int64
	BytesRead    int64
	BytesWritten int64
}

// NewJob creates a new job from a Mapper and Reducer.
func NewJob(mapper Mapper, reducer Reducer) *Job {
	return &Job{
		Map:    mapper,
		Reduce: reducer,
		config: &config{},
	}
}

// Stats returns the job's record and byte counters.
func (j *Job) Stats() Stats {
	return Stats{
		RecordsRead:  atomic.LoadInt64(&j.recordsRead),
		BytesRead:    atomic.LoadInt64(&j.bytesRead),
		BytesWritten: atomic.LoadInt64(&j.bytesWritten),
	}
}

// runMapper runs the mapper over every split of a bin.
func (j *Job) runMapper(ctx context.Context, mapperID uint, splits []inputSplit) error {
	emitter := newMapperEmitter(j.intermediateBins, mapperID, j.scratchDir, j.outputFS)

	for _, split := range splits {
		if err := j.processMapperSplit(ctx, split, emitter); err != nil {
			if closeErr := emitter.close(); closeErr != nil {
				log.Debugf("Closing intermediate files of mapper %d: %s", mapperID, closeErr)
			}
			return fmt.Errorf("%s [%d-%d]: %w", split.Filename, split.StartOffset, split.EndOffset, err)
		}
	}

	atomic.AddInt64(&j.bytesWritten, emitter.bytesWritten())
	return emitter.close()
}

// processMapperSplit feeds every line owned by split to the mapper. Blank
// lines are not records and are passed over.
func (j *Job) processMapperSplit(ctx context.Context, split inputSplit, emitter Emitter) error {
	inputSource, err := j.inputFS.OpenReader(split.Filename, split.readOffset())
	if err != nil {
		return err
	}
	defer inputSource.Close()

	lines := newSplitReader(inputSource, split, j.config.MaxLineSize, j.config.SkipHeader)
	defer func() {
		atomic.AddInt64(&j.bytesRead, lines.BytesRead())
	}()

	for lines.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}

		if lines.TooLong() {
			if err := j.rejectLongLine(split, lines, emitter); err != nil {
				return err
			}
			atomic.AddInt64(&j.recordsRead, 1)
			continue
		}

		line := lines.Line()
		if line == "" {
			continue
		}
		if err := j.Map.Map("", line, emitter); err != nil {
			return err
		}
		atomic.AddInt64(&j.recordsRead, 1)
	}
	return lines.Err()
}

// rejectLongLine hands an overlong line to the mapper if it is a
// LineRejecter, and fails the split otherwise.
func (j *Job) rejectLongLine(split inputSplit, lines *splitReader, emitter Emitter) error {
	err := fmt.Errorf("%w: line at byte %d of %s exceeds %d bytes",
		ErrLineTooLong, lines.Offset(), split.Filename, lines.maxLine)

	rejecter, ok := j.Map.(LineRejecter)
	if !ok {
		return err
	}
	return rejecter.RejectLine(err, emitter)
}

// runReducer reduces every intermediate file written for binID into a
// single output part.
func (j *Job) runReducer(ctx context.Context, binID uint) error {
	pattern := j.outputFS.Join(j.scratchDir, fmt.Sprintf("map-bin%d-*", binID))
	intermediateFiles, err := j.outputFS.ListFiles(pattern)
	if err != nil {
		return err
	}

	// Open emitter for output data
	path := j.outputFS.Join(j.config.WorkingLocation, fmt.Sprintf("output-part-%d", binID))
	emitWriter, err := j.outputFS.OpenWriter(path)
	if err != nil {
		return err
	}
	emitter := newReducerEmitter(emitWriter)

	err = j.shuffle(ctx, intermediateFiles, emitter)
	closeErr := emitter.close()
	atomic.AddInt64(&j.bytesWritten, emitter.bytesWritten())
	if err != nil {
		return err
	}
	return closeErr
}

// shuffle groups intermediate key-value pairs by key and runs one reducer
// per key.
func (j *Job) shuffle(ctx context.Context, files []tfs.FileInfo, emitter Emitter) error {
	keyChannels := make(map[string]chan string)
	var reducers errgroup.Group

	startReducer := func(key string) chan string {
		keyChan := make(chan string)
		keyIter := newValueIterator(keyChan)
		reducers.Go(func() error {
			err := j.Reduce.Reduce(key, keyIter, emitter)
			// Keep the feeder moving if the reducer returned early
			for range keyChan {
			}
			return err
		})
		return keyChan
	}

	feed := func(file tfs.FileInfo) error {
		reader, err := j.outputFS.OpenReader(file.Name, 0)
		if err != nil {
			return err
		}
		defer reader.Close()
		log.Debugf("Reducing on intermediate file: %s", file.Name)

		decoder := json.NewDecoder(reader)
		for decoder.More() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var kv keyValue
			if err := decoder.Decode(&kv); err != nil {
				return fmt.Errorf("%s: %w", file.Name, err)
			}

			keyChan, exists := keyChannels[kv.Key]
			if !exists {
				keyChan = startReducer(kv.Key)
				keyChannels[kv.Key] = keyChan
			}
			keyChan <- kv.Value
		}
		return nil
	}

	var feedErr error
	for _, file := range files {
		if feedErr = feed(file); feedErr != nil {
			break
		}
	}

	// Close key channels to signal that all intermediate data has been read
	for _, keyChan := range keyChannels {
		close(keyChan)
	}
	reduceErr := reducers.Wait()

	if feedErr != nil {
		return feedErr
	}
	return reduceErr
}

// inputSplits lists every file matched by inputs and cuts it into splits
// of at most maxSplitSize bytes.
func (j *Job) inputSplits(inputs []string, maxSplitSize int64) []inputSplit {
	files := make([]tfs.FileInfo, 0)
	for _, inputPath := range inputs {
		fileInfos, err := j.inputFS.ListFiles(inputPath)
		if err != nil {
			log.Warnf("Unable to load input file: %s (%s)", inputPath, err)
			continue
		}
		if len(fileInfos) == 0 {
			log.Warnf("No files match input: %s", inputPath)
		}
		files = append(files, fileInfos...)
	}

	splits := make([]inputSplit, 0)
	for _, inputFileInfo := range files {
		splits = append(splits, splitInputFile(inputFileInfo, maxSplitSize)...)
	}
	return splits
}
