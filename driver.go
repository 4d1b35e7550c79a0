package titanic

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bcongdon/titanic/internal/pkg/tfs"
	humanize "github.com/dustin/go-humanize"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	pb "gopkg.in/cheggaaa/pb.v1"
)

// ErrNoInputs is returned by Run when the driver has no input locations.
var ErrNoInputs = errors.New("no inputs")

// Driver controls the execution of a Job
type Driver struct {
	job      *Job
	config   *config
	executor executor
	runID    string
}

// config configures a Driver's execution of jobs
type config struct {
	Inputs          []string
	SplitSize       int64
	MapBinSize      int64
	ReduceBins      uint
	MaxConcurrency  int
	WorkingLocation string
	SkipHeader      bool
	MaxLineSize     int
	Progress        bool
	Cleanup         bool
}

func newConfig() *config {
	LoadConfig() // Load viper config from settings file(s) and environment
	return &config{
		Inputs:          []string{},
		SplitSize:       viper.GetInt64("split_size"),
		MapBinSize:      viper.GetInt64("map_bin_size"),
		ReduceBins:      viper.GetUint("reduce_bins"),
		MaxConcurrency:  viper.GetInt("max_concurrency"),
		WorkingLocation: viper.GetString("working_location"),
		SkipHeader:      viper.GetBool("skip_header"),
		MaxLineSize:     viper.GetInt("max_line_size"),
		Progress:        viper.GetBool("progress"),
		Cleanup:         viper.GetBool("cleanup"),
	}
}

// Option allows configuration of a Driver
type Option func(*config)

// NewDriver creates a new Driver with the provided job and optional configuration
func NewDriver(job *Job, options ...Option) *Driver {
	d := &Driver{
		job:      job,
		executor: localExecutor{},
		runID:    uuid.New().String(),
	}

	c := newConfig()
	for _, f := range options {
		f(c)
	}

	if c.SplitSize > c.MapBinSize {
		log.Warn("Configured Split Size is larger than Map Bin size")
		c.SplitSize = c.MapBinSize
	}
	if c.ReduceBins == 0 {
		log.Warn("Configured Reduce Bins is zero, using one bin")
		c.ReduceBins = 1
	}
	if c.MaxLineSize < 1 {
		c.MaxLineSize = DefaultMaxLineSize
	}
	if c.MaxConcurrency < 1 {
		c.MaxConcurrency = 1
	}

	d.config = c
	log.Debugf("Loaded config: %#v", c)

	return d
}

// WithSplitSize sets the SplitSize of the Driver
func WithSplitSize(s int64) Option {
	return func(c *config) {
		c.SplitSize = s
	}
}

// WithMapBinSize sets the MapBinSize of the Driver
func WithMapBinSize(s int64) Option {
	return func(c *config) {
		c.MapBinSize = s
	}
}

// WithReduceBins sets the number of intermediate shuffle bins, which is
// also the number of output parts.
func WithReduceBins(n uint) Option {
	return func(c *config) {
		c.ReduceBins = n
	}
}

// WithMaxConcurrency bounds the number of tasks run at once
func WithMaxConcurrency(n int) Option {
	return func(c *config) {
		c.MaxConcurrency = n
	}
}

// WithWorkingLocation sets the location and filesystem backend of the Driver
func WithWorkingLocation(location string) Option {
	return func(c *config) {
		c.WorkingLocation = location
	}
}

// WithInputs specifies job inputs (i.e. input files/directories)
func WithInputs(inputs ...string) Option {
	return func(c *config) {
		c.Inputs = append(c.Inputs, inputs...)
	}
}

// WithSkipHeader controls whether the first line of every input file is
// dropped before mapping.
func WithSkipHeader(skip bool) Option {
	return func(c *config) {
		c.SkipHeader = skip
	}
}

// WithMaxLineSize sets the length in bytes at which an input line is
// rejected instead of mapped.
func WithMaxLineSize(n int) Option {
	return func(c *config) {
		c.MaxLineSize = n
	}
}

// WithProgress toggles the per-phase progress bars.
func WithProgress(show bool) Option {
	return func(c *config) {
		c.Progress = show
	}
}

// WithCleanup toggles removal of intermediate shuffle files after the run.
func WithCleanup(cleanup bool) Option {
	return func(c *config) {
		c.Cleanup = cleanup
	}
}

func (d *Driver) newProgressBar(total int, prefix string) *pb.ProgressBar {
	bar := pb.New(total).Prefix(prefix)
	if d.config.Progress {
		bar.Output = os.Stderr
	} else {
		bar.NotPrint = true
		bar.ManualUpdate = true
	}
	return bar.Start()
}

func (d *Driver) runMapPhase(ctx context.Context, inputBins [][]inputSplit) error {
	bar := d.newProgressBar(len(inputBins), "Map")
	defer bar.Finish()

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(d.config.MaxConcurrency))
	for binID, bin := range inputBins {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		bID, b := uint(binID), bin
		g.Go(func() error {
			defer sem.Release(1)
			defer bar.Increment()
			if err := d.executor.RunMapper(gctx, d.job, bID, b); err != nil {
				return fmt.Errorf("mapper %d: %w", bID, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (d *Driver) runReducePhase(ctx context.Context) error {
	bar := d.newProgressBar(int(d.job.intermediateBins), "Reduce")
	defer bar.Finish()

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(d.config.MaxConcurrency))
	for binID := uint(0); binID < d.job.intermediateBins; binID++ {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		bID := binID
		g.Go(func() error {
			defer sem.Release(1)
			defer bar.Increment()
			if err := d.executor.RunReducer(gctx, d.job, bID); err != nil {
				return fmt.Errorf("reducer %d: %w", bID, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// cleanup removes the run's intermediate shuffle files.
func (d *Driver) cleanup() error {
	fs := d.job.outputFS
	files, err := fs.ListFiles(d.job.scratchDir)
	if err != nil {
		return err
	}
	for _, file := range files {
		if err := fs.Delete(file.Name); err != nil {
			return err
		}
	}
	return fs.Delete(d.job.scratchDir)
}

// removeOutputs deletes output parts left in the working location by an
// earlier run, which may have used more reduce bins.
func (d *Driver) removeOutputs() error {
	fs := d.job.outputFS
	parts, err := fs.ListFiles(fs.Join(d.config.WorkingLocation, "output-part-*"))
	if err != nil {
		return err
	}
	for _, part := range parts {
		log.Debugf("Removing previous output: %s", part.Name)
		if err := fs.Delete(part.Name); err != nil {
			return err
		}
	}
	return nil
}

// Run executes the driver's job: a map phase over every input split followed
// by a reduce phase over every intermediate bin.
func (d *Driver) Run(ctx context.Context) (err error) {
	logger := log.WithField("run", d.runID)
	if len(d.config.Inputs) == 0 {
		return ErrNoInputs
	}

	start := time.Now()
	inputFS, err := tfs.InferFilesystem(d.config.Inputs[0])
	if err != nil {
		return fmt.Errorf("input filesystem: %w", err)
	}
	outputFS, err := tfs.InferFilesystem(d.config.WorkingLocation)
	if err != nil {
		return fmt.Errorf("output filesystem: %w", err)
	}

	d.job.config = d.config
	d.job.inputFS = inputFS
	d.job.outputFS = outputFS
	d.job.intermediateBins = d.config.ReduceBins
	d.job.scratchDir = outputFS.Join(d.config.WorkingLocation, ".titanic-"+d.runID)

	inputSplits := d.job.inputSplits(d.config.Inputs, d.config.SplitSize)
	if len(inputSplits) == 0 {
		logger.Warn("No input splits")
		return nil
	}
	logger.Debugf("Number of job input splits: %d", len(inputSplits))

	inputBins := packInputSplits(inputSplits, d.config.MapBinSize)
	logger.Debugf("Number of job input bins: %d", len(inputBins))

	if err := d.removeOutputs(); err != nil {
		return fmt.Errorf("removing previous output: %w", err)
	}

	if d.config.Cleanup {
		defer func() {
			if cleanupErr := d.cleanup(); cleanupErr != nil {
				logger.Errorf("Could not remove intermediate files: %s", cleanupErr)
				if err == nil {
					err = cleanupErr
				}
			}
		}()
	}

	if err := d.runMapPhase(ctx, inputBins); err != nil {
		return fmt.Errorf("map phase: %w", err)
	}
	if err := d.runReducePhase(ctx); err != nil {
		return fmt.Errorf("reduce phase: %w", err)
	}

	stats := d.job.Stats()
	logger.WithFields(log.Fields{
		"records":  stats.RecordsRead,
		"read":     humanize.Bytes(uint64(stats.BytesRead)),
		"written":  humanize.Bytes(uint64(stats.BytesWritten)),
		"duration": time.Since(start),
	}).Info("Job complete")

	return nil
}
