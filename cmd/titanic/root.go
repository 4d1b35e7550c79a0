package main

import (
	"fmt"

	"github.com/bcongdon/titanic"
	"github.com/bcongdon/titanic/pipeline"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps command-line flags to their viper keys.
var flagKeys = map[string]string{
	"out":             "working_location",
	"split-size":      "split_size",
	"map-bin-size":    "map_bin_size",
	"reduce-bins":     "reduce_bins",
	"max-concurrency": "max_concurrency",
	"skip-header":     "skip_header",
	"max-line-size":   "max_line_size",
	"on-invalid":      "on_invalid",
	"test-fraction":   "test_fraction",
	"sample-fraction": "sample_fraction",
	"seed":            "seed",
	"verbose":         "verbose",
	"progress":        "progress",
	"cleanup":         "cleanup",
}

func addFlags(fs *pflag.FlagSet) {
	fs.StringP("out", "o", ".", "Output directory (can be local or in S3)")
	fs.Int64("split-size", 100*1024*1024, "Maximum input split size in bytes")
	fs.Int64("map-bin-size", 512*1024*1024, "Maximum bytes of input per mapper")
	fs.Uint("reduce-bins", 10, "Number of intermediate bins and output parts")
	fs.Int("max-concurrency", 500, "Maximum number of concurrent tasks")
	fs.Bool("skip-header", true, "Drop the first line of every input file")
	fs.Int("max-line-size", titanic.DefaultMaxLineSize, "Input lines this long or longer are rejected")
	fs.String("on-invalid", "skip", "What to do with rejected records: skip or abort")
	fs.Float64("test-fraction", 0.3, "Fraction of passengers assigned to the test subset")
	fs.Float64("sample-fraction", 1.0, "Fraction of passengers to keep")
	fs.Uint32("seed", 42, "Seed for subset assignment and sampling")
	fs.BoolP("verbose", "v", false, "Enable debug logging")
	fs.Bool("progress", true, "Show progress bars")
	fs.Bool("cleanup", true, "Remove intermediate files after the run")
}

func bindFlags(fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		if err := viper.BindPFlag(key, fs.Lookup(name)); err != nil {
			return fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	return nil
}

// settings are the pipeline options resolved from flags, config and environment.
type settings struct {
	policy   pipeline.Policy
	splitter pipeline.Splitter
	sampler  pipeline.Sampler
}

func loadSettings() (settings, error) {
	policy, err := pipeline.ParsePolicy(viper.GetString("on_invalid"))
	if err != nil {
		return settings{}, err
	}

	testFraction := viper.GetFloat64("test_fraction")
	if err := pipeline.ValidateFraction("test_fraction", testFraction); err != nil {
		return settings{}, err
	}
	sampleFraction := viper.GetFloat64("sample_fraction")
	if err := pipeline.ValidateFraction("sample_fraction", sampleFraction); err != nil {
		return settings{}, err
	}

	seed := viper.GetUint32("seed")
	return settings{
		policy:   policy,
		splitter: pipeline.Splitter{TestFraction: testFraction, Seed: seed},
		sampler:  pipeline.Sampler{Fraction: sampleFraction, Seed: seed},
	}, nil
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "titanic",
		Short:         "Turn passenger CSV records into labeled feature vectors",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := bindFlags(cmd.Flags()); err != nil {
				return err
			}
			titanic.LoadConfig()

			log.SetOutput(cmd.ErrOrStderr())
			if viper.GetBool("verbose") {
				log.SetLevel(log.DebugLevel)
			} else {
				log.SetLevel(log.InfoLevel)
			}
			return nil
		},
	}
	addFlags(root.PersistentFlags())

	root.AddCommand(
		newFeaturizeCommand(),
		newSummarizeCommand(),
		newParseCommand(),
	)
	return root
}
