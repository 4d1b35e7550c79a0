package main

import (
	"bufio"
	"fmt"

	"github.com/bcongdon/titanic"
	"github.com/bcongdon/titanic/pipeline"
	"github.com/bcongdon/titanic/record"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rejectionReporter is implemented by jobs that count skipped records.
type rejectionReporter interface {
	Rejected() map[string]int64
}

func runJob(cmd *cobra.Command, inputs []string, job *titanic.Job, reporter rejectionReporter) error {
	driver := titanic.NewDriver(job, titanic.WithInputs(inputs...))
	if err := driver.Run(cmd.Context()); err != nil {
		return err
	}

	rejected := reporter.Rejected()
	if len(rejected) == 0 {
		return nil
	}
	fields := log.Fields{}
	for kind, n := range rejected {
		fields[kind] = n
	}
	log.WithFields(fields).Warn("Skipped rejected records")
	return nil
}

func newFeaturizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "featurize FILE...",
		Short: "Write train/test labeled points for every passenger",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			featurizer := pipeline.NewFeaturizer(s.splitter, s.policy)
			featurizer.Sampler = s.sampler
			return runJob(cmd, args, titanic.NewJob(featurizer, featurizer), featurizer)
		},
	}
}

func newSummarizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize FILE...",
		Short: "Count records, labels and feature values",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			summarizer := &pipeline.Summarizer{Policy: s.policy}
			return runJob(cmd, args, titanic.NewJob(summarizer, summarizer), summarizer)
		},
	}
}

func newParseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "parse",
		Short: "Convert passenger lines from stdin into labeled points on stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}

			out := bufio.NewWriter(cmd.OutOrStdout())
			defer out.Flush()

			scanner := bufio.NewScanner(cmd.InOrStdin())
			skipHeader := viper.GetBool("skip_header")
			for lineNum := 1; scanner.Scan(); lineNum++ {
				if lineNum == 1 && skipHeader {
					continue
				}
				line := scanner.Text()
				if line == "" {
					continue
				}

				point, err := record.ParseLine(line)
				if err != nil {
					if s.policy == pipeline.Abort {
						return fmt.Errorf("line %d: %w", lineNum, err)
					}
					log.WithFields(log.Fields{
						"kind": record.Kind(err),
						"line": lineNum,
					}).Warnf("Skipping rejected record: %s", err)
					continue
				}
				if _, err := fmt.Fprintln(out, point); err != nil {
					return err
				}
			}
			return scanner.Err()
		},
	}
}
