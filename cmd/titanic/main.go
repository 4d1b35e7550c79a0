// Command titanic featurizes and summarizes passenger survival CSV files.
//
//	titanic featurize -o out/ data/*.csv
//	titanic summarize s3://bucket/passengers.csv
//	titanic parse < passengers.csv
package main

import (
	"context"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		log.Error(err)
		stop()
		os.Exit(1)
	}
}
