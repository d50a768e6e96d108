package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/rtm0/sowfa/internal/job"
)

var (
	jobFile     = flag.String("job", "sowfa.toml", "path to a TOML job file")
	concurrency = flag.Int("concurrency", runtime.NumCPU(), "number of boundary patches written concurrently")
)

func main() {
	flag.Parse()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	j, err := job.Load(*jobFile)
	if err != nil {
		logger.Error("Could not load job file", "err", err)
		os.Exit(1)
	}
	if err := j.Validate(); err != nil {
		logger.Error("Invalid job file", "path", *jobFile, "err", err)
		os.Exit(1)
	}

	start := time.Now()
	if j.Internal != nil {
		if err := j.Internal.Run(logger); err != nil {
			logger.Error("Internal coupling failed", "err", err)
			os.Exit(1)
		}
	}

	patchCh := make(chan *job.Patch)
	errCh := make(chan error, len(j.Patch))
	var wg sync.WaitGroup
	for range max(1, *concurrency) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range patchCh {
				if err := p.Run(logger); err != nil {
					logger.Error("Boundary coupling failed", "patch", p.Name, "err", err)
					errCh <- err
				}
			}
		}()
	}
	for i := range j.Patch {
		patchCh <- &j.Patch[i]
	}
	close(patchCh)
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		os.Exit(1)
	}
	logger.Info("done", "patches", len(j.Patch), "in", time.Since(start).Round(time.Millisecond))
}
