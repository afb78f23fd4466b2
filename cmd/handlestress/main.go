// handlestress drives a handle manager from several goroutines and prints its statistics
package main

import (
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/handles/handleutils"
	"github.com/vkngwrapper/handles/vwm"
	"github.com/vkngwrapper/handles/vwm/config"
)

// frozen is a value the default shared-object predicate routes to the shared block map
type frozen struct {
	worker, index int
}

func (frozen) ImmutableShared() {}

func main() {
	configPath := flag.String("config", "", "TOML configuration file")
	workers := flag.Int("workers", 0, "Number of goroutines, each with its own execution context")
	handles := flag.Int("handles", 0, "Handles allocated by each worker")
	sharedEvery := flag.Int("shared-every", -1, "Allocate every nth handle from the shared block map (0 disables)")
	freeAll := flag.Bool("free", false, "Call FreeAllBlocks once the workers are done")
	verbose := flag.Bool("v", false, "Log block lifecycle events")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: handlestress [options]\n\n")
		fmt.Fprintf(os.Stderr, "Allocates handles concurrently, checks that every handle resolves to its wrapper,\n")
		fmt.Fprintf(os.Stderr, "and prints the manager statistics as JSON.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "workers":
			cfg.Stress.Workers = *workers
		case "handles":
			cfg.Stress.Handles = *handles
		case "shared-every":
			cfg.Stress.SharedEvery = *sharedEvery
		case "free":
			cfg.Stress.FreeAll = *freeAll
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	collector := vwm.NewRuntimeCollector()
	language := vwm.NewLanguage(logger, cfg.LanguageOptions(collector))
	manager := vwm.New(logger, language, vwm.CreateOptions{Flags: cfg.CreateFlags()})

	if err := run(logger, manager, collector, cfg); err != nil {
		logger.Error("handlestress failed", slog.Any("error", err))
		fmt.Println(manager.BuildStatsString(true))
		os.Exit(1)
	}

	fmt.Println(manager.BuildStatsString(true))
}

func run(logger *slog.Logger, manager *vwm.Manager, collector *vwm.RuntimeCollector, cfg *config.Config) error {
	var mismatches atomic.Int64
	errs := make([]error, cfg.Stress.Workers)

	var wg sync.WaitGroup
	for worker := 0; worker < cfg.Stress.Workers; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			bad, err := runWorker(manager, worker, cfg.Stress)
			mismatches.Add(int64(bad))
			errs[worker] = err
		}(worker)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	logger.Info("workers finished",
		slog.Int("Workers", cfg.Stress.Workers),
		slog.Int("HandlesPerWorker", cfg.Stress.Handles),
		slog.Int("QueuedBlocks", collector.QueuedBlocks()),
		slog.Bool("DebugValidation", handleutils.DebugEnabled),
	)
	collector.RunMarkers()

	if cfg.Stress.FreeAll {
		manager.FreeAllBlocks()
	}

	if err := manager.Validate(); err != nil {
		return errors.Wrap(err, "manager state is inconsistent")
	}
	if bad := mismatches.Load(); bad > 0 {
		return errors.Newf("%d handles did not resolve to their wrapper", bad)
	}
	return nil
}

func runWorker(manager *vwm.Manager, worker int, cfg config.StressConfig) (int, error) {
	ctx := manager.NewExecutionContext()
	defer ctx.Close()

	wrappers := make([]*vwm.Wrapper, 0, cfg.Handles)
	handles := make([]int64, 0, cfg.Handles)

	for i := 0; i < cfg.Handles; i++ {
		var wrapper *vwm.Wrapper
		if cfg.SharedEvery > 0 && i%cfg.SharedEvery == 0 {
			wrapper = manager.Wrap(frozen{worker: worker, index: i})
		} else {
			wrapper = manager.WrapLong(int64(i))
		}

		handle, err := manager.ToNative(wrapper, ctx)
		if err != nil {
			return 0, errors.Wrapf(err, "worker %d, handle %d", worker, i)
		}
		wrappers = append(wrappers, wrapper)
		handles = append(handles, handle)
	}

	mismatches := 0
	for i, handle := range handles {
		found, ok := manager.WrapperForHandle(handle)
		if !ok || found != wrappers[i] {
			mismatches++
		}
	}
	return mismatches, nil
}
