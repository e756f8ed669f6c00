// cache-example runs a cache hierarchy in one process, and serves
// its HTTP control surface, or runs the end-to-end scenarios.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/gyuho/mlcache/cache"
	"github.com/gyuho/mlcache/cluster"
	"github.com/gyuho/mlcache/observe"
	"github.com/gyuho/mlcache/pkg/osutil"
	"github.com/gyuho/mlcache/pkg/xlog"
)

var logger = xlog.NewLogger("cache-example", xlog.INFO)

type config struct {
	listen   string
	scenario bool

	logLevel string
	logJSON  bool

	cluster cluster.Config
}

func parseFlags(args []string) (config, error) {
	var cfg config
	fs := flag.NewFlagSet("cache-example", flag.ContinueOnError)

	fs.StringVar(&cfg.listen, "listen", "localhost:2379", "address of the HTTP control surface")
	fs.BoolVar(&cfg.scenario, "scenario", false, "run the end-to-end scenarios and exit")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "CRITICAL, ERROR, WARN, INFO or DEBUG")
	fs.BoolVar(&cfg.logJSON, "log-json", false, "log in JSON")

	fs.IntVar(&cfg.cluster.L1Num, "l1", 2, "number of first-level caches")
	fs.IntVar(&cfg.cluster.L2PerL1, "l2-per-l1", 2, "number of second-level caches per first-level cache")
	fs.IntVar(&cfg.cluster.ClientNum, "clients", 2, "number of clients")
	fs.IntVar(&cfg.cluster.SeedNum, "seed-num", cluster.DefaultSeedNum, "number of seeded keys")
	fs.Int64Var(&cfg.cluster.RandSeed, "rand-seed", 0, "seed of the random source, zero to use the clock")
	fs.StringVar(&cfg.cluster.BackendPath, "backend", "", "bolt file to load the store from and save it to")
	fs.DurationVar(&cfg.cluster.ClientTimeout, "client-timeout", cache.DefaultClientTimeout, "client reply timeout")
	fs.DurationVar(&cfg.cluster.CacheTimeout, "cache-timeout", cache.DefaultCacheTimeout, "cache upstream timeout")
	fs.DurationVar(&cfg.cluster.StoreTimeout, "store-timeout", cache.DefaultStoreTimeout, "store vote timeout")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() != 0 {
		return cfg, fmt.Errorf("unexpected arguments %v", fs.Args())
	}
	return cfg, nil
}

// setupLogging selects the formatter and level of every logger,
// and returns the sink for protocol events.
func setupLogging(cfg config) (observe.Sink, error) {
	lvl, err := xlog.ParseLogLevel(cfg.logLevel)
	if err != nil {
		return nil, err
	}
	name := "default"
	if cfg.logJSON {
		name = "json"
	}
	ft, err := xlog.NewFormatter(name, os.Stderr)
	if err != nil {
		return nil, err
	}
	xlog.SetFormatter(ft)
	xlog.SetGlobalMaxLogLevel(lvl)

	return observe.NewLogSink(xlog.NewLogger("event", lvl), xlog.DEBUG), nil
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	sink, err := setupLogging(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cfg.cluster.Observer = sink

	if cfg.scenario {
		failed := 0
		for _, r := range runScenarios(cfg.cluster) {
			if r.Err != nil {
				failed++
				logger.Errorf("FAIL %q (%v, took %v)", r.Name, r.Err, r.Took)
				continue
			}
			logger.Infof("PASS %q (took %v)", r.Name, r.Took)
		}
		if failed > 0 {
			os.Exit(1)
		}
		return
	}

	c, err := cluster.Start(cfg.cluster)
	if err != nil {
		logger.Fatal(err)
	}
	osutil.RegisterInterruptHandler(c.Stop)
	osutil.WaitForInterruptSignals(syscall.SIGINT, syscall.SIGTERM)

	srv := &http.Server{
		Addr:    cfg.listen,
		Handler: &handler{c: c, timeout: 5 * time.Second},
	}
	logger.Infof("serving on %q", cfg.listen)
	if err = srv.ListenAndServe(); err != nil {
		logger.Fatal(err)
	}
}
