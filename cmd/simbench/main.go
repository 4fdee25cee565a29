package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"time"

	"go.uber.org/zap"

	"dauction/agents"
	"dauction/info"
	"dauction/sim"
)

func main() {
	episodes := flag.Int("episodes", 10000, "number of market episodes to run")
	buyers := flag.Int("buyers", 8, "buyers per episode")
	sellers := flag.Int("sellers", 8, "sellers per episode")
	maxRounds := flag.Int("max-rounds", 0, "round budget per episode (0 uses the default)")
	maxFactor := flag.Float64("max-factor", agents.DefaultMaxFactor, "quote spread factor for random traders")
	workers := flag.Int("workers", 0, "concurrent episodes (0 uses GOMAXPROCS)")
	seed := flag.Int64("seed", time.Now().UnixNano(), "seed for deterministic random streams")
	setting := flag.String("setting", "blackbox", "information setting: blackbox, bestoffers, lastdeals")
	depth := flag.Int("depth", info.DefaultDepth, "observation depth for bestoffers and lastdeals")
	verbose := flag.Bool("verbose", false, "log each batch at debug level")
	cpuProfile := flag.String("cpuprofile", "", "write cpu profile to file")
	memProfile := flag.String("memprofile", "", "write heap profile to file")
	flag.Parse()

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			panic(err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			panic(err)
		}
		defer pprof.StopCPUProfile()
	}

	var infoSetting info.Setting
	switch *setting {
	case "blackbox":
		infoSetting = info.BlackBox{}
	case "bestoffers":
		infoSetting = info.BestOffers{N: *depth}
	case "lastdeals":
		infoSetting = info.LastDeals{N: *depth}
	default:
		fmt.Fprintf(os.Stderr, "unknown setting %q\n", *setting)
		os.Exit(2)
	}

	var log *zap.Logger
	if *verbose {
		log = zap.Must(zap.NewDevelopment())
	} else {
		log = zap.NewNop()
	}
	defer func() { _ = log.Sync() }()

	runner := &sim.Runner{
		Episodes:  *episodes,
		Buyers:    *buyers,
		Sellers:   *sellers,
		MaxRounds: *maxRounds,
		MaxFactor: *maxFactor,
		Workers:   *workers,
		Seed:      *seed,
		Setting:   infoSetting,
		Log:       log,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	stats, err := runner.Run(ctx)
	elapsed := time.Since(start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run aborted: %v\n", err)
	}

	episodesPerSec := float64(stats.Episodes) / elapsed.Seconds()
	roundsPerSec := float64(stats.Rounds) / elapsed.Seconds()

	fmt.Printf("ran %d episodes in %s (%.0f episodes/s, %.0f rounds/s)\n",
		stats.Episodes, elapsed.Truncate(time.Millisecond), episodesPerSec, roundsPerSec)
	fmt.Printf("cleared %d trades at mean price %.2f, mean surplus %.2f\n",
		stats.Trades, stats.MeanPrice, stats.MeanSurplus)
	fmt.Printf("config: buyers=%d sellers=%d max-rounds=%d setting=%s workers=%d seed=%d\n",
		*buyers, *sellers, *maxRounds, *setting, *workers, *seed)

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err == nil {
			defer f.Close()
			_ = pprof.WriteHeapProfile(f)
		}
	}
}
