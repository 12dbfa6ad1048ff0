package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dip-ladder-bot/internal/config"
	"dip-ladder-bot/internal/engine"
	"dip-ladder-bot/internal/exec"
	"dip-ladder-bot/internal/logging"
	"dip-ladder-bot/internal/replay"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	pricesPath := flag.String("prices", "", "CSV file of tick,symbol,price rows")
	seed := flag.Int64("seed", 0, "jitter seed, overrides strategy.jitter_seed when non-zero")
	jitter := flag.Float64("jitter", -1, "jitter fraction, overrides strategy.jitter when >= 0")
	flag.Parse()

	if *pricesPath == "" {
		fatal(fmt.Errorf("-prices is required"))
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	strat := cfg.Strategy
	if *seed != 0 {
		strat.JitterSeed = *seed
	}
	if *jitter >= 0 {
		strat.Jitter = *jitter
	}
	if strat.Jitter > 0 {
		config.ApplyJitter(&strat, strat.JitterSeed, strat.Jitter)
	}
	eng, err := engine.New(strat, log)
	if err != nil {
		fatal(err)
	}
	executor := exec.New(exec.NewPaper(cfg.Execution), nil, cfg.Execution, log)

	f, err := os.Open(*pricesPath)
	if err != nil {
		fatal(err)
	}
	frames, err := replay.ReadFrames(f)
	_ = f.Close()
	if err != nil {
		fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sum, err := replay.Run(ctx, eng, executor, frames, log)
	if err != nil {
		fatal(err)
	}
	log.Info("replay finished",
		zap.Int("ticks", sum.Ticks),
		zap.Int("entries", sum.Entries),
		zap.Int("dcas", sum.DCAs),
		zap.Int("exits", sum.Exits),
		zap.Int("failed", sum.Failed),
	)
	fmt.Printf("ticks=%d entries=%d dcas=%d exits=%d rejected_quotes=%d failed=%d\n",
		sum.Ticks, sum.Entries, sum.DCAs, sum.Exits, sum.Rejected, sum.Failed)
	fmt.Printf("balance=%.4f realized=%.4f open=%d mark=%.4f equity=%.4f\n",
		sum.Balance, sum.Realized, sum.Open, sum.MarkValue, sum.Equity)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "replay: %v\n", err)
	os.Exit(1)
}
