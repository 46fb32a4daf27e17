package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alanwang67/replicated_files/client"
	"github.com/alanwang67/replicated_files/config"
	"github.com/alanwang67/replicated_files/metrics"
	"github.com/alanwang67/replicated_files/server"
	"github.com/alanwang67/replicated_files/storage"
	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

func main() {
	if len(os.Args) < 3 {
		log.Fatalf("Usage: %s [client|server] [name]", os.Args[0])
	}

	if err := config.LoadEnv(); err != nil {
		log.Fatalf("%v", err)
	}

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("Can't load config: %v", err)
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Bad log level %q: %v", cfg.LogLevel, err)
	}
	log.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	name := os.Args[2]
	switch os.Args[1] {
	case "server":
		runServer(ctx, cfg, name)
	case "client":
		runClient(ctx, cfg, name)
	default:
		log.Fatalf("Unknown command: %s", os.Args[1])
	}
}

func runServer(ctx context.Context, cfg *config.Config, name string) {
	self, peers, dir, err := cfg.Resolve(name)
	if err != nil {
		log.Fatalf("%v", err)
	}

	store, err := storage.New(dir)
	if err != nil {
		log.Fatalf("Can't open storage directory %s: %v", dir, err)
	}
	if cfg.TruncateOnStart {
		if err := store.TruncateAll(); err != nil {
			log.Fatalf("Can't truncate %s: %v", dir, err)
		}
		log.Infof("Truncated every file in %s", dir)
	}
	for _, f := range cfg.Files {
		if err := store.Create(f); err != nil {
			log.Fatalf("Can't create %s: %v", f, err)
		}
	}

	s := server.New(self, peers, store)
	s.ConnectRounds = cfg.Connect.Rounds
	s.ConnectDelay = cfg.Connect.Delay()

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	if err := s.Start(); err != nil {
		log.Fatalf("Server %s encountered an error: %v", name, err)
	}
}

func runClient(ctx context.Context, cfg *config.Config, name string) {
	cc, err := cfg.Client(name)
	if err != nil {
		log.Fatalf("%v", err)
	}

	servers, err := cfg.Identities(cc.Servers)
	if err != nil {
		log.Fatalf("%v", err)
	}

	instructions, err := cc.Workload()
	if err != nil {
		log.Fatalf("Can't build workload for %s: %v", name, err)
	}

	c := client.New(name, servers)
	if cc.Rate > 0 {
		c.Limiter = rate.NewLimiter(rate.Limit(cc.Rate), 1)
	}
	if err := c.Connect(ctx); err != nil {
		log.Fatalf("Client %s: %v", name, err)
	}
	defer c.Close()

	results, err := c.Run(ctx, instructions)
	if err != nil {
		log.Warnf("Client %s stopped early: %v", name, err)
	}

	saveMetrics(name, results)
}

func saveMetrics(name string, results []metrics.Metric) {
	if len(results) == 0 {
		log.Warnf("Client %s recorded no operations", name)
		return
	}

	dir := filepath.Join("metrics", name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Fatalf("Can't create %s: %v", dir, err)
	}

	if err := metrics.SaveJSON(results, filepath.Join(dir, "metrics.json")); err != nil {
		log.Errorf("%v", err)
	}
	if err := metrics.SaveCSV(results, filepath.Join(dir, "latency.csv"), filepath.Join(dir, "throughput.csv")); err != nil {
		log.Errorf("%v", err)
	}
	if err := metrics.PlotLatency(results, filepath.Join(dir, "latency.png")); err != nil {
		log.Errorf("%v", err)
	}
	if err := metrics.PlotThroughput(results, filepath.Join(dir, "throughput.png")); err != nil {
		log.Errorf("%v", err)
	}

	summary := metrics.Summarize(results)
	log.Infof("Client %s: %d writes, %d failed, mean latency %.3fms, max %.3fms; metrics saved to %s",
		name, summary.Operations, summary.Failures, summary.MeanLatency*1000, summary.MaxLatency*1000, dir)
}
