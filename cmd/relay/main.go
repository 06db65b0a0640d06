// Command relay runs the time-windowed message relay: it drains a
// buffer topic and republishes to a target topic under configured
// clock-time windows and rate limits. It is a single long-running
// process with no subcommands; exit code 0 on clean stop, nonzero on
// init failure (spec.md §6).
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bufferbridge/internal/broker"
	"bufferbridge/internal/manager"
	"bufferbridge/internal/metrics"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to a scheduler or manager YAML config file")
	demo := flag.Bool("demo", false, "seed the in-memory broker with sample traffic on buffer-topic (the relay always runs against the in-memory broker)")
	metricsAddr := flag.String("metrics-addr", "", "address to serve Prometheus metrics on, e.g. :9090 (disabled if empty)")
	flag.Parse()

	loadDotEnv()
	logger := initLogger()

	m := metrics.New(prometheus.DefaultRegisterer)

	inMemory := broker.NewBroker()
	if *demo {
		seedDemoTraffic(inMemory, logger)
	}
	factory := broker.NewInMemoryFactory(inMemory)

	mgr, err := manager.LoadFromConfig(*configPath, factory, logger, m)
	if err != nil {
		logger.Error("failed to load config", "err", err)
		return 1
	}

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, logger)
	}

	if err := mgr.StartAll(); err != nil {
		logger.Error("failed to start schedulers", "err", err)
		return 1
	}
	logger.Info("relay started", "schedulers", mgr.Count())

	waitForShutdownSignal()

	logger.Info("shutting down")
	mgr.StopAll()
	logger.Info("relay stopped cleanly")
	return 0
}

// loadDotEnv layers a .env file over the process environment, probing
// ., .., and ../.. in turn so the process finds it whether started from
// the repo root or a subdirectory. Absence in all three is not an
// error.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../.env"); err != nil {
			if err := godotenv.Load("../../.env"); err != nil {
				slog.Default().Warn("no .env file found in current or parent directories")
			}
		}
	}
}

func initLogger() *slog.Logger {
	var handler slog.Handler
	if os.Getenv("LOG_FORMAT") == "text" {
		handler = slog.NewTextHandler(os.Stdout, nil)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "err", err)
	}
}

func waitForShutdownSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}

func seedDemoTraffic(b *broker.Broker, logger *slog.Logger) {
	for i := 0; i < 20; i++ {
		b.Publish("buffer-topic", "demo", fmt.Sprintf("key-%d", i), []byte(fmt.Sprintf("demo message %d", i)))
	}
	logger.Info("seeded demo traffic onto buffer-topic", "count", 20)
}
