package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mqtt-query-bridge/config"
	"mqtt-query-bridge/internal/bridge"
	"mqtt-query-bridge/internal/logger"
	"mqtt-query-bridge/internal/metrics"
	"mqtt-query-bridge/internal/server"
	"mqtt-query-bridge/internal/stats"
)

func main() {
	configPath := flag.String("config", "", "path to config file (empty = defaults and environment only)")

	// Optional override flags
	brokerOverride := flag.String("broker", "", "override broker address, e.g. tcp://host:1883 or nats://host:4222")
	topicsOverride := flag.String("topics", "", "override comma separated topic filters")
	httpAddrOverride := flag.String("http-addr", "", "override query server address")
	metricsAddrOverride := flag.String("metrics-addr", "", "override metrics server address (empty = use config)")
	metricsPathOverride := flag.String("metrics-path", "", "override metrics endpoint path (empty = use config)")
	metricsIntervalOverride := flag.Duration("metrics-interval", 0, "override metrics collection interval (0 = use config)")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	cfg.ApplyOverrides(
		*brokerOverride,
		splitTopics(*topicsOverride),
		*httpAddrOverride,
		*metricsAddrOverride,
		*metricsPathOverride,
		*metricsIntervalOverride,
	)

	logger, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	var metricsService *metrics.Metrics
	var metricsServer *http.Server
	reg := prometheus.NewRegistry()

	if cfg.Metrics.Enabled {
		metricsService, err = metrics.NewMetrics(reg)
		if err != nil {
			logger.Fatal("failed to create metrics service", "error", err)
		}

		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			Registry:          reg,
			EnableOpenMetrics: true,
		}))

		metricsServer = &http.Server{
			Addr:    cfg.Metrics.Address,
			Handler: mux,
		}

		go func() {
			logger.Info("starting metrics server",
				"address", cfg.Metrics.Address,
				"path", cfg.Metrics.Path)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	transport, err := bridge.NewTransport(cfg.Broker, logger)
	if err != nil {
		logger.Fatal("failed to create transport", "error", err)
	}

	statsCollector := stats.NewStatsCollector()
	b, err := bridge.New(cfg, transport, logger, metricsService, statsCollector)
	if err != nil {
		logger.Fatal("failed to create bridge", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := b.Start(ctx); err != nil {
		logger.Fatal("failed to start bridge", "error", err)
	}

	if metricsService != nil {
		collector := metrics.NewMetricsCollector(metricsService, b, cfg.Metrics.UpdateInterval)
		collector.Start()
		defer collector.Stop()
	}

	srv := server.New(cfg.HTTP, b.Query(), b, statsCollector, logger)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Listen(ctx)
	}()

	logger.Info("mqtt-query-bridge started",
		"broker", cfg.Broker.Address,
		"topics", cfg.Broker.Topics,
		"httpAddress", cfg.HTTP.Address,
		"maxMessages", cfg.Store.MaxMessages,
		"metricsEnabled", cfg.Metrics.Enabled)

	for {
		select {
		case err := <-serverErr:
			if err != nil {
				logger.Error("query server failed", "error", err)
			}
			cancel()
			b.Close()
			return
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGHUP:
				logger.Info("received SIGHUP, reopening logs")
				logger.Sync()
			case syscall.SIGINT, syscall.SIGTERM:
				logger.Info("shutting down...")

				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer shutdownCancel()

				if metricsServer != nil {
					if err := metricsServer.Shutdown(shutdownCtx); err != nil {
						logger.Error("failed to shutdown metrics server", "error", err)
					}
				}

				// Listen drains the query server once ctx is cancelled
				cancel()
				if err := <-serverErr; err != nil {
					logger.Error("failed to shutdown query server", "error", err)
				}
				b.Close()
				return
			}
		}
	}
}

func splitTopics(s string) []string {
	var topics []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}
