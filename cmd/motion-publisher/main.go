package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"mqtt-query-bridge/config"
	"mqtt-query-bridge/internal/bridge"
	"mqtt-query-bridge/internal/broker"
	"mqtt-query-bridge/internal/logger"
	"mqtt-query-bridge/internal/publisher"
)

func main() {
	configPath := flag.String("config", "", "path to config file (empty = defaults and environment only)")
	brokerOverride := flag.String("broker", "", "override broker address")
	topic := flag.String("topic", "motion", "topic to publish transformations to")
	interval := flag.Duration("interval", time.Second, "publish interval")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg.ApplyOverrides(*brokerOverride, nil, "", "", "", 0)

	logger, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	transport, err := bridge.NewTransport(cfg.Broker, logger)
	if err != nil {
		logger.Fatal("failed to create transport", "error", err)
	}

	conn := broker.NewConnectionManager(transport, broker.Options{
		ClientIDPrefix: "motion-publisher",
		ConnectTimeout: cfg.Broker.ConnectTimeout,
		ReconnectDelay: cfg.Broker.ReconnectDelay,
		BackOff:        bridge.ReconnectPolicy(cfg.Broker),
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := conn.Connect(ctx); err != nil {
		logger.Fatal("failed to connect", "error", err)
	}
	defer conn.Disconnect()

	p := publisher.New(conn, *topic, *interval, logger)
	if err := p.Run(ctx); err != nil {
		logger.Error("publisher failed", "error", err)
	}
}
