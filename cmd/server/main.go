package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"hemolink/internal/matching/handler"
	"hemolink/internal/platform/config"
	"hemolink/internal/platform/httpserver"
	"hemolink/internal/platform/kafka"
	"hemolink/internal/platform/kafka/consumer"
	"hemolink/internal/platform/kafka/outbox"
	"hemolink/internal/platform/logger"
	platformmetrics "hemolink/internal/platform/metrics"
)

// main wires dependencies and keeps the process lifecycle small. Matching
// logic lives in internal/matching.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "hemolink: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("hemolink stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	opsMetrics := platformmetrics.New()

	infra, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	app, err := buildApp(ctx, cfg, infra, log)
	if err != nil {
		return err
	}
	defer app.Close()

	router := httpserver.NewRouter(log, opsMetrics, prometheus.DefaultGatherer, infra.HealthChecks())
	handler.New(app.coordinator, log).Register(router)
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting ops server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if infra.kafka == nil {
		log.Warn("kafka not configured, inbound signals disabled")
	} else {
		cl, err := kafka.NewConsumerClient(cfg.Kafka)
		if err != nil {
			return err
		}
		c := consumer.New(cl, app.ingestRouter, log, consumer.WithMetrics(opsMetrics))
		g.Go(func() error {
			log.Info("consuming inbound topics", "group", cfg.Kafka.ConsumerGroup, "topics", kafka.InboundTopics)
			return c.Run(gctx)
		})
		g.Go(func() error {
			<-gctx.Done()
			cl.Close()
			return nil
		})

		if infra.db != nil {
			relay := outbox.NewRelay(outbox.NewPostgres(infra.db), infra.kafka, kafka.TopicAudit,
				outbox.WithInterval(cfg.Kafka.OutboxInterval),
				outbox.WithLogger(log),
			)
			g.Go(func() error {
				return relay.Run(gctx)
			})
		}
	}

	err = g.Wait()
	log.Info("shutting down", "active_requests", app.coordinator.ActiveRequests())
	return err
}
