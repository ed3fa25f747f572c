package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"lexbounty/internal/bounty/handler"
	bountymetrics "lexbounty/internal/bounty/metrics"
	"lexbounty/internal/bounty/service"
	jwttoken "lexbounty/internal/jwt_token"
	"lexbounty/internal/outbox"
	"lexbounty/internal/platform/config"
	"lexbounty/internal/platform/httpserver"
	"lexbounty/internal/platform/logger"
	"lexbounty/internal/platform/metrics"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	in, err := buildInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer in.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine := service.New(in.bounties, in.ledger, in.reputation, in.outbox,
		service.WithLogger(log),
		service.WithMetrics(bountymetrics.New(reg)),
		service.WithTx(in.tx),
		service.WithProofRegistry(in.proofs),
		service.WithPolicy(service.Policy{
			RequireFullFundingBeforeAssign: cfg.Escrow.RequireFullFundingBeforeAssign,
			RequireRegisteredProofs:        cfg.Escrow.RequireRegisteredProofs,
		}),
	)

	relay := outbox.NewRelay(in.outbox, in.publisher,
		outbox.WithLogger(log),
		outbox.WithMetrics(outbox.NewMetrics(reg)),
		outbox.WithCircuitBreaker(outbox.NewCircuitBreaker(cfg.Outbox.FailureThreshold, cfg.Outbox.Cooldown)),
		outbox.WithPollInterval(cfg.Outbox.PollInterval),
		outbox.WithBatchSize(cfg.Outbox.BatchSize),
	)

	tokens := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	h := handler.New(engine, log, jwttoken.NewJWTServiceAdapter(tokens), in.idempotency, cfg.Escrow.IdempotencyTTL)
	router := newRouter(h, log, metrics.New(reg), reg, cfg.MetricsTokenHash, in.health)
	srv := httpserver.New(cfg.Addr, router, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting lexbounty", "addr", cfg.Addr, "postgres", cfg.UsePostgres())
		return httpserver.Serve(gctx, srv, cfg.ShutdownTimeout, log)
	})
	g.Go(func() error {
		return relay.Run(gctx)
	})
	return g.Wait()
}
