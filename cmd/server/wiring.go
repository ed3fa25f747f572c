package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"lexbounty/internal/bounty/service"
	"lexbounty/internal/bounty/store"
	"lexbounty/internal/idempotency"
	"lexbounty/internal/ledger"
	"lexbounty/internal/outbox"
	"lexbounty/internal/platform/config"
	"lexbounty/internal/platform/kafka"
	"lexbounty/internal/platform/postgres"
	platformredis "lexbounty/internal/platform/redis"
	"lexbounty/internal/proofs"
	"lexbounty/internal/reputation"
)

// infra groups the backing services chosen by configuration.
type infra struct {
	db    *sql.DB
	redis *platformredis.Client
	kafka *kgo.Client

	bounties    service.Store
	ledger      service.TokenLedger
	reputation  service.ReputationTracker
	outbox      outboxStore
	proofs      service.ProofRegistry
	idempotency idempotency.Store
	tx          service.StoreTx
	publisher   outbox.Publisher
}

// outboxStore is both the engine's event sink and the relay's source.
type outboxStore interface {
	service.EventStore
	outbox.Store
}

// buildInfra picks PostgreSQL, Redis and Kafka when configured and the
// in-memory implementations otherwise.
func buildInfra(ctx context.Context, cfg config.Server, logger *slog.Logger) (*infra, error) {
	in := &infra{}

	if cfg.UsePostgres() {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		in.db = db
		in.bounties = store.NewPostgres(db)
		in.ledger = ledger.NewPostgres(db)
		in.reputation = reputation.NewPostgres(db)
		in.outbox = outbox.NewPostgres(db)
		in.tx = newEscrowPostgresTx(db, cfg.Escrow.TxTimeout)
		logger.InfoContext(ctx, "using postgres stores")
	} else {
		in.bounties = store.NewInMemory()
		in.ledger = ledger.NewInMemory()
		in.reputation = reputation.NewInMemory()
		in.outbox = outbox.NewInMemory()
		in.tx = service.NewShardedTx(cfg.Escrow.TxTimeout)
		logger.InfoContext(ctx, "using in-memory stores")
	}

	rc, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		in.close()
		return nil, err
	}
	if rc != nil {
		in.redis = rc
		in.proofs = proofs.NewRedis(rc, rc.Namespace)
		in.idempotency = idempotency.NewRedis(rc, rc.Namespace)
	} else {
		in.proofs = proofs.NewInMemory()
		in.idempotency = idempotency.NewInMemory()
	}

	kc, err := kafka.NewClient(cfg.Kafka)
	if err != nil {
		in.close()
		return nil, err
	}
	if kc != nil {
		if err := kafka.EnsureTopic(ctx, kc, cfg.Kafka.EventsTopic, cfg.Kafka.Partitions); err != nil {
			kc.Close()
			in.close()
			return nil, fmt.Errorf("ensure events topic: %w", err)
		}
		in.kafka = kc
		in.publisher = outbox.NewKafkaPublisher(kc, cfg.Kafka.EventsTopic)
	} else {
		in.publisher = outbox.NewLogPublisher(logger)
	}
	return in, nil
}

// health reports the first unhealthy dependency.
func (in *infra) health(ctx context.Context) error {
	if in.db != nil {
		if err := in.db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if in.redis != nil {
		if err := in.redis.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if in.kafka != nil {
		if err := kafka.Health(ctx, in.kafka); err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
	}
	return nil
}

func (in *infra) close() {
	if in.kafka != nil {
		in.kafka.Close()
	}
	if in.redis != nil {
		_ = in.redis.Close()
	}
	if in.db != nil {
		_ = in.db.Close()
	}
}
