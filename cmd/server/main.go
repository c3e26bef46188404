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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	accesshandler "medledger/internal/access/handler"
	accessmetrics "medledger/internal/access/metrics"
	accessservice "medledger/internal/access/service"
	"medledger/internal/audit"
	auditkafka "medledger/internal/audit/kafka"
	"medledger/internal/gate"
	"medledger/internal/idempotency"
	"medledger/internal/identity"
	"medledger/internal/ledger"
	ledgerhandler "medledger/internal/ledger/handler"
	"medledger/internal/ledger/leveldb"
	"medledger/internal/ledger/memory"
	"medledger/internal/ledger/postgres"
	"medledger/internal/ledger/sqlite"
	"medledger/internal/platform/config"
	"medledger/internal/platform/httpserver"
	"medledger/internal/platform/logger"
	platformmetrics "medledger/internal/platform/metrics"
	platformredis "medledger/internal/platform/redis"
	recordhandler "medledger/internal/records/handler"
	recordmetrics "medledger/internal/records/metrics"
	recordservice "medledger/internal/records/service"
	httptransport "medledger/internal/transport/http"
)

const auditBuffer = 1024

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if cfg.UsesDevSecret() {
		log.Warn("using the development token signing key; set IDENTITY_JWT_SECRET outside local runs")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	pm := platformmetrics.New(reg)
	am := accessmetrics.New(reg)
	rm := recordmetrics.New(reg)

	store, err := openStore(ctx, cfg.Ledger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("close ledger store", "error", err)
		}
	}()
	tx := ledger.NewTransactor(store, cfg.Ledger.TxTimeout, pm)

	report, err := tx.Verify(ctx)
	if err != nil {
		return fmt.Errorf("verify ledger: %w", err)
	}
	if !report.Valid {
		return fmt.Errorf("ledger chain broken at entry %d: %s", report.BrokenAt, report.Reason)
	}
	log.Info("ledger verified", "backend", cfg.Ledger.Backend, "height", report.Height, "head_hash", report.HeadHash)

	publisher := audit.NewPublisher(auditBuffer, log, pm)
	sinks := []audit.NamedSink{{Name: "log", Sink: audit.NewLogSink(log)}}
	if len(cfg.Kafka.Brokers) > 0 {
		ks, err := auditkafka.Dial(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		defer ks.Close()
		sinks = append(sinks, audit.NamedSink{Name: "kafka", Sink: audit.NewGuardedSink(ks, 5, 30*time.Second)})
		log.Info("audit stream enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}
	worker := audit.NewWorker(publisher.Inbox(), log, pm, sinks...)

	health := map[string]httptransport.HealthChecker{"ledger": tx.Ping}
	var idemStore idempotency.Store = idempotency.NewInMemoryStore()
	rc, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rc != nil {
		defer rc.Close()
		idemStore = idempotency.NewRedisStore(rc.Client)
		health["redis"] = rc.Health
	}

	resolver := identity.NewResolver()
	verifier := identity.NewTokenVerifier(cfg.Identity.JWTSecret, cfg.Identity.Issuer)

	records := recordservice.New(tx,
		recordservice.WithAuditor(publisher),
		recordservice.WithMetrics(rm),
		recordservice.WithLogger(log),
	)
	access := accessservice.New(tx,
		accessservice.WithAuditor(publisher),
		accessservice.WithMetrics(am),
		accessservice.WithLogger(log),
	)
	g := gate.New(tx,
		gate.WithAuditor(publisher),
		gate.WithMetrics(am),
		gate.WithLogger(log),
	)

	router := httptransport.NewRouter(httptransport.Config{
		Logger:   log,
		Verifier: verifier,
		Handlers: []httptransport.Registrar{
			recordhandler.New(records, resolver, log),
			accesshandler.New(access, g, resolver, log),
			ledgerhandler.New(tx, log),
		},
		Idempotency: idempotency.Middleware(idemStore,
			idempotency.WithTTL(cfg.Idempotency.TTL),
			idempotency.WithLogger(log),
			idempotency.WithRecorder(pm),
		),
		Observer: pm,
		Gatherer: reg,
		Health:   health,
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	workerCtx, stopWorker := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorker()

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		log.Info("starting medledger", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	grp.Go(func() error {
		return worker.Run(workerCtx)
	})
	grp.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			// Handlers may still be emitting, so the queue stays open and
			// the worker drains what it already holds.
			stopWorker()
			return fmt.Errorf("shutdown: %w", err)
		}
		// Handlers have returned. The worker exits once the queue is drained.
		publisher.Close()
		return nil
	})
	return grp.Wait()
}

func openStore(ctx context.Context, cfg config.Ledger) (ledger.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendSQLite:
		return sqlite.OpenStore(ctx, sqlite.Config{Path: cfg.SQLitePath})
	case config.BackendLevelDB:
		return leveldb.Open(cfg.LevelDBPath)
	case config.BackendPostgres:
		return postgres.Connect(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}
