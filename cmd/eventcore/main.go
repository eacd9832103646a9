// Command eventcore boots the event store, snapshot sidecar, outbox
// publish worker, and the admin HTTP surface from one process.
package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/ILLUVRSE/eventcore/internal/adminapi"
	"github.com/ILLUVRSE/eventcore/internal/archive"
	"github.com/ILLUVRSE/eventcore/internal/codec"
	"github.com/ILLUVRSE/eventcore/internal/config"
	"github.com/ILLUVRSE/eventcore/internal/events"
	"github.com/ILLUVRSE/eventcore/internal/eventstore"
	"github.com/ILLUVRSE/eventcore/internal/outbox"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := config.LoadFromEnv()

	if cfg.DatabaseURL == "" {
		log.Fatalf("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open postgres: %v", err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("failed to ping postgres: %v", err)
	}
	log.Println("connected to postgres")

	domainCodec := codec.NewJSONCodec(codec.NewRegistry(events.FamilyDomain))
	snapshotCodec := codec.NewJSONCodec(codec.NewRegistry(events.FamilySnapshot))
	outboxCodec := codec.NewJSONCodec(codec.NewRegistry(events.FamilyOutboxIntegration))

	store := eventstore.NewPostgresStore(db, domainCodec, snapshotCodec)
	ob := outbox.NewPostgresOutbox(db, outboxCodec)

	var archiver archive.Archiver
	if cfg.ArchiveBucket != "" {
		s3Archiver, err := archive.NewS3Archiver(context.Background(), cfg.ArchiveBucket, cfg.ArchivePrefix)
		if err != nil {
			log.Printf("warning: s3 archiver not available: %v", err)
		} else {
			archiver = s3Archiver
			log.Printf("s3 archiver initialized (bucket=%s prefix=%s)", cfg.ArchiveBucket, cfg.ArchivePrefix)
		}
	}

	var outboxCancel context.CancelFunc
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic != "" {
		publisher, err := outbox.NewKafkaPublisher(outbox.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			log.Fatalf("failed to initialize kafka publisher: %v", err)
		}
		log.Printf("kafka publisher initialized (brokers=%v topic=%s)", cfg.KafkaBrokers, cfg.KafkaTopic)

		worker := outbox.NewPublishWorker(ob, publisher, outbox.WorkerConfig{
			BatchSize:      cfg.OutboxBatchSize,
			PollInterval:   cfg.OutboxPollInterval,
			MaxConcurrency: cfg.OutboxMaxConcurrency,
			MaxAttempts:    cfg.OutboxMaxAttempts,
			Archiver:       archiver,
		})

		ctx, cancel := context.WithCancel(context.Background())
		outboxCancel = cancel
		go func() {
			if err := worker.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("[outbox.worker] exited with error: %v", err)
			}
			log.Printf("[outbox.worker] background runner stopped")
		}()
		log.Printf("outbox publish worker started (batch=%d concurrency=%d)", cfg.OutboxBatchSize, cfg.OutboxMaxConcurrency)
	} else {
		log.Println("outbox publish worker not started: KAFKA_BROKERS and KAFKA_TOPIC must be set to enable")
	}

	var verifier *adminapi.TokenVerifier
	if cfg.AdminBearerSecret != "" {
		verifier = adminapi.NewTokenVerifier([]byte(cfg.AdminBearerSecret), cfg.AdminWriteScope)
	} else {
		log.Println("ADMIN_BEARER_SECRET not configured; admin API auth disabled")
	}

	admin := adminapi.New(store, verifier)
	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      admin.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting eventcore admin server on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}

	if outboxCancel != nil {
		outboxCancel()
		time.Sleep(2 * time.Second)
	}

	log.Println("server stopped")
}
