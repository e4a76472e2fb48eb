// Worker runs the background side of the auth service: it forwards security
// events from Kafka to Loki and sweeps expired rows out of Postgres.
// Set KAFKA_BROKERS, SECURITY_KAFKA_TOPIC, KAFKA_GROUP_ID, and LOKI_URL for
// the event pipeline; DATABASE_URL for the sweeps. Either half runs alone.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	auditrepo "github.com/majafary/ciam-claude-sub001/internal/audit/repository"
	"github.com/majafary/ciam-claude-sub001/internal/config"
	"github.com/majafary/ciam-claude-sub001/internal/db"
	"github.com/majafary/ciam-claude-sub001/internal/device"
	devicerepo "github.com/majafary/ciam-claude-sub001/internal/device/repository"
	"github.com/majafary/ciam-claude-sub001/internal/telemetry/loki"
	tokenrepo "github.com/majafary/ciam-claude-sub001/internal/token/repository"
	txnrepo "github.com/majafary/ciam-claude-sub001/internal/transaction/repository"
)

const sweepInterval = 15 * time.Minute

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("component", "worker").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info().Msg("shutting down")
		cancel()
	}()

	brokers := cfg.SecurityKafkaBrokersList()
	consuming := len(brokers) > 0 && cfg.LokiURL != ""
	sweeping := cfg.DatabaseURL != ""
	if !consuming && !sweeping {
		log.Fatal().Msg("nothing to do: set KAFKA_BROKERS and LOKI_URL, or DATABASE_URL")
	}

	done := make(chan struct{}, 2)
	if consuming {
		go func() {
			consumeEvents(ctx, cfg, brokers, log)
			done <- struct{}{}
		}()
	}
	if sweeping {
		go func() {
			runSweeps(ctx, cfg, log)
			done <- struct{}{}
		}()
	}

	running := 0
	if consuming {
		running++
	}
	if sweeping {
		running++
	}
	for i := 0; i < running; i++ {
		<-done
	}
	log.Info().Msg("stopped")
}

// consumeEvents reads security events from Kafka and pushes each one to Loki.
func consumeEvents(ctx context.Context, cfg *config.Config, brokers []string, log zerolog.Logger) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          cfg.SecurityKafkaTopic,
		GroupID:        cfg.KafkaGroupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		CommitInterval: time.Second,
	})
	defer reader.Close()

	log.Info().Str("topic", cfg.SecurityKafkaTopic).Str("group", cfg.KafkaGroupID).
		Str("loki", cfg.LokiURL).Msg("consuming security events")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("kafka read failed")
			continue
		}
		pushCtx, pushCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := loki.PushEventJSON(pushCtx, cfg.LokiURL, msg.Value); err != nil {
			log.Error().Err(err).Msg("loki push failed")
		}
		pushCancel()
	}
}

// runSweeps periodically expires stale trusted devices and deletes rows whose
// retention has lapsed. Terminal transactions and dead tokens are kept for one
// audit retention window before deletion.
func runSweeps(ctx context.Context, cfg *config.Config, log zerolog.Logger) {
	pool, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Error().Err(err).Msg("database open failed; sweeps disabled")
		return
	}
	defer pool.Close()

	devices := device.NewRegistry(devicerepo.NewPostgresRepository(pool),
		time.Duration(cfg.DeviceTrustTTLDays)*24*time.Hour)
	txns := txnrepo.NewPostgresRepository(pool)
	tokens := tokenrepo.NewPostgresRepository(pool)
	auditRows := auditrepo.NewPostgresRepository(pool)
	retention := time.Duration(cfg.AuditRetentionDays) * 24 * time.Hour

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	log.Info().Dur("interval", sweepInterval).Msg("sweeping expired rows")

	for {
		now := time.Now().UTC()
		if n, err := devices.SweepExpired(ctx); err != nil {
			log.Error().Err(err).Msg("device sweep failed")
		} else if n > 0 {
			log.Info().Int64("count", n).Msg("devices expired")
		}
		if n, err := txns.DeleteExpiredBefore(ctx, now.Add(-retention)); err != nil {
			log.Error().Err(err).Msg("transaction sweep failed")
		} else if n > 0 {
			log.Info().Int64("count", n).Msg("transactions deleted")
		}
		if n, err := tokens.DeleteExpiredBefore(ctx, now.Add(-retention)); err != nil {
			log.Error().Err(err).Msg("token sweep failed")
		} else if n > 0 {
			log.Info().Int64("count", n).Msg("tokens deleted")
		}
		if n, err := auditRows.DeleteBefore(ctx, now.Add(-retention)); err != nil {
			log.Error().Err(err).Msg("audit sweep failed")
		} else if n > 0 {
			log.Info().Int64("count", n).Msg("audit rows deleted")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
