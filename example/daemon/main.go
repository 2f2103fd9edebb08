package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/siherrmann/narrative"
	"github.com/siherrmann/narrative/eventbus"
	"github.com/siherrmann/narrative/helper"
	"github.com/siherrmann/narrative/model"
)

// The daemon runs the cycle scheduler against the configured postgres
// database. Connectors deliver raw mentions out of band (for example through
// IngestMentions behind an API), the daemon keeps enrichment and the window
// cycles moving and publishes fired alerts.
//
// Environment:
//
//	DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME, DB_SSLMODE
//	NARRATIVE_CONFIG  optional path to a YAML engine configuration
//	KAFKA_BROKERS     optional, enables the Kafka alert bus publishing to
//	                  the configured alert_topic
func main() {
	// A missing .env file is fine, the environment may be set directly.
	_ = godotenv.Load()

	dbConfig, err := helper.NewDatabaseConfiguration()
	if err != nil {
		log.Fatalf("Failed to read database configuration: %v", err)
	}

	engineConfig := model.DefaultEngineConfig()
	if path := os.Getenv("NARRATIVE_CONFIG"); path != "" {
		engineConfig, err = model.LoadEngineConfig(path)
		if err != nil {
			log.Fatalf("Failed to load engine configuration: %v", err)
		}
	}

	tracker, err := narrative.NewTracker(dbConfig, engineConfig)
	if err != nil {
		log.Fatalf("Failed to create tracker: %v", err)
	}
	defer tracker.Close()

	// Local ONNX embeddings + sentiment (downloads the models on first run)
	if err := tracker.UseDefaultEnricher(); err != nil {
		log.Fatalf("Failed to set up enricher: %v", err)
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		bus, err := eventbus.NewKafkaAlertBus(brokers, engineConfig.AlertTopic, tracker.DB.Logger)
		if err != nil {
			log.Fatalf("Failed to connect alert bus: %v", err)
		}
		tracker.SetAlertBus(bus)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Enrich newly ingested mentions continuously so windows close on time
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, err := tracker.EnrichPending(ctx, 500)
				if err != nil && ctx.Err() == nil {
					tracker.DB.Logger.Error("Enrichment failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	err = tracker.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Scheduler stopped: %v", err)
	}

	tracker.DB.Logger.Info("Shutdown complete")
}
