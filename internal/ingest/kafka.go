package ingest

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/alfonsopalomares/digital-twin/internal/config"
	"github.com/alfonsopalomares/digital-twin/internal/model"
)

// StartKafka consumes JSON readings from the configured topic and feeds them
// into the pipeline. Messages that do not decode to a valid reading are
// skipped, not retried.
func StartKafka(ctx context.Context, cfg *config.Manager, out chan<- model.Reading, logger *slog.Logger) {
	current := cfg.Get().Ingest.Kafka
	if !current.Enabled {
		if logger != nil {
			logger.Info("kafka ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", current.Brokers, "topic", current.Topic, "group_id", current.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  current.Brokers,
		Topic:    current.Topic,
		GroupID:  current.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	go func() {
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("kafka read error", "err", err)
				}
				continue
			}
			var r model.Reading
			if err := json.Unmarshal(m.Value, &r); err != nil {
				if logger != nil {
					logger.Warn("kafka decode error", "err", err)
				}
				continue
			}
			if _, err := model.ParseSensor(string(r.Sensor)); err != nil || r.Timestamp.IsZero() {
				if logger != nil {
					logger.Warn("kafka reading rejected", "sensor", r.Sensor, "timestamp", r.Timestamp)
				}
				continue
			}
			r.Timestamp = r.Timestamp.UTC()
			SendNonBlocking(ctx, out, r, logger)
		}
	}()
}
