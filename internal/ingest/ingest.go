package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/alfonsopalomares/digital-twin/internal/model"
	"github.com/alfonsopalomares/digital-twin/internal/observe"
)

// SendNonBlocking offers a reading to the pipeline without ever stalling the
// producer. A full channel drops the reading and reports it.
func SendNonBlocking(ctx context.Context, out chan<- model.Reading, r model.Reading, logger *slog.Logger) bool {
	select {
	case out <- r:
		observe.IncReadingIngested(string(r.Sensor))
		return true
	case <-ctx.Done():
		return false
	default:
		observe.IncIngestDropped()
		if logger != nil {
			logger.Warn("reading channel full, dropping reading", "sensor", r.Sensor, "timestamp", r.Timestamp)
		}
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
