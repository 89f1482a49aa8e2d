package movement

import (
	"time"

	"storeledger/internal/core/entity"
)

// Recorder receives engine measurements. The metrics package implements
// it for Prometheus.
type Recorder interface {
	CommitObserved(kind entity.MovementKind, err error, d time.Duration)
	DeltaApplied(kind entity.MovementKind, delta int64)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) CommitObserved(entity.MovementKind, error, time.Duration) {}
func (NopRecorder) DeltaApplied(entity.MovementKind, int64)                 {}
