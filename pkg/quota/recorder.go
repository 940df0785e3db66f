package quota

import (
	"context"
	"time"

	"github.com/2rkf/nekoi/core"
)

// Recorder receives one callback per quota decision and per store failure.
// Implementations must be safe for concurrent use.
type Recorder interface {
	RecordCheck(ctx context.Context, identity string, tier core.Tier, status *core.Status, elapsed time.Duration)
	RecordStoreError(ctx context.Context, op string, err error)
}

// NoopRecorder discards everything. It keeps nil checks out of the hot path.
type NoopRecorder struct{}

func (NoopRecorder) RecordCheck(context.Context, string, core.Tier, *core.Status, time.Duration) {}
func (NoopRecorder) RecordStoreError(context.Context, string, error)                              {}
