package metrics

import (
	"context"
	"time"

	"github.com/2rkf/nekoi/core"
)

// Recorder mirrors quota.Recorder so this package does not import the
// limiter.
type Recorder interface {
	RecordCheck(ctx context.Context, identity string, tier core.Tier, status *core.Status, elapsed time.Duration)
	RecordStoreError(ctx context.Context, op string, err error)
}

type fanout []Recorder

// Fanout forwards every callback to each recorder in order. Nil recorders
// are skipped.
func Fanout(recorders ...Recorder) Recorder {
	out := make(fanout, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (f fanout) RecordCheck(ctx context.Context, identity string, tier core.Tier, status *core.Status, elapsed time.Duration) {
	for _, r := range f {
		r.RecordCheck(ctx, identity, tier, status, elapsed)
	}
}

func (f fanout) RecordStoreError(ctx context.Context, op string, err error) {
	for _, r := range f {
		r.RecordStoreError(ctx, op, err)
	}
}
