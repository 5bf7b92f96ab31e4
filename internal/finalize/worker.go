// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

package finalize

import (
	"context"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"

	"github.com/courtcast/courtcast/internal/log"
	"github.com/courtcast/courtcast/internal/recorder"
)

// Worker runs finalizations on a bounded goroutine pool so a burst of
// simultaneous stops cannot stack unbounded ffmpeg re-encodes.
type Worker struct {
	finalizer *Finalizer
	pool      *ants.Pool
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewWorker builds a pool of size workers around the finalizer.
func NewWorker(finalizer *Finalizer, size int, timeout time.Duration) (*Worker, error) {
	if size <= 0 {
		size = 2
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	pool, err := ants.NewPool(size, ants.WithNonblocking(false))
	if err != nil {
		return nil, err
	}
	return &Worker{
		finalizer: finalizer,
		pool:      pool,
		timeout:   timeout,
		logger:    log.WithComponent("finalize"),
	}, nil
}

// Enqueue schedules res for finalization. Blocks only while the pool is
// saturated; suitable as recorder.Engine.OnComplete.
func (w *Worker) Enqueue(res recorder.Result) {
	err := w.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		if _, err := w.finalizer.Finalize(ctx, res); err != nil {
			w.logger.Error().Err(err).Str(log.FieldSessionID, res.SessionID).Msg("finalization failed")
		}
	})
	if err != nil {
		w.logger.Error().Err(err).Str(log.FieldSessionID, res.SessionID).Msg("finalize pool rejected task")
	}
}

// Close drains the pool; pending finalizations are abandoned.
func (w *Worker) Close() {
	w.pool.Release()
}
