package batcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vektralab/embedgate/internal/inference/metrics"
	"github.com/vektralab/embedgate/internal/inference/model"
)

// NoBatching processes each request as a singleton batch through the same
// single-slot executor discipline. Provided for benchmarking and
// degenerate low-load operation.
type NoBatching struct {
	model model.EmbeddingModel
	m     *metrics.Metrics
	log   zerolog.Logger

	exec     chan execJob
	stop     chan struct{}
	state    atomic.Int32
	inflight atomic.Int64
	execWG   sync.WaitGroup
}

// NewNoBatching wraps the model without request coalescing.
func NewNoBatching(m model.EmbeddingModel, met *metrics.Metrics, log zerolog.Logger) *NoBatching {
	return &NoBatching{
		model: m,
		m:     met,
		log:   log.With().Str("component", "batcher").Bool("no_batching", true).Logger(),
		exec:  make(chan execJob),
		stop:  make(chan struct{}),
	}
}

// Start implements Scheduler.
func (n *NoBatching) Start() {
	if !n.state.CompareAndSwap(stateCreated, stateStarted) {
		return
	}
	n.execWG.Add(1)
	go n.executor()
	n.log.Info().Msg("no-batching scheduler started")
}

// Shutdown implements Scheduler. Idempotent. In-flight singleton batches
// finish; new calls fail fast.
func (n *NoBatching) Shutdown() {
	if !n.state.CompareAndSwap(stateStarted, stateStopped) {
		return
	}
	close(n.stop)
	n.execWG.Wait()
	n.log.Info().Msg("no-batching scheduler stopped")
}

// Started implements Scheduler.
func (n *NoBatching) Started() bool { return n.state.Load() == stateStarted }

// QueueSize implements Scheduler; there is no queue.
func (n *NoBatching) QueueSize() int { return 0 }

// InflightBatches implements Scheduler.
func (n *NoBatching) InflightBatches() int { return int(n.inflight.Load()) }

// Predict implements Scheduler with a batch of one.
func (n *NoBatching) Predict(_ context.Context, text string) ([]float64, error) {
	switch n.state.Load() {
	case stateCreated:
		return nil, ErrNotStarted
	case stateStopped:
		return nil, ErrShutdown
	}

	start := time.Now()
	reply := make(chan execResult, 1)

	select {
	case n.exec <- execJob{texts: []string{text}, reply: reply}:
	case <-n.stop:
		n.m.RequestsTotal.WithLabelValues("error").Inc()
		return nil, ErrShutdown
	}

	n.inflight.Add(1)
	res := <-reply
	n.inflight.Add(-1)

	n.m.BatchSize.Observe(1)
	n.m.InferenceTime.Observe(time.Since(start).Seconds())
	n.m.RequestLatency.Observe(time.Since(start).Seconds())

	if res.err == nil && len(res.vecs) != 1 {
		res.err = fmt.Errorf("model returned %d results for 1 input", len(res.vecs))
	}
	if res.err != nil {
		n.m.RequestsTotal.WithLabelValues("error").Inc()
		return nil, res.err
	}
	n.m.RequestsTotal.WithLabelValues("success").Inc()
	return res.vecs[0], nil
}

// executor owns the model; one singleton batch at a time.
func (n *NoBatching) executor() {
	defer n.execWG.Done()
	for {
		select {
		case job := <-n.exec:
			vecs, err := n.model.Predict(job.texts)
			job.reply <- execResult{vecs: vecs, err: err}
		case <-n.stop:
			return
		}
	}
}
