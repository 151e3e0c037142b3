// Package batcher implements the dynamic batching scheduler: concurrent
// single-item requests are coalesced into model-sized batches, executed on
// a dedicated OS thread, and scattered back to the waiting callers.
package batcher

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vektralab/embedgate/internal/inference/metrics"
	"github.com/vektralab/embedgate/internal/inference/model"
)

// Lifecycle and admission errors.
var (
	ErrNotStarted = errors.New("batcher not started")
	ErrShutdown   = errors.New("batcher shut down")
	ErrQueueFull  = errors.New("request queue full")
)

const (
	DefaultMaxBatchSize = 32
	DefaultBatchTimeout = 10 * time.Millisecond
	DefaultNumWorkers   = 2
	defaultQueueCap     = 4096
)

// Scheduler is the prediction surface the HTTP layer consumes. Both the
// dynamic batcher and the no-batching wrapper implement it.
type Scheduler interface {
	Start()
	Shutdown()
	Predict(ctx context.Context, text string) ([]float64, error)
	Started() bool
	QueueSize() int
	InflightBatches() int
}

type outcome struct {
	vec []float64
	err error
}

// request is a pending item. The queue owns it until a collector removes
// it; the collector owns it until the completion slot resolves. The slot
// is buffered so an abandoned caller never blocks the collector.
type request struct {
	text     string
	done     chan outcome
	enqueued time.Time
}

type execJob struct {
	texts []string
	reply chan execResult
}

type execResult struct {
	vecs [][]float64
	err  error
}

// Config configures a Batcher. Zero or negative values take the defaults
// above, except BatchTimeout: zero means no wait (singleton batches) and
// only a negative value takes the default.
type Config struct {
	MaxBatchSize int
	BatchTimeout time.Duration
	NumWorkers   int
	QueueCap     int
}

func (c Config) withDefaults() Config {
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = DefaultMaxBatchSize
	}
	if c.BatchTimeout < 0 {
		c.BatchTimeout = DefaultBatchTimeout
	}
	if c.NumWorkers <= 0 {
		c.NumWorkers = DefaultNumWorkers
	}
	if c.QueueCap <= 0 {
		c.QueueCap = defaultQueueCap
	}
	return c
}

const (
	stateCreated int32 = iota
	stateStarted
	stateStopped
)

// Batcher is the dynamic batching scheduler. A fixed pool of collector
// goroutines drains one FIFO queue; each formed batch is handed to a
// single-slot executor that owns the blocking model.
type Batcher struct {
	model model.EmbeddingModel
	cfg   Config
	m     *metrics.Metrics
	log   zerolog.Logger

	queue chan *request // nil entries are shutdown sentinels
	exec  chan execJob

	state    atomic.Int32
	inflight atomic.Int64
	drained  chan struct{} // closed once shutdown has resolved every slot

	workers sync.WaitGroup
	execWG  sync.WaitGroup
	gauges  chan struct{}
}

// New creates a batcher around the given model. Call Start before Predict.
func New(m model.EmbeddingModel, cfg Config, met *metrics.Metrics, log zerolog.Logger) *Batcher {
	cfg = cfg.withDefaults()
	return &Batcher{
		model:   m,
		cfg:     cfg,
		m:       met,
		log:     log.With().Str("component", "batcher").Logger(),
		queue:   make(chan *request, cfg.QueueCap),
		exec:    make(chan execJob),
		drained: make(chan struct{}),
		gauges:  make(chan struct{}),
	}
}

// Start launches the executor, the collector pool, and the gauge sampler.
// Idempotent.
func (b *Batcher) Start() {
	if !b.state.CompareAndSwap(stateCreated, stateStarted) {
		return
	}

	b.execWG.Add(1)
	go b.executor()

	for i := 0; i < b.cfg.NumWorkers; i++ {
		b.workers.Add(1)
		go b.collect(i)
	}

	go b.sampleGauges()

	b.log.Info().
		Int("max_batch_size", b.cfg.MaxBatchSize).
		Dur("batch_timeout", b.cfg.BatchTimeout).
		Int("num_workers", b.cfg.NumWorkers).
		Msg("batcher started")
}

// Started reports whether the batcher accepts requests.
func (b *Batcher) Started() bool { return b.state.Load() == stateStarted }

// QueueSize returns the number of requests waiting in the queue.
func (b *Batcher) QueueSize() int { return len(b.queue) }

// InflightBatches returns the number of batches currently executing.
func (b *Batcher) InflightBatches() int { return int(b.inflight.Load()) }

// Predict enqueues one input and blocks until its completion slot
// resolves. Fails fast before Start and after Shutdown. If ctx ends while
// waiting, the slot is abandoned but the batch still runs to completion.
func (b *Batcher) Predict(ctx context.Context, text string) ([]float64, error) {
	switch b.state.Load() {
	case stateCreated:
		return nil, ErrNotStarted
	case stateStopped:
		return nil, ErrShutdown
	}

	req := &request{
		text:     text,
		done:     make(chan outcome, 1),
		enqueued: time.Now(),
	}

	select {
	case b.queue <- req:
	default:
		b.m.RequestsTotal.WithLabelValues("error").Inc()
		return nil, ErrQueueFull
	}

	select {
	case out := <-req.done:
		b.observeCompletion(req, out.err)
		return out.vec, out.err
	case <-b.drained:
		// Shutdown finished while this request was still queued behind
		// the sentinels; the drain pass resolved its slot.
		select {
		case out := <-req.done:
			b.observeCompletion(req, out.err)
			return out.vec, out.err
		default:
			b.m.RequestsTotal.WithLabelValues("error").Inc()
			return nil, ErrShutdown
		}
	case <-ctx.Done():
		b.m.RequestsTotal.WithLabelValues("error").Inc()
		b.m.RequestLatency.Observe(time.Since(req.enqueued).Seconds())
		return nil, ctx.Err()
	}
}

func (b *Batcher) observeCompletion(req *request, err error) {
	b.m.RequestLatency.Observe(time.Since(req.enqueued).Seconds())
	if err != nil {
		b.m.RequestsTotal.WithLabelValues("error").Inc()
		return
	}
	b.m.RequestsTotal.WithLabelValues("success").Inc()
}

// Shutdown stops the batcher. Idempotent. One sentinel per worker is
// enqueued; a worker holding a partial batch finalizes it before exiting.
// After the pool exits, the executor drains and every still-pending slot
// resolves with ErrShutdown.
func (b *Batcher) Shutdown() {
	if !b.state.CompareAndSwap(stateStarted, stateStopped) {
		return
	}

	close(b.gauges)

	for i := 0; i < b.cfg.NumWorkers; i++ {
		b.queue <- nil
	}
	b.workers.Wait()

	close(b.exec)
	b.execWG.Wait()

	// Requests that arrived behind the sentinels are still queued; fail
	// their slots so no caller waits forever.
	for {
		select {
		case req := <-b.queue:
			if req != nil {
				req.done <- outcome{err: ErrShutdown}
			}
		default:
			close(b.drained)
			b.log.Info().Msg("batcher stopped")
			return
		}
	}
}

// collect is one worker: block for the first request, then gather more
// until the batch fills, the formation deadline passes, or a sentinel
// arrives.
func (b *Batcher) collect(workerID int) {
	defer b.workers.Done()

	for {
		first := <-b.queue
		if first == nil {
			return
		}

		batch := []*request{first}
		formationStart := time.Now()
		sentinel := false

		if b.cfg.BatchTimeout > 0 {
			timer := time.NewTimer(b.cfg.BatchTimeout)
		fill:
			for len(batch) < b.cfg.MaxBatchSize {
				select {
				case req := <-b.queue:
					if req == nil {
						sentinel = true
						break fill
					}
					batch = append(batch, req)
				case <-timer.C:
					break fill
				}
			}
			timer.Stop()
		}

		b.process(batch, workerID, time.Since(formationStart))

		if sentinel {
			return
		}
	}
}

// process runs one batch through the executor and resolves every slot:
// position i of the result pairs with position i of the batch, and a
// failed batch reports the same error to every member.
func (b *Batcher) process(batch []*request, workerID int, waitTime time.Duration) {
	texts := make([]string, len(batch))
	for i, req := range batch {
		texts[i] = req.text
	}

	b.m.BatchSize.Observe(float64(len(batch)))
	b.m.BatchWaitTime.Observe(waitTime.Seconds())

	b.inflight.Add(1)
	start := time.Now()
	vecs, err := b.execute(texts)
	inferenceTime := time.Since(start)
	b.inflight.Add(-1)

	if err == nil && len(vecs) != len(batch) {
		err = fmt.Errorf("model returned %d results for %d inputs", len(vecs), len(batch))
	}

	if err != nil {
		b.log.Error().Err(err).Int("batch_size", len(batch)).Msg("batch failed")
		for _, req := range batch {
			req.done <- outcome{err: err}
		}
		return
	}

	b.m.InferenceTime.Observe(inferenceTime.Seconds())

	b.log.Info().
		Int("worker_id", workerID).
		Int("batch_size", len(batch)).
		Float64("wait_ms", float64(waitTime.Microseconds())/1000).
		Float64("inference_ms", float64(inferenceTime.Microseconds())/1000).
		Msg("batch processed")

	for i, req := range batch {
		req.done <- outcome{vec: vecs[i]}
	}
}

// execute hands the batch to the executor and waits for its slot.
func (b *Batcher) execute(texts []string) ([][]float64, error) {
	reply := make(chan execResult, 1)
	b.exec <- execJob{texts: texts, reply: reply}
	res := <-reply
	return res.vecs, res.err
}

// executor owns the model. One batch executes at a time; later batches
// queue at the channel. The goroutine is pinned to an OS thread since
// native inference runtimes are frequently thread-affine.
func (b *Batcher) executor() {
	defer b.execWG.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for job := range b.exec {
		job.reply <- b.runModel(job.texts)
	}
}

func (b *Batcher) runModel(texts []string) (res execResult) {
	defer func() {
		if r := recover(); r != nil {
			res = execResult{err: fmt.Errorf("model panic: %v", r)}
		}
	}()
	vecs, err := b.model.Predict(texts)
	return execResult{vecs: vecs, err: err}
}

// sampleGauges updates the queue and inflight gauges at 1 Hz.
func (b *Batcher) sampleGauges() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.m.QueueSize.Set(float64(len(b.queue)))
			b.m.InflightBatches.Set(float64(b.inflight.Load()))
		case <-b.gauges:
			b.m.QueueSize.Set(0)
			b.m.InflightBatches.Set(0)
			return
		}
	}
}
