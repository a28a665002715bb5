package recorder

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/jobdeck/adengine/internal/models"
	"github.com/jobdeck/adengine/internal/observability"
)

// Dispatcher records serve events off the request path. Work is sharded by
// campaign ID so events for one campaign stay ordered, and a full shard
// drops rather than blocking ad delivery.
type Dispatcher struct {
	recorder *Recorder
	shards   []chan serveJob
	wg       sync.WaitGroup
	metrics  observability.MetricsRegistry
	logger   *zap.Logger

	closeOnce sync.Once
}

type serveJob struct {
	ad  models.SelectedAd
	req EventRequest
}

// NewDispatcher starts the worker pool.
func NewDispatcher(r *Recorder, workers, queueSize int, metrics observability.MetricsRegistry, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		recorder: r,
		shards:   make([]chan serveJob, workers),
		metrics:  metrics,
		logger:   logger,
	}
	for i := range d.shards {
		d.shards[i] = make(chan serveJob, queueSize)
		d.wg.Add(1)
		go d.run(d.shards[i])
	}
	return d
}

func (d *Dispatcher) run(jobs <-chan serveJob) {
	defer d.wg.Done()
	for job := range jobs {
		d.recorder.RecordServe(context.Background(), job.ad, job.req)
	}
}

// DispatchServe enqueues a serve event for one delivered ad. It never
// blocks; when the shard's queue is full the event is dropped and counted.
func (d *Dispatcher) DispatchServe(ad models.SelectedAd, req EventRequest) {
	shard := d.shards[ad.Campaign.ID%len(d.shards)]
	select {
	case shard <- serveJob{ad: ad, req: req}:
	default:
		d.metrics.IncrementEventPersistErrors()
		d.logger.Warn("serve event dropped, queue full",
			zap.Int("campaign_id", ad.Campaign.ID),
		)
	}
}

// Close drains all shards and stops the workers.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		for _, shard := range d.shards {
			close(shard)
		}
	})
	d.wg.Wait()
}
