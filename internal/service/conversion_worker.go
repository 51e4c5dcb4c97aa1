package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"beacon-admission-service/internal/model"
	"beacon-admission-service/internal/repository"
)

const flushTimeout = 5 * time.Second

// JobPublisher hands persisted conversion records to downstream delivery.
type JobPublisher interface {
	Publish(ctx context.Context, jobs ...model.ConversionJob) error
}

type ConversionWorker interface {
	Enqueue(records ...model.ConversionRecord)
	Shutdown()
}

type batchConversionWorker struct {
	repo          repository.ConversionRepository
	publisher     JobPublisher
	queue         chan model.ConversionRecord
	batchSize     int
	flushInterval time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewConversionWorker starts a worker that persists records in batches.
// publisher may be nil, in which case nothing is published.
func NewConversionWorker(repo repository.ConversionRepository, publisher JobPublisher, bufferSize, batchSize int, interval time.Duration) *batchConversionWorker {
	w := &batchConversionWorker{
		repo:          repo,
		publisher:     publisher,
		queue:         make(chan model.ConversionRecord, bufferSize),
		batchSize:     batchSize,
		flushInterval: interval,
	}
	w.wg.Add(1)
	go w.startLoop()
	return w
}

// Enqueue blocks while the buffer is full. Records enqueued after Shutdown are dropped.
func (w *batchConversionWorker) Enqueue(records ...model.ConversionRecord) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		logrus.WithField("records", len(records)).Warn("conversion worker stopped, dropping records")
		return
	}
	for _, r := range records {
		w.queue <- r
	}
}

// Shutdown stops accepting records and waits for the queue to drain.
func (w *batchConversionWorker) Shutdown() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	logrus.Info("conversion worker draining")
	w.wg.Wait()
	logrus.Info("conversion worker stopped")
}

func (w *batchConversionWorker) startLoop() {
	defer w.wg.Done()

	var batch []model.ConversionRecord
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case rec, ok := <-w.queue:
			if !ok {
				if len(batch) > 0 {
					w.flush(batch)
				}
				return
			}
			batch = append(batch, rec)
			if len(batch) >= w.batchSize {
				w.flush(batch)
				batch = nil
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = nil
			}
		}
	}
}

// flush writes the batch, falling back to one insert per record when the
// batch insert fails, and publishes whatever was persisted.
func (w *batchConversionWorker) flush(records []model.ConversionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	persisted := records
	if err := w.repo.UpsertBatch(ctx, records); err != nil {
		logrus.WithError(err).WithField("records", len(records)).Warn("conversion batch insert failed, retrying per record")
		persisted = w.upsertEach(ctx, records)
	}
	logrus.WithField("records", len(persisted)).Debug("conversion records flushed")

	if w.publisher == nil || len(persisted) == 0 {
		return
	}
	jobs := make([]model.ConversionJob, 0, len(persisted))
	for _, r := range persisted {
		jobs = append(jobs, model.JobFromRecord(r))
	}
	if err := w.publisher.Publish(ctx, jobs...); err != nil {
		logrus.WithError(err).WithField("jobs", len(jobs)).Error("conversion job publish failed")
	}
}

func (w *batchConversionWorker) upsertEach(ctx context.Context, records []model.ConversionRecord) []model.ConversionRecord {
	persisted := make([]model.ConversionRecord, 0, len(records))
	for _, r := range records {
		if err := w.repo.Upsert(ctx, r); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"event_id": r.EventID,
				"platform": r.Platform,
			}).Error("conversion record insert failed")
			continue
		}
		persisted = append(persisted, r)
	}
	return persisted
}
