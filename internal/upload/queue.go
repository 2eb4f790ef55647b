package upload

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vincentbai/classtrace/internal/flow"
	"github.com/vincentbai/classtrace/internal/logging"
	"github.com/vincentbai/classtrace/internal/metrics"
	"github.com/vincentbai/classtrace/internal/models"
	"github.com/vincentbai/classtrace/internal/tracker"
)

// Spool stores records that exhausted their attempts.
type Spool interface {
	Put(records ...models.InteractionRecord) error
	Drain(limit int) ([]models.InteractionRecord, error)
}

// QueueConfig configures a Queue.
type QueueConfig struct {
	// BatchSize pending records trigger a flush. Defaults to 10.
	BatchSize int
	// MaxAttempts is how many failed sends a record survives before it is
	// spooled (or dropped when there is no spool). Defaults to 5.
	MaxAttempts int
	// FlushInterval flushes periodically when positive.
	FlushInterval time.Duration
	// Metadata describes the session for each batch. Optional.
	Metadata func() models.BatchMetadata
	Spool    Spool
}

// Queue buffers records and delivers them in batches from a single worker.
// At most one batch is outstanding: a flush requested while a send is in
// flight is deferred until that send settles, so a failed batch is always
// retried ahead of anything recorded after it. It implements
// tracker.Forwarder and stream.Sink.
type Queue struct {
	sender Sender
	cfg    QueueConfig
	logger zerolog.Logger
	// holds the single outstanding batch
	work chan []models.InteractionRecord
	quit chan struct{}

	mu          sync.Mutex
	pending     []models.InteractionRecord
	attempts    map[string]int
	inFlight    bool
	flushWanted bool
	started     bool
	stopped     bool
	cancel      context.CancelFunc
	done        chan struct{}
}

var _ tracker.Forwarder = (*Queue)(nil)

// NewQueue returns a queue sending through sender. Call Start to begin
// delivery.
func NewQueue(sender Sender, cfg QueueConfig) *Queue {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Queue{
		sender:   sender,
		cfg:      cfg,
		logger:   logging.Component("upload"),
		work:     make(chan []models.InteractionRecord, 1),
		quit:     make(chan struct{}),
		attempts: make(map[string]int),
	}
}

// Start restores spooled records to the head of the queue and starts the
// worker. Calling Start twice is a no-op.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return nil
	}
	if q.cfg.Spool != nil {
		restored, err := q.cfg.Spool.Drain(0)
		if err != nil {
			return err
		}
		if len(restored) > 0 {
			q.pending = append(restored, q.pending...)
			q.logger.Info().Int("count", len(restored)).Msg("Restored spooled interactions")
		}
	}
	ctx, q.cancel = context.WithCancel(ctx)
	q.done = make(chan struct{})
	q.started = true
	go q.run(ctx)
	metrics.QueueDepth.Set(float64(len(q.pending)))
	return nil
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.done)
	var tick <-chan time.Time
	if q.cfg.FlushInterval > 0 {
		t := time.NewTicker(q.cfg.FlushInterval)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case batch := <-q.work:
			q.deliver(ctx, batch)
		case <-tick:
			q.Flush()
		case <-q.quit:
			q.drainFinal(ctx)
			return
		case <-ctx.Done():
			return
		}
	}
}

// Record appends rec. Reaching BatchSize triggers a flush.
func (q *Queue) Record(rec models.InteractionRecord) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		q.logger.Debug().Str("type", rec.Type).Msg("Record after stop ignored")
		return
	}
	q.pending = append(q.pending, rec)
	full := len(q.pending) >= q.cfg.BatchSize
	metrics.QueueDepth.Set(float64(len(q.pending)))
	q.mu.Unlock()

	metrics.InteractionsRecorded.Inc()
	if full {
		q.Flush()
	}
}

// RecordAction maps and records a captured action.
func (q *Queue) RecordAction(a tracker.Action) {
	var md models.BatchMetadata
	if q.cfg.Metadata != nil {
		md = q.cfg.Metadata()
	}
	q.Record(FromAction(a, md))
}

// RecordFlowEvent maps and records a flow event.
func (q *Queue) RecordFlowEvent(ev flow.Event) {
	q.Record(FromFlowEvent(ev))
}

// Pending reports how many records wait for the next flush.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Flush hands every pending record to the worker as one batch without
// waiting for the send. While a batch is outstanding the flush is deferred
// until it settles.
func (q *Queue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.started || q.stopped || len(q.pending) == 0 {
		return
	}
	if q.inFlight {
		q.flushWanted = true
		q.logger.Debug().Int("count", len(q.pending)).Msg("Upload in flight, flush deferred")
		return
	}
	q.cutLocked()
}

// cutLocked moves pending into the outstanding batch. The caller holds mu
// and has checked that nothing is in flight.
func (q *Queue) cutLocked() {
	if len(q.pending) == 0 {
		return
	}
	batch := q.pending
	q.pending = nil
	q.inFlight = true
	q.work <- batch
	metrics.QueueDepth.Set(0)
}

// deliver sends the outstanding batch, settles it and cuts the next one if a
// flush was requested meanwhile.
func (q *Queue) deliver(ctx context.Context, batch []models.InteractionRecord) {
	retry := q.send(ctx, batch)

	q.mu.Lock()
	var exhausted []models.InteractionRecord
	if retry {
		exhausted = q.requeueLocked(batch)
	} else {
		q.forgetLocked(batch)
	}
	q.inFlight = false
	if q.flushWanted && !q.stopped {
		q.flushWanted = false
		q.cutLocked()
	}
	q.mu.Unlock()

	if len(exhausted) > 0 {
		q.giveUp(exhausted, "exhausted")
	}
}

// send reports whether batch should be retried.
func (q *Queue) send(ctx context.Context, batch []models.InteractionRecord) bool {
	md := models.BatchMetadata{}
	if q.cfg.Metadata != nil {
		md = q.cfg.Metadata()
	}
	ctx = logging.WithCorrelationID(ctx, logging.NewCorrelationID())
	log := logging.Ctx(ctx)

	resp, err := q.sender.Send(ctx, models.InteractionBatch{Interactions: batch, Metadata: md})
	switch {
	case err == nil:
		metrics.RecordBatch("ok")
		log.Debug().Int("count", len(batch)).Str("message", resp.Message).Msg("Interactions uploaded")
		return false
	case errors.Is(err, ErrMalformedBatch):
		metrics.RecordBatch("malformed")
		metrics.RecordDropped("malformed", len(batch))
		log.Error().Err(err).Int("count", len(batch)).Msg("Sink rejected batch, dropping")
		return false
	default:
		metrics.RecordBatch("retry")
		log.Warn().Err(err).Int("count", len(batch)).Msg("Upload failed, requeueing")
		return true
	}
}

func (q *Queue) forgetLocked(batch []models.InteractionRecord) {
	for _, r := range batch {
		delete(q.attempts, r.ID)
	}
}

// requeueLocked puts retryable records back at the head, oldest first, and
// returns the ones out of attempts.
func (q *Queue) requeueLocked(batch []models.InteractionRecord) []models.InteractionRecord {
	retry := make([]models.InteractionRecord, 0, len(batch))
	var exhausted []models.InteractionRecord
	for _, r := range batch {
		q.attempts[r.ID]++
		if q.attempts[r.ID] >= q.cfg.MaxAttempts {
			delete(q.attempts, r.ID)
			exhausted = append(exhausted, r)
			continue
		}
		retry = append(retry, r)
	}
	q.pending = append(retry, q.pending...)
	metrics.QueueDepth.Set(float64(len(q.pending)))
	return exhausted
}

// takeAllLocked empties the queue, outstanding batch first.
func (q *Queue) takeAllLocked() []models.InteractionRecord {
	var out []models.InteractionRecord
	select {
	case batch := <-q.work:
		out = append(out, batch...)
	default:
	}
	out = append(out, q.pending...)
	q.pending = nil
	q.inFlight = false
	metrics.QueueDepth.Set(0)
	return out
}

// drainFinal makes one last attempt with everything left. What fails is
// spooled.
func (q *Queue) drainFinal(ctx context.Context) {
	q.mu.Lock()
	final := q.takeAllLocked()
	q.mu.Unlock()
	if len(final) == 0 {
		return
	}
	if q.send(ctx, final) {
		q.giveUp(final, "shutdown")
	}
}

func (q *Queue) giveUp(batch []models.InteractionRecord, reason string) {
	if len(batch) == 0 {
		return
	}
	if q.cfg.Spool != nil {
		err := q.cfg.Spool.Put(batch...)
		if err == nil {
			q.logger.Warn().Int("count", len(batch)).Str("reason", reason).Msg("Interactions spooled")
			return
		}
		q.logger.Error().Err(err).Int("count", len(batch)).Msg("Failed to spool interactions")
	}
	metrics.RecordDropped(reason, len(batch))
	q.logger.Error().Int("count", len(batch)).Str("reason", reason).Msg("Interactions dropped")
}

// Stop waits for the outstanding send, makes a final attempt with what is
// pending and stops the worker. If ctx ends first the worker is cancelled and
// unsent records are spooled.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.started || q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	q.mu.Unlock()
	close(q.quit)

	var err error
	select {
	case <-q.done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	q.cancel()
	<-q.done

	// records the worker never reached
	q.mu.Lock()
	rest := q.takeAllLocked()
	q.mu.Unlock()
	q.giveUp(rest, "shutdown")
	return err
}
