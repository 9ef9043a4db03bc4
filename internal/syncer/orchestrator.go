// Package syncer decides whether a capture goes straight to the remote store
// or into the outbox, and drains the outbox when the remote is reachable.
package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldsync/pkg/db/models"
	"github.com/angelmondragon/fieldsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
	"github.com/angelmondragon/fieldsync/pkg/logger"
	"github.com/angelmondragon/fieldsync/pkg/metrics"
	"github.com/angelmondragon/fieldsync/pkg/outbox"
)

const (
	pathDirect = "direct"
	pathDrain  = "drain"
)

// Queue is the slice of the outbox the orchestrator drives.
type Queue interface {
	Enqueue(ctx context.Context, rec models.CapturedRecord, opts ...outbox.EnqueueOption) (uuid.UUID, error)
	ListPending(ctx context.Context) ([]models.OutboxEntry, error)
	Count(ctx context.Context) (int64, error)
	MarkInFlight(ctx context.Context, id uuid.UUID) (models.OutboxEntry, error)
	RecordAttempt(ctx context.Context, id uuid.UUID, outcome enums.SubmitOutcome, cause error) error
	Release(ctx context.Context, id uuid.UUID) error
	Complete(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason enums.DeadLetterReason, outcome enums.SubmitOutcome, cause error) error
}

type Submitter interface {
	Submit(ctx context.Context, rec models.CapturedRecord) (enums.SubmitOutcome, error)
}

type Identity interface {
	CurrentIdentity(ctx context.Context) (string, bool)
	Refresh(ctx context.Context) (string, bool)
}

type Devices interface {
	GetOrCreate(ctx context.Context) (string, error)
}

type Connectivity interface {
	Online() bool
}

// Status tells the caller where a capture ended up.
type Status string

const (
	StatusSent   Status = "sent"
	StatusQueued Status = "queued"
)

type Result struct {
	ID     uuid.UUID
	Status Status
	// Outcome is empty when the capture was queued without a network attempt.
	Outcome enums.SubmitOutcome
}

type Params struct {
	Queue        Queue
	Remote       Submitter
	Identity     Identity
	Devices      Devices
	Connectivity Connectivity
	Logger       *logger.Logger
	Metrics      *metrics.SyncMetrics
	// MaxAttempts > 0 dead-letters records the remote keeps rejecting as
	// invalid. Zero retries forever.
	MaxAttempts int
	Now         func() time.Time
}

type Orchestrator struct {
	queue       Queue
	remote      Submitter
	identity    Identity
	devices     Devices
	online      Connectivity
	logg        *logger.Logger
	metrics     *metrics.SyncMetrics
	maxAttempts int
	now         func() time.Time

	drainMu    sync.Mutex
	current    *drainCall
	refreshing atomic.Bool
	background sync.WaitGroup
}

func NewOrchestrator(p Params) (*Orchestrator, error) {
	switch {
	case p.Queue == nil:
		return nil, errors.New("queue required")
	case p.Remote == nil:
		return nil, errors.New("remote client required")
	case p.Identity == nil:
		return nil, errors.New("identity resolver required")
	case p.Devices == nil:
		return nil, errors.New("device provider required")
	case p.Connectivity == nil:
		return nil, errors.New("connectivity monitor required")
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		queue:       p.Queue,
		remote:      p.Remote,
		identity:    p.Identity,
		devices:     p.Devices,
		online:      p.Connectivity,
		logg:        logg,
		metrics:     p.Metrics,
		maxAttempts: p.MaxAttempts,
		now:         now,
	}, nil
}

// CaptureOrSync attributes rec and either submits it or queues it. Only
// storage failures are returned as errors; anything that goes wrong on the
// network leaves the record queued.
func (o *Orchestrator) CaptureOrSync(ctx context.Context, rec models.CapturedRecord) (Result, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	ctx = o.logg.WithRecordID(ctx, rec.ID.String())

	if err := o.attribute(ctx, &rec); err != nil {
		return Result{}, err
	}

	if !o.online.Online() {
		if _, err := o.queue.Enqueue(ctx, rec); err != nil {
			return Result{}, err
		}
		o.logg.Info(ctx, "offline; capture queued")
		return o.captured(ctx, Result{ID: rec.ID, Status: StatusQueued}), nil
	}

	outcome, sendErr := o.submit(ctx, rec, pathDirect)
	if outcome.Succeeded() {
		return o.captured(ctx, Result{ID: rec.ID, Status: StatusSent, Outcome: outcome}), nil
	}
	o.warnAttempt(ctx, outcome, sendErr)

	if _, err := o.queue.Enqueue(ctx, rec, outbox.WithAttempt(outcome, sendErr)); err != nil {
		return Result{}, err
	}
	return o.captured(ctx, Result{ID: rec.ID, Status: StatusQueued, Outcome: outcome}), nil
}

// drainCall is one shared pass over the outbox. It runs on its own context,
// cancelled only once every caller waiting on it has gone.
type drainCall struct {
	done      chan struct{}
	cancel    context.CancelFunc
	waiters   int
	processed int
	err       error
}

// Drain submits every pending entry once, oldest first, one at a time. It
// returns how many entries the remote confirmed. A drain already running
// absorbs concurrent calls, which get its result. A caller whose ctx ends
// stops waiting; the pass itself stops only when no caller is left.
func (o *Orchestrator) Drain(ctx context.Context) (int, error) {
	call := o.joinDrain(ctx)
	select {
	case <-call.done:
		return call.processed, call.err
	case <-ctx.Done():
		o.leaveDrain(call)
		return 0, ctx.Err()
	}
}

func (o *Orchestrator) joinDrain(ctx context.Context) *drainCall {
	o.drainMu.Lock()
	defer o.drainMu.Unlock()

	if call := o.current; call != nil {
		call.waiters++
		return call
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	call := &drainCall{done: make(chan struct{}), cancel: cancel, waiters: 1}
	o.current = call

	o.background.Add(1)
	go func() {
		defer o.background.Done()
		defer cancel()
		call.processed, call.err = o.drain(runCtx)

		o.drainMu.Lock()
		if o.current == call {
			o.current = nil
		}
		o.drainMu.Unlock()
		close(call.done)
	}()
	return call
}

func (o *Orchestrator) leaveDrain(call *drainCall) {
	o.drainMu.Lock()
	defer o.drainMu.Unlock()

	call.waiters--
	if call.waiters > 0 {
		return
	}
	// nobody wants this pass any more; the next Drain starts a fresh one
	if o.current == call {
		o.current = nil
	}
	call.cancel()
}

// PendingCount reports queued entries not yet confirmed by the remote.
func (o *Orchestrator) PendingCount(ctx context.Context) (int64, error) {
	n, err := o.queue.Count(ctx)
	if err != nil {
		return 0, err
	}
	o.metrics.SetPending(n)
	return n, nil
}

// Wait blocks until background identity refreshes and abandoned drains have
// finished.
func (o *Orchestrator) Wait() {
	o.background.Wait()
}

func (o *Orchestrator) drain(ctx context.Context) (int, error) {
	start := time.Now()
	processed, err := o.drainSnapshot(ctx)
	duration := time.Since(start)
	o.metrics.ObserveDrain(duration, processed, err)

	logCtx := o.logg.WithFields(ctx, map[string]any{
		"processed":   processed,
		"duration_ms": duration.Milliseconds(),
	})
	switch {
	case errors.Is(err, context.Canceled):
		o.logg.Info(logCtx, "drain cancelled")
	case err != nil:
		o.logg.Error(logCtx, "drain stopped", err)
	case processed > 0:
		o.logg.Info(logCtx, "drain complete")
	}
	if _, countErr := o.PendingCount(context.WithoutCancel(ctx)); countErr != nil {
		o.logg.Warn(o.logg.WithField(ctx, "error", countErr.Error()), "pending count failed")
	}
	return processed, err
}

func (o *Orchestrator) drainSnapshot(ctx context.Context) (int, error) {
	entries, err := o.queue.ListPending(ctx)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		ok, err := o.drainOne(o.logg.WithRecordID(ctx, entry.ID.String()), entry.ID)
		if err != nil {
			return processed, err
		}
		if ok {
			processed++
		}
	}
	return processed, nil
}

// drainOne makes one attempt for id. Bookkeeping after the attempt runs even
// if ctx was cancelled mid-request so the entry never stays claimed.
func (o *Orchestrator) drainOne(ctx context.Context, id uuid.UUID) (bool, error) {
	entry, err := o.queue.MarkInFlight(ctx, id)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) || pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			return false, nil
		}
		return false, err
	}

	rec := entry.Record()
	bookkeeping := context.WithoutCancel(ctx)
	if err := o.attribute(ctx, &rec); err != nil {
		return false, o.release(bookkeeping, id, err)
	}
	ctx = o.logg.WithDeviceID(ctx, rec.DeviceID)

	outcome, sendErr := o.submit(ctx, rec, pathDrain)
	if outcome.Succeeded() {
		if err := o.queue.Complete(bookkeeping, id); err != nil {
			return false, o.release(bookkeeping, id, err)
		}
		return true, nil
	}
	o.warnAttempt(ctx, outcome, sendErr)

	if o.shouldDeadLetter(entry, outcome) {
		if err := o.queue.MarkFailed(bookkeeping, id, enums.DeadLetterMaxAttempts, outcome, sendErr); err != nil {
			return false, o.release(bookkeeping, id, err)
		}
		return false, nil
	}
	if err := o.queue.RecordAttempt(bookkeeping, id, outcome, sendErr); err != nil {
		return false, o.release(bookkeeping, id, err)
	}
	return false, nil
}

// release hands a claimed entry back after its bookkeeping failed, so the
// next drain retries it instead of leaving it in flight until restart.
func (o *Orchestrator) release(ctx context.Context, id uuid.UUID, cause error) error {
	if err := o.queue.Release(ctx, id); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (o *Orchestrator) shouldDeadLetter(entry models.OutboxEntry, outcome enums.SubmitOutcome) bool {
	if o.maxAttempts <= 0 || outcome != enums.SubmitClientRejected {
		return false
	}
	return entry.Attempts+1 >= o.maxAttempts
}

// attribute fills device id, user id and capture time where missing. A
// missing user id stays empty when nobody can be resolved.
func (o *Orchestrator) attribute(ctx context.Context, rec *models.CapturedRecord) error {
	if rec.DeviceID == "" {
		id, err := o.devices.GetOrCreate(ctx)
		if err != nil {
			return err
		}
		rec.DeviceID = id
	}
	if rec.UserID == "" {
		if id, ok := o.identity.CurrentIdentity(ctx); ok {
			rec.UserID = id
		}
	}
	if rec.CapturedAt.IsZero() {
		rec.CapturedAt = o.now().UTC()
	}
	return nil
}

func (o *Orchestrator) submit(ctx context.Context, rec models.CapturedRecord, path string) (enums.SubmitOutcome, error) {
	outcome, err := o.remote.Submit(ctx, rec)
	o.metrics.IncSubmission(path, string(outcome))
	if outcome == enums.SubmitAuthenticationRejected {
		o.refreshIdentityAsync(ctx)
	}
	return outcome, err
}

// refreshIdentityAsync starts at most one background refresh.
func (o *Orchestrator) refreshIdentityAsync(ctx context.Context) {
	if !o.refreshing.CompareAndSwap(false, true) {
		return
	}
	o.background.Add(1)
	go func() {
		defer o.background.Done()
		defer o.refreshing.Store(false)
		o.identity.Refresh(context.WithoutCancel(ctx))
	}()
}

func (o *Orchestrator) warnAttempt(ctx context.Context, outcome enums.SubmitOutcome, err error) {
	fields := map[string]any{"outcome": outcome}
	if err != nil {
		fields["error"] = err.Error()
	}
	o.logg.Warn(o.logg.WithFields(ctx, fields), "submit attempt failed")
}

func (o *Orchestrator) captured(ctx context.Context, res Result) Result {
	o.metrics.IncCapture(string(res.Status))
	if res.Status == StatusQueued {
		if _, err := o.PendingCount(ctx); err != nil {
			o.logg.Warn(o.logg.WithField(ctx, "error", err.Error()), "pending count failed")
		}
	}
	return res
}
