package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldsync/pkg/db/models"
	"github.com/angelmondragon/fieldsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
	"github.com/angelmondragon/fieldsync/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Queue is the durable outbox. Every mutation holds mu, so there is exactly
// one writer at a time; reads go straight to the store.
type Queue struct {
	db   txRunner
	repo *Repository
	logg *logger.Logger
	now  func() time.Time

	mu sync.Mutex
}

type QueueOption func(*Queue)

// WithClock overrides the clock used for enqueue and attempt timestamps.
func WithClock(now func() time.Time) QueueOption {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

func NewQueue(db txRunner, repo *Repository, logg *logger.Logger, opts ...QueueOption) *Queue {
	if logg == nil {
		logg = logger.Nop()
	}
	q := &Queue{
		db:   db,
		repo: repo,
		logg: logg,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Attempt describes the outcome of a submit attempt that did not succeed.
type Attempt struct {
	Outcome enums.SubmitOutcome
	Err     error
}

func (a Attempt) fields(now time.Time) map[string]any {
	outcome := string(a.Outcome)
	fields := map[string]any{
		"last_tried_at": now,
		"last_outcome":  &outcome,
		"last_error":    (*string)(nil),
		"attempts":      gorm.Expr("attempts + 1"),
		"updated_at":    now,
	}
	if a.Err != nil {
		msg := a.Err.Error()
		fields["last_error"] = &msg
	}
	return fields
}

type enqueueOptions struct {
	attempt *Attempt
}

type EnqueueOption func(*enqueueOptions)

// WithAttempt records a failed direct submit together with the enqueue.
func WithAttempt(outcome enums.SubmitOutcome, err error) EnqueueOption {
	return func(o *enqueueOptions) {
		o.attempt = &Attempt{Outcome: outcome, Err: err}
	}
}

// Enqueue persists rec as pending. Enqueueing an id that is already present
// replaces the record fields and keeps its place in line (seq, enqueued_at
// and attempts are left alone).
func (q *Queue) Enqueue(ctx context.Context, rec models.CapturedRecord, opts ...EnqueueOption) (uuid.UUID, error) {
	if rec.ID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "record id is required")
	}
	var o enqueueOptions
	for _, opt := range opts {
		opt(&o)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UTC()
	inserted := false
	err := q.db.WithTx(ctx, func(tx *gorm.DB) error {
		existing, err := q.repo.FindByIDTx(tx, rec.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			entry := &models.OutboxEntry{
				EnqueuedAt: now,
				State:      enums.QueueEntryPending,
				UpdatedAt:  now,
			}
			entry.ApplyRecord(rec)
			if err := q.repo.InsertTx(tx, entry); err != nil {
				return err
			}
			inserted = true
			if o.attempt != nil {
				return q.repo.UpdateTx(tx, rec.ID, o.attempt.fields(now))
			}
			return nil
		}

		var updated models.OutboxEntry
		updated.ApplyRecord(rec)
		fields := map[string]any{
			"name":          updated.Name,
			"captured_at":   updated.CapturedAt,
			"product_model": updated.ProductModel,
			"part_number":   updated.PartNumber,
			"quantity":      updated.Quantity,
			"price":         updated.Price,
			"device_id":     updated.DeviceID,
			"user_id":       updated.UserID,
			"updated_at":    now,
		}
		if existing.State == enums.QueueEntryFailed {
			fields["state"] = enums.QueueEntryPending
		}
		if o.attempt != nil {
			for k, v := range o.attempt.fields(now) {
				fields[k] = v
			}
		}
		return q.repo.UpdateTx(tx, rec.ID, fields)
	})
	if err != nil {
		return uuid.Nil, pkgerrors.Storage(err, "enqueue record")
	}

	logCtx := q.logg.WithFields(q.logg.WithRecordID(ctx, rec.ID.String()), map[string]any{
		"inserted": inserted,
	})
	q.logg.Debug(logCtx, "outbox entry stored")
	return rec.ID, nil
}

// Remove deletes the entry for id. Removing an absent id is not an error.
func (q *Queue) Remove(ctx context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	err := q.db.WithTx(ctx, func(tx *gorm.DB) error {
		return q.repo.DeleteTx(tx, id)
	})
	return pkgerrors.Storage(err, "remove entry")
}

// ListPending returns a snapshot of pending entries ordered by enqueued_at,
// then seq.
func (q *Queue) ListPending(ctx context.Context) ([]models.OutboxEntry, error) {
	rows, err := q.repo.ListByState(ctx, 0, enums.QueueEntryPending)
	if err != nil {
		return nil, pkgerrors.Storage(err, "list pending entries")
	}
	return rows, nil
}

// Count reports entries still waiting for the remote to confirm them.
func (q *Queue) Count(ctx context.Context) (int64, error) {
	n, err := q.repo.CountByState(ctx, enums.QueueEntryPending, enums.QueueEntryInFlight)
	if err != nil {
		return 0, pkgerrors.Storage(err, "count entries")
	}
	return n, nil
}

func (q *Queue) Get(ctx context.Context, id uuid.UUID) (models.OutboxEntry, error) {
	entry, err := q.repo.FindByID(ctx, id)
	if err != nil {
		return models.OutboxEntry{}, pkgerrors.Storage(err, "load entry")
	}
	if entry == nil {
		return models.OutboxEntry{}, notFound(id)
	}
	return *entry, nil
}

// MarkInFlight claims a pending entry for a submit attempt and returns its
// current contents.
func (q *Queue) MarkInFlight(ctx context.Context, id uuid.UUID) (models.OutboxEntry, error) {
	var claimed models.OutboxEntry
	err := q.apply(ctx, id, EventDispatch, func(entry *models.OutboxEntry, now time.Time) map[string]any {
		claimed = *entry
		claimed.State = enums.QueueEntryInFlight
		return map[string]any{"updated_at": now}
	})
	if err != nil {
		return models.OutboxEntry{}, err
	}
	return claimed, nil
}

// RecordAttempt notes a failed attempt and puts the entry back to pending.
func (q *Queue) RecordAttempt(ctx context.Context, id uuid.UUID, outcome enums.SubmitOutcome, cause error) error {
	attempt := Attempt{Outcome: outcome, Err: cause}

	q.mu.Lock()
	defer q.mu.Unlock()

	return q.mutate(ctx, id, func(tx *gorm.DB, entry *models.OutboxEntry, now time.Time) error {
		fields := attempt.fields(now)
		if entry.State == enums.QueueEntryInFlight {
			next, err := transition(ctx, entry.State, EventRelease)
			if err != nil {
				return err
			}
			fields["state"] = next
		}
		return q.repo.UpdateTx(tx, id, fields)
	})
}

// Release puts an in-flight entry back to pending without counting an
// attempt.
func (q *Queue) Release(ctx context.Context, id uuid.UUID) error {
	return q.apply(ctx, id, EventRelease, func(_ *models.OutboxEntry, now time.Time) map[string]any {
		return map[string]any{"updated_at": now}
	})
}

// Complete confirms an in-flight entry and deletes it.
func (q *Queue) Complete(ctx context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.mutate(ctx, id, func(tx *gorm.DB, entry *models.OutboxEntry, _ time.Time) error {
		if _, err := transition(ctx, entry.State, EventConfirm); err != nil {
			return err
		}
		return q.repo.DeleteTx(tx, id)
	})
}

// MarkFailed parks an in-flight entry after recording the final attempt.
func (q *Queue) MarkFailed(ctx context.Context, id uuid.UUID, reason enums.DeadLetterReason, outcome enums.SubmitOutcome, cause error) error {
	attempt := Attempt{Outcome: outcome, Err: cause}
	err := q.apply(ctx, id, EventDeadLetter, func(_ *models.OutboxEntry, now time.Time) map[string]any {
		return attempt.fields(now)
	})
	if err != nil {
		return err
	}
	logCtx := q.logg.WithFields(q.logg.WithRecordID(ctx, id.String()), map[string]any{
		"reason":  reason,
		"outcome": outcome,
	})
	q.logg.Warn(logCtx, "outbox entry dead-lettered")
	return nil
}

// ListFailed returns dead-lettered entries, oldest first.
func (q *Queue) ListFailed(ctx context.Context, limit int) ([]models.OutboxEntry, error) {
	rows, err := q.repo.ListByState(ctx, limit, enums.QueueEntryFailed)
	if err != nil {
		return nil, pkgerrors.Storage(err, "list failed entries")
	}
	return rows, nil
}

// Requeue returns a dead-lettered entry to pending with a fresh attempt budget.
func (q *Queue) Requeue(ctx context.Context, id uuid.UUID) error {
	return q.apply(ctx, id, EventRequeue, func(_ *models.OutboxEntry, now time.Time) map[string]any {
		return map[string]any{"attempts": 0, "updated_at": now}
	})
}

// RecoverInFlight releases entries a previous process left in flight.
func (q *Queue) RecoverInFlight(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var moved int64
	err := q.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := q.repo.ResetStateTx(tx, enums.QueueEntryInFlight, enums.QueueEntryPending, q.now().UTC())
		moved = n
		return err
	})
	if err != nil {
		return 0, pkgerrors.Storage(err, "recover in-flight entries")
	}
	if moved > 0 {
		q.logg.Warn(q.logg.WithField(ctx, "entries", moved), "released entries left in flight")
	}
	return moved, nil
}

// apply runs event against the entry and writes the returned columns with
// the new state.
func (q *Queue) apply(ctx context.Context, id uuid.UUID, event string, fields func(*models.OutboxEntry, time.Time) map[string]any) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.mutate(ctx, id, func(tx *gorm.DB, entry *models.OutboxEntry, now time.Time) error {
		next, err := transition(ctx, entry.State, event)
		if err != nil {
			return err
		}
		update := fields(entry, now)
		update["state"] = next
		return q.repo.UpdateTx(tx, id, update)
	})
}

// mutate loads the entry inside a transaction and hands it to fn. Callers
// hold mu.
func (q *Queue) mutate(ctx context.Context, id uuid.UUID, fn func(tx *gorm.DB, entry *models.OutboxEntry, now time.Time) error) error {
	now := q.now().UTC()
	err := q.db.WithTx(ctx, func(tx *gorm.DB) error {
		entry, err := q.repo.FindByIDTx(tx, id)
		if err != nil {
			return err
		}
		if entry == nil {
			return notFound(id)
		}
		return fn(tx, entry, now)
	})
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Storage(err, "update entry")
}

func notFound(id uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "outbox entry not found").
		WithDetails(map[string]any{"id": id.String()})
}
