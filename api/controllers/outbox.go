package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fieldsync/api/responses"
	"github.com/angelmondragon/fieldsync/api/validators"
	"github.com/angelmondragon/fieldsync/pkg/db/models"
	"github.com/angelmondragon/fieldsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
	"github.com/angelmondragon/fieldsync/pkg/logger"
)

// OutboxService exposes queue inspection and requeue to operators.
type OutboxService interface {
	ListPending(ctx context.Context) ([]models.OutboxEntry, error)
	ListFailed(ctx context.Context, limit int) ([]models.OutboxEntry, error)
	Requeue(ctx context.Context, id uuid.UUID) error
}

type outboxEntryView struct {
	ID           uuid.UUID             `json:"id"`
	Name         string                `json:"name"`
	CapturedAt   time.Time             `json:"capturedAt"`
	ProductModel string                `json:"productModel"`
	PartNumber   string                `json:"partNumber"`
	Quantity     int                   `json:"quantity"`
	Price        decimal.Decimal       `json:"price"`
	DeviceID     string                `json:"deviceId,omitempty"`
	UserID       string                `json:"userId"`
	EnqueuedAt   time.Time             `json:"enqueuedAt"`
	State        enums.QueueEntryState `json:"state"`
	Attempts     int                   `json:"attempts"`
	LastTriedAt  *time.Time            `json:"lastTriedAt,omitempty"`
	LastOutcome  *string               `json:"lastOutcome,omitempty"`
	LastError    *string               `json:"lastError,omitempty"`
}

func newOutboxEntryView(e models.OutboxEntry) outboxEntryView {
	return outboxEntryView{
		ID:           e.ID,
		Name:         e.Name,
		CapturedAt:   e.CapturedAt,
		ProductModel: e.ProductModel,
		PartNumber:   e.PartNumber,
		Quantity:     e.Quantity,
		Price:        e.Price,
		DeviceID:     e.DeviceID,
		UserID:       e.UserID,
		EnqueuedAt:   e.EnqueuedAt,
		State:        e.State,
		Attempts:     e.Attempts,
		LastTriedAt:  e.LastTriedAt,
		LastOutcome:  e.LastOutcome,
		LastError:    e.LastError,
	}
}

func views(entries []models.OutboxEntry) []outboxEntryView {
	out := make([]outboxEntryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, newOutboxEntryView(e))
	}
	return out
}

// ListOutbox returns pending entries in drain order.
func ListOutbox(svc OutboxService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := svc.ListPending(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, views(entries))
	}
}

// ListFailedOutbox returns dead-lettered entries, oldest first.
func ListFailedOutbox(svc OutboxService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 100, 1, 1000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entries, err := svc.ListFailed(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, views(entries))
	}
}

func RequeueOutboxEntry(svc OutboxService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid entry id"))
			return
		}
		if err := svc.Requeue(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": id, "state": enums.QueueEntryPending})
	}
}
