package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fieldsync/api/responses"
	"github.com/angelmondragon/fieldsync/api/validators"
	"github.com/angelmondragon/fieldsync/internal/syncer"
	"github.com/angelmondragon/fieldsync/pkg/db/models"
	"github.com/angelmondragon/fieldsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
	"github.com/angelmondragon/fieldsync/pkg/logger"
)

// SyncService is the part of the orchestrator the API drives.
type SyncService interface {
	CaptureOrSync(ctx context.Context, rec models.CapturedRecord) (syncer.Result, error)
	Drain(ctx context.Context) (int, error)
	PendingCount(ctx context.Context) (int64, error)
}

type captureRequest struct {
	ID           *uuid.UUID       `json:"id,omitempty"`
	Name         string           `json:"name" validate:"required,max=100"`
	CapturedAt   *time.Time       `json:"capturedAt,omitempty"`
	ProductModel string           `json:"productModel" validate:"required,max=80"`
	PartNumber   string           `json:"partNumber" validate:"required,max=80"`
	Quantity     int              `json:"quantity" validate:"min=1"`
	Price        *decimal.Decimal `json:"price" validate:"omitempty,gte=0"`
}

func (r captureRequest) toRecord() models.CapturedRecord {
	rec := models.CapturedRecord{
		ID:           uuid.New(),
		Name:         validators.SanitizeString(r.Name, 100),
		ProductModel: validators.SanitizeString(r.ProductModel, 80),
		PartNumber:   validators.SanitizeString(r.PartNumber, 80),
		Quantity:     r.Quantity,
		Price:        *r.Price,
	}
	if r.ID != nil && *r.ID != uuid.Nil {
		rec.ID = *r.ID
	}
	if r.CapturedAt != nil {
		rec.CapturedAt = r.CapturedAt.UTC()
	}
	return rec
}

type captureResponse struct {
	ID      uuid.UUID           `json:"id"`
	Status  syncer.Status       `json:"status"`
	Outcome enums.SubmitOutcome `json:"outcome,omitempty"`
}

// CreateCapture records one capture. It answers 202 whether the record went
// straight to the remote or into the outbox.
func CreateCapture(svc SyncService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req captureRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if req.Price == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
				WithDetails(map[string]string{"price": "is required"}))
			return
		}

		res, err := svc.CaptureOrSync(r.Context(), req.toRecord())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, captureResponse{
			ID:      res.ID,
			Status:  res.Status,
			Outcome: res.Outcome,
		})
	}
}

type syncResponse struct {
	Processed int   `json:"processed"`
	Pending   int64 `json:"pending"`
}

// TriggerSync runs a drain now and reports what is left.
func TriggerSync(svc SyncService, online func() bool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if online != nil && !online() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "remote unreachable"))
			return
		}
		processed, err := svc.Drain(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pending, err := svc.PendingCount(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, syncResponse{Processed: processed, Pending: pending})
	}
}
