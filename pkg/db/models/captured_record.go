package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CapturedRecord is one field capture. ID is generated on the capturing
// device and is the idempotency key on the remote store; it never changes
// across retries.
type CapturedRecord struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name" validate:"required,max=100"`
	CapturedAt   time.Time       `json:"capturedAt"`
	ProductModel string          `json:"productModel" validate:"required,max=80"`
	PartNumber   string          `json:"partNumber" validate:"required,max=80"`
	Quantity     int             `json:"quantity" validate:"min=1"`
	Price        decimal.Decimal `json:"price" validate:"gte=0"`
	DeviceID     string          `json:"deviceId,omitempty" validate:"max=120"`
	UserID       string          `json:"userId"`
}

// NewCapturedRecord stamps a fresh id and capture time.
func NewCapturedRecord(now time.Time) CapturedRecord {
	return CapturedRecord{
		ID:         uuid.New(),
		CapturedAt: now.UTC(),
	}
}

type capturedRecordWire struct {
	ID           uuid.UUID   `json:"id"`
	Name         string      `json:"name"`
	CapturedAt   time.Time   `json:"capturedAt"`
	ProductModel string      `json:"productModel"`
	PartNumber   string      `json:"partNumber"`
	Quantity     int         `json:"quantity"`
	Price        json.Number `json:"price"`
	DeviceID     string      `json:"deviceId,omitempty"`
	UserID       string      `json:"userId"`
}

// MarshalJSON writes price as a bare JSON number; decimal's own encoder
// quotes it.
func (r CapturedRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(capturedRecordWire{
		ID:           r.ID,
		Name:         r.Name,
		CapturedAt:   r.CapturedAt,
		ProductModel: r.ProductModel,
		PartNumber:   r.PartNumber,
		Quantity:     r.Quantity,
		Price:        json.Number(r.Price.String()),
		DeviceID:     r.DeviceID,
		UserID:       r.UserID,
	})
}
