package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fieldsync/pkg/enums"
)

// OutboxEntry is a captured record waiting for the remote store to accept it.
type OutboxEntry struct {
	Seq          int64                 `gorm:"column:seq;primaryKey;autoIncrement"`
	ID           uuid.UUID             `gorm:"column:id;type:uuid;not null;uniqueIndex"`
	Name         string                `gorm:"column:name;not null"`
	CapturedAt   time.Time             `gorm:"column:captured_at;not null"`
	ProductModel string                `gorm:"column:product_model;not null"`
	PartNumber   string                `gorm:"column:part_number;not null"`
	Quantity     int                   `gorm:"column:quantity;not null"`
	Price        decimal.Decimal       `gorm:"column:price;type:numeric(12,2);not null"`
	DeviceID     string                `gorm:"column:device_id;not null;default:''"`
	UserID       string                `gorm:"column:user_id;not null;default:''"`
	EnqueuedAt   time.Time             `gorm:"column:enqueued_at;not null"`
	State        enums.QueueEntryState `gorm:"column:state;not null;default:pending"`
	Attempts     int                   `gorm:"column:attempts;not null;default:0"`
	LastTriedAt  *time.Time            `gorm:"column:last_tried_at"`
	LastOutcome  *string               `gorm:"column:last_outcome"`
	LastError    *string               `gorm:"column:last_error"`
	UpdatedAt    time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (OutboxEntry) TableName() string { return "outbox_entries" }

// Record returns the wire-facing copy of the entry. Queue bookkeeping
// columns stay behind.
func (e OutboxEntry) Record() CapturedRecord {
	return CapturedRecord{
		ID:           e.ID,
		Name:         e.Name,
		CapturedAt:   e.CapturedAt,
		ProductModel: e.ProductModel,
		PartNumber:   e.PartNumber,
		Quantity:     e.Quantity,
		Price:        e.Price,
		DeviceID:     e.DeviceID,
		UserID:       e.UserID,
	}
}

// ApplyRecord copies the record columns onto the entry.
func (e *OutboxEntry) ApplyRecord(r CapturedRecord) {
	e.ID = r.ID
	e.Name = r.Name
	e.CapturedAt = r.CapturedAt.UTC()
	e.ProductModel = r.ProductModel
	e.PartNumber = r.PartNumber
	e.Quantity = r.Quantity
	e.Price = r.Price
	e.DeviceID = r.DeviceID
	e.UserID = r.UserID
}
