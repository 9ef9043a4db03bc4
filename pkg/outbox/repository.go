package outbox

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldsync/pkg/db/models"
	"github.com/angelmondragon/fieldsync/pkg/enums"
)

const maxErrorLen = 1024

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) InsertTx(tx *gorm.DB, entry *models.OutboxEntry) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(entry).Error
}

// FindByIDTx returns nil when the entry does not exist.
func (r *Repository) FindByIDTx(tx *gorm.DB, id uuid.UUID) (*models.OutboxEntry, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	var entry models.OutboxEntry
	err := tx.Where("id = ?", id).Take(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.OutboxEntry, error) {
	return r.FindByIDTx(r.db.WithContext(ctx), id)
}

// UpdateTx writes the given columns for id.
func (r *Repository) UpdateTx(tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if msg, ok := fields["last_error"].(*string); ok && msg != nil {
		truncated := truncateError(*msg)
		fields["last_error"] = &truncated
	}
	return tx.Model(&models.OutboxEntry{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *Repository) DeleteTx(tx *gorm.DB, id uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Where("id = ?", id).Delete(&models.OutboxEntry{}).Error
}

// ListByState returns entries in drain order. limit <= 0 means no limit.
func (r *Repository) ListByState(ctx context.Context, limit int, states ...enums.QueueEntryState) ([]models.OutboxEntry, error) {
	var rows []models.OutboxEntry
	q := r.db.WithContext(ctx).
		Where("state IN ?", states).
		Order("enqueued_at ASC").
		Order("seq ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}

func (r *Repository) CountByState(ctx context.Context, states ...enums.QueueEntryState) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OutboxEntry{}).
		Where("state IN ?", states).
		Count(&count).Error
	return count, err
}

// ResetStateTx moves every entry in from to to and returns how many moved.
func (r *Repository) ResetStateTx(tx *gorm.DB, from, to enums.QueueEntryState, now time.Time) (int64, error) {
	if tx == nil {
		return 0, errors.New("transaction required")
	}
	res := tx.Model(&models.OutboxEntry{}).
		Where("state = ?", from).
		Updates(map[string]any{"state": to, "updated_at": now})
	return res.RowsAffected, res.Error
}

// truncateError caps msg at maxErrorLen bytes without splitting a character
// and drops any invalid UTF-8 so postgres accepts the column.
func truncateError(msg string) string {
	msg = strings.ToValidUTF8(msg, "")
	if len(msg) <= maxErrorLen {
		return msg
	}
	cut := maxErrorLen
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
