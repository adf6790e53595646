package gormpersistence

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/domain"
)

// ArchivedMessage is the durable row for one wiped log message. The
// original backend-assigned ID lands in MessageID; the row gets its
// own archive identity.
type ArchivedMessage struct {
	ID        uint64    `gorm:"primaryKey"`
	EventKey  string    `gorm:"size:191;index;not null"`
	ResetAt   time.Time `gorm:"index;not null"`
	MessageID uint64    `gorm:"not null"`
	SentAt    string    `gorm:"size:16;not null"`
	Station   string    `gorm:"size:32;not null"`
	Text      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// GormArchiveRepository is the GORM implementation of
// repository.ArchiveRepository.
type GormArchiveRepository struct {
	db *gorm.DB
}

// NewGormArchiveRepository creates the repository.
func NewGormArchiveRepository(db *gorm.DB) *GormArchiveRepository {
	if db == nil {
		panic("database connection cannot be nil for GormArchiveRepository")
	}
	return &GormArchiveRepository{db: db}
}

// SaveBatch stores one reset's worth of messages in a single batch
// insert.
func (r *GormArchiveRepository) SaveBatch(ctx context.Context, eventKey string, resetAt time.Time, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	rows := make([]ArchivedMessage, 0, len(msgs))
	for _, msg := range msgs {
		rows = append(rows, ArchivedMessage{
			EventKey:  eventKey,
			ResetAt:   resetAt,
			MessageID: msg.ID,
			SentAt:    msg.Time,
			Station:   msg.Station,
			Text:      msg.Text,
		})
	}

	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("gorm: failed to archive %d messages for event %s: %w", len(rows), eventKey, err)
	}
	return nil
}
