package repository

import (
	"context"
	"time"

	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/domain"
)

// ArchiveRepository persists message batches wiped by a full reset,
// so a destructive reset does not lose the log for good. Implemented
// by GORM over MySQL and consumed only by the archiver worker.
type ArchiveRepository interface {
	// SaveBatch stores one reset's worth of messages under the event
	// key with the time the reset was issued.
	SaveBatch(ctx context.Context, eventKey string, resetAt time.Time, msgs []domain.Message) error
}
