package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/repository"
	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/tasks"
)

// LogArchiveHandler persists wiped message batches delivered by
// TypeLogArchive tasks.
type LogArchiveHandler struct {
	archiveRepo repository.ArchiveRepository
}

// NewLogArchiveHandler creates the handler.
func NewLogArchiveHandler(archiveRepo repository.ArchiveRepository) *LogArchiveHandler {
	if archiveRepo == nil {
		panic("archive repository cannot be nil for LogArchiveHandler")
	}
	return &LogArchiveHandler{archiveRepo: archiveRepo}
}

// ProcessTask implements asynq.Handler. A malformed payload is not
// retryable; a storage failure is returned so asynq retries it.
func (h *LogArchiveHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.LogArchivePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal log archive payload: %v: %w", err, asynq.SkipRetry)
	}

	logCtx := logrus.WithFields(logrus.Fields{
		"task_type": t.Type(),
		"event_key": payload.EventKey,
		"messages":  len(payload.Messages),
	})

	if len(payload.Messages) == 0 {
		logCtx.Debug("Empty archive batch, nothing to store")
		return nil
	}

	if err := h.archiveRepo.SaveBatch(ctx, payload.EventKey, payload.ResetAt, payload.Messages); err != nil {
		logCtx.WithError(err).Error("Failed to archive message batch")
		return err
	}
	logCtx.Info("Message batch archived")
	return nil
}
