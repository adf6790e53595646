// Package tasks defines the asynq task types exchanged between the
// station and the archiver worker.
package tasks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/domain"
)

// Task type constants.
const (
	// TypeLogArchive carries one reset's worth of wiped messages to
	// durable storage.
	TypeLogArchive = "log:archive"
)

// LogArchivePayload is the body of a TypeLogArchive task.
type LogArchivePayload struct {
	EventKey string           `json:"event_key"`
	ResetAt  time.Time        `json:"reset_at"`
	Messages []domain.Message `json:"messages"`
}

// NewLogArchiveTask builds a TypeLogArchive task.
func NewLogArchiveTask(eventKey string, resetAt time.Time, msgs []domain.Message) (*asynq.Task, error) {
	payload, err := json.Marshal(LogArchivePayload{
		EventKey: eventKey,
		ResetAt:  resetAt,
		Messages: msgs,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeLogArchive, payload), nil
}

// ArchiveEnqueuer hands reset batches to the archiver queue. It is the
// station-side half of the archival flow and implements
// service.Archiver.
type ArchiveEnqueuer struct {
	client   *asynq.Client
	eventKey string
}

// NewArchiveEnqueuer creates an ArchiveEnqueuer for one event.
func NewArchiveEnqueuer(client *asynq.Client, eventKey string) *ArchiveEnqueuer {
	if client == nil {
		panic("asynq client cannot be nil for ArchiveEnqueuer")
	}
	return &ArchiveEnqueuer{client: client, eventKey: eventKey}
}

// EnqueueReset queues the wiped messages for archival. Archival is a
// best-effort convenience, so the task goes to the low-priority queue.
func (e *ArchiveEnqueuer) EnqueueReset(ctx context.Context, resetAt time.Time, msgs []domain.Message) error {
	task, err := NewLogArchiveTask(e.eventKey, resetAt, msgs)
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task, asynq.Queue("low"), asynq.MaxRetry(5))
	return err
}
