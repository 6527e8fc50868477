package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/printworks/jobtrack/internal/client"
	"github.com/printworks/jobtrack/internal/model"
	"github.com/printworks/jobtrack/internal/store"
)

// ArchiveDocument is the audit record written for a retired job
type ArchiveDocument struct {
	Job        *model.JobRecord `json:"job"`
	ArchivedAt time.Time        `json:"archivedAt"`
}

// ArchiveWorker copies retired job cards with their full history to object storage
type ArchiveWorker struct {
	store   store.Store
	storage client.StorageClient
	now     func() time.Time
}

// NewArchiveWorker creates a new archive worker
func NewArchiveWorker(s store.Store, storage client.StorageClient) *ArchiveWorker {
	return &ArchiveWorker{store: s, storage: storage, now: time.Now}
}

// ProcessTask handles archive task processing
func (w *ArchiveWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload archivePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	job, err := w.store.Get(ctx, payload.JobID)
	if errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("job %s not found: %w", payload.JobID, asynq.SkipRetry)
	}
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", payload.JobID, err)
	}

	if !job.Status.IsTerminal() {
		log.Printf("Skipping archive of %s: status is %s", job.ID, job.Status)
		return nil
	}

	data, err := json.Marshal(ArchiveDocument{Job: job, ArchivedAt: w.now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal archive document: %w", err)
	}

	url, err := w.storage.Upload(ctx, ArchiveKey(job.ID), bytes.NewReader(data), "application/json")
	if err != nil {
		return err
	}

	log.Printf("Archived job %s (%s) to %s", job.DisplayCode, job.Status, url)
	return nil
}
