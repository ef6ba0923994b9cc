package jobs

import (
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"

	"github.com/deliverly/admin-console/internal/apiclient"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBulkAction runs one action against many entities.
	TaskBulkAction = "console:bulk-action"
)

// BulkActionPayload describes a queued bulk action.
type BulkActionPayload struct {
	Resource string         `json:"resource"`
	Path     string         `json:"path"`
	Action   string         `json:"action"`
	IDs      []string       `json:"ids"`
	Body     map[string]any `json:"body,omitempty"`
	// RequestedBy is the admin id, for logs and the result record.
	RequestedBy string `json:"requestedBy"`
}

// Validate rejects payloads the worker cannot act on.
func (p BulkActionPayload) Validate() error {
	switch {
	case p.Resource == "" || p.Path == "":
		return errors.New("bulk action: resource required")
	case p.Action == "":
		return errors.New("bulk action: action required")
	case len(p.IDs) == 0:
		return errors.New("bulk action: no ids")
	}
	return nil
}

// NewBulkActionTask constructs an Asynq task.
func NewBulkActionTask(payload BulkActionPayload) (*asynq.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBulkAction, data), nil
}

// BulkState is the lifecycle of a queued bulk action.
type BulkState string

const (
	BulkQueued   BulkState = "queued"
	BulkRunning  BulkState = "running"
	BulkComplete BulkState = "complete"
)

// BulkStatus is the record kept for a bulk action.
type BulkStatus struct {
	ID       string                `json:"id"`
	Resource string                `json:"resource"`
	Action   string                `json:"action"`
	State    BulkState             `json:"state"`
	Total    int                   `json:"total"`
	Result   apiclient.BatchResult `json:"result"`
	// Errors holds the failure message per failed id.
	Errors map[string]string `json:"errors,omitempty"`
}
