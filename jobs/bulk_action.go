package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"maps"
	"sync"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/deliverly/admin-console/internal/apiclient"
	jobmetrics "github.com/deliverly/admin-console/internal/jobs"
)

// BulkActionJob applies one action to every id of a payload, a bounded
// number at a time. Individual failures are recorded, not retried.
type BulkActionJob struct {
	API         *apiclient.Client
	Results     *ResultStore
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Concurrency int
}

// NewBulkActionJob initialises the bulk action handler.
func NewBulkActionJob(api *apiclient.Client, results *ResultStore, logger *slog.Logger, metrics *jobmetrics.Metrics, concurrency int) *BulkActionJob {
	return &BulkActionJob{API: api, Results: results, Logger: logger, Metrics: metrics, Concurrency: concurrency}
}

// Handle executes a TaskBulkAction task.
func (j *BulkActionJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.API == nil {
		return errors.New("bulk action: handler not configured")
	}
	var payload BulkActionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if err := payload.Validate(); err != nil {
		return errors.Join(err, asynq.SkipRetry)
	}
	id, _ := asynq.GetTaskID(ctx)
	status, err := j.Run(ctx, id, payload)
	if err != nil {
		return err
	}
	j.logger().Info("bulk action finished",
		slog.String("id", id),
		slog.String("resource", payload.Resource),
		slog.String("action", payload.Action),
		slog.Int("successful", len(status.Result.Successful)),
		slog.Int("failed", len(status.Result.Failed)))
	return nil
}

// Run performs the action for every id and stores the summary under id.
func (j *BulkActionJob) Run(ctx context.Context, id string, payload BulkActionPayload) (BulkStatus, error) {
	tracker := j.Metrics.Track(TaskBulkAction)
	status := BulkStatus{
		ID:       id,
		Resource: payload.Resource,
		Action:   payload.Action,
		State:    BulkRunning,
		Total:    len(payload.IDs),
	}
	if err := j.Results.Save(ctx, status); err != nil {
		return status, tracker.End(err)
	}

	resource := apiclient.NewResource[json.RawMessage](j.API, payload.Resource, payload.Path, nil)

	var (
		mu     sync.Mutex
		failed = make(map[string]string)
		okIDs  []string
	)
	g, gctx := errgroup.WithContext(ctx)
	limit := j.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for _, entityID := range payload.IDs {
		g.Go(func() error {
			body := maps.Clone(payload.Body)
			if body == nil {
				body = make(map[string]any)
			}
			itemCtx := apiclient.WithIdempotencyKey(gctx, id+":"+entityID)
			done := j.Metrics.ItemStarted(payload.Resource)
			_, err := resource.Action(itemCtx, entityID, payload.Action, body)
			done()
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[entityID] = err.Error()
				if apiclient.IsUnauthorized(err) {
					// The service key was rejected; nothing else will succeed.
					return err
				}
				return nil
			}
			okIDs = append(okIDs, entityID)
			return nil
		})
	}
	groupErr := g.Wait()

	status.State = BulkComplete
	status.Result = summarise(payload.IDs, okIDs, failed)
	status.Errors = failed
	j.Metrics.AddBulkItems(payload.Resource, payload.Action, len(status.Result.Successful), len(status.Result.Failed))
	if err := j.Results.Save(context.WithoutCancel(ctx), status); err != nil {
		return status, tracker.End(err)
	}
	if groupErr != nil {
		j.logger().Error("bulk action aborted", slog.String("id", id), slog.Any("error", groupErr))
		return status, tracker.End(errors.Join(groupErr, asynq.SkipRetry))
	}
	return status, tracker.End(nil)
}

// summarise orders ids as submitted. Ids never attempted because the group
// aborted count as failed.
func summarise(all, ok []string, failed map[string]string) apiclient.BatchResult {
	done := make(map[string]bool, len(ok))
	for _, id := range ok {
		done[id] = true
	}
	result := apiclient.BatchResult{Successful: []string{}, Failed: []string{}}
	for _, id := range all {
		if done[id] {
			result.Successful = append(result.Successful, id)
			continue
		}
		if _, seen := failed[id]; !seen {
			failed[id] = "not attempted"
		}
		result.Failed = append(result.Failed, id)
	}
	return result
}

func (j *BulkActionJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
