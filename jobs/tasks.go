package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/hadmean/hadmean/internal/actions"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskActionPerform runs one action instance against its integration.
	TaskActionPerform = "actions:perform"
)

// MaxActionRetry bounds retries of a failed perform.
const MaxActionRetry = 3

// NewActionPerformTask constructs an Asynq task for payload.
func NewActionPerformTask(payload actions.RunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskActionPerform, data), nil
}
