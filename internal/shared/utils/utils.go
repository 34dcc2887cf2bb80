package utils

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// UnmarshalTask decodes an asynq task payload into v.
func UnmarshalTask(task *asynq.Task, v any) error {
	if err := json.Unmarshal(task.Payload(), v); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", task.Type(), err)
	}
	return nil
}

// MarshalTask builds an asynq task with a JSON payload.
func MarshalTask(taskType string, payload any, opts ...asynq.Option) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", taskType, err)
	}
	return asynq.NewTask(taskType, data, opts...), nil
}
