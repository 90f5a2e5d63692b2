package notification

import (
	"encoding/json"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the queue notification tasks are placed on.
	QueueDefault = "default"
	// TaskTypeDeliver persists a negotiation event into the recipient's inbox.
	TaskTypeDeliver = "notification:deliver"
)

// DeliverPayload describes one notification to store.
type DeliverPayload struct {
	RecipientID string `json:"recipient_id"`
	Kind        string `json:"kind"`
	Subject     string `json:"subject"`
	Message     string `json:"message"`
	ReferenceID string `json:"reference_id"`
}

// DedupeKey identifies a delivery so that retried tasks store one row.
func (p DeliverPayload) DedupeKey() string {
	return strings.Join([]string{p.Kind, p.ReferenceID, p.RecipientID}, ":")
}

// NewDeliverTask constructs an Asynq task.
func NewDeliverTask(payload DeliverPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDeliver, data), nil
}
