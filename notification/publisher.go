package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/ahmadramadhannn/mudah-titip/agreement"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Publisher hands committed agreement events to the worker queue.
type Publisher struct {
	queue     Enqueuer
	queueName string
	maxRetry  int
}

func NewPublisher(queue Enqueuer) *Publisher {
	return &Publisher{queue: queue, queueName: QueueDefault, maxRetry: 5}
}

// WithQueue routes tasks to a named asynq queue.
func (p *Publisher) WithQueue(name string) *Publisher {
	if name != "" {
		p.queueName = name
	}
	return p
}

// Notify implements agreement.Notifier.
func (p *Publisher) Notify(ctx context.Context, ev agreement.Event) error {
	payload := DeliverPayload{
		RecipientID: ev.RecipientID,
		Kind:        string(ev.Kind),
		Subject:     ev.Subject,
		Message:     ev.Message,
		ReferenceID: ev.ReferenceID,
	}
	task, err := NewDeliverTask(payload)
	if err != nil {
		return fmt.Errorf("notification: build task: %w", err)
	}

	_, err = p.queue.EnqueueContext(ctx, task,
		asynq.Queue(p.queueName),
		asynq.MaxRetry(p.maxRetry),
		asynq.TaskID(payload.DedupeKey()),
	)
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("notification: enqueue: %w", err)
	}
	return nil
}
