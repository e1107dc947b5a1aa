// Package events publishes one event per processed invoice.
package events

import (
	"context"
	"time"

	"github.com/alapierre/go-factus-etl/etl/table"
	"github.com/go-faster/errors"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "etl.events")

// TypeInvoiceProcessed is the asynq task type downstream workers register for.
const TypeInvoiceProcessed = "invoice:processed"

// Enqueuer is the part of *asynq.Client the publisher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqPublisher enqueues every processed row as an invoice:processed task.
type AsynqPublisher struct {
	client Enqueuer
	queue  string
}

func NewAsynqPublisher(client Enqueuer, queue string) *AsynqPublisher {
	return &AsynqPublisher{client: client, queue: queue}
}

func NewInvoiceProcessedTask(row table.Row) (*asynq.Task, error) {
	payload, err := row.MarshalJSON()
	if err != nil {
		return nil, errors.Wrap(err, "encode invoice event")
	}
	return asynq.NewTask(TypeInvoiceProcessed, payload), nil
}

func (p *AsynqPublisher) PublishInvoiceProcessed(ctx context.Context, row table.Row) error {
	task, err := NewInvoiceProcessedTask(row)
	if err != nil {
		return err
	}
	info, err := p.client.EnqueueContext(ctx, task,
		asynq.Queue(p.queue),
		asynq.MaxRetry(5),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return errors.Wrapf(err, "enqueue event for invoice %s", row.ExternalID)
	}
	logger.WithFields(logrus.Fields{
		"external_id": row.ExternalID,
		"task_id":     info.ID,
	}).Debug("invoice event enqueued")
	return nil
}
