// Package queue connects the batch processor to Kafka: it consumes ingest
// messages one at a time and forwards failed ones to a dead-letter topic.
package queue

import (
	"context"

	"github.com/alapierre/go-factus-etl/etl/batch"
	"github.com/alapierre/go-factus-etl/etl/metrics"
	"github.com/alapierre/go-factus-etl/factus"
	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "etl.queue")

// MessageReader is the consuming side of a *kafka.Reader.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// MessageWriter is the producing side of a *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Executor processes one raw message and reports the batch id it worked on.
// *batch.Processor implements it.
type Executor interface {
	Execute(ctx context.Context, raw []byte) (string, error)
}

type Consumer struct {
	reader     MessageReader
	deadLetter MessageWriter
	executor   Executor
}

func NewConsumer(reader MessageReader, deadLetter MessageWriter, executor Executor) *Consumer {
	return &Consumer{
		reader:     reader,
		deadLetter: deadLetter,
		executor:   executor,
	}
}

// Run consumes until ctx is cancelled, which returns nil. Any other returned
// error stops the worker: a fetch, dead-letter or commit failure, or a batch
// that failed on missing Factus credentials.
func (c *Consumer) Run(ctx context.Context) error {
	logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("consumer stopped")
				return nil
			}
			return errors.Wrap(err, "fetch message")
		}

		if err := c.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				logger.Info("consumer stopped")
				return nil
			}
			return err
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	log := logger.WithFields(logrus.Fields{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	batchID, execErr := c.executor.Execute(ctx, msg.Value)
	if execErr != nil {
		// shutdown mid batch: leave the offset uncommitted so the message is redelivered
		if ctx.Err() != nil {
			log.WithField("batch_id", batchID).Warn("batch interrupted by shutdown")
			return ctx.Err()
		}
		if err := c.sendToDeadLetter(ctx, msg, batchID, execErr); err != nil {
			return err
		}
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "commit offset %d", msg.Offset)
	}

	if errors.Is(execErr, factus.ErrAuthConfiguration) {
		return errors.Wrap(execErr, "factus credentials are not configured")
	}
	return nil
}

func (c *Consumer) sendToDeadLetter(ctx context.Context, msg kafka.Message, batchID string, cause error) error {
	errorType := batch.ErrorType(cause)
	logger.WithFields(logrus.Fields{
		"batch_id":   batchID,
		"error_type": errorType,
		"offset":     msg.Offset,
	}).WithError(cause).Error("batch failed, sending to dead-letter topic")

	dl := newDeadLetter(msg, batchID, errorType, cause)
	out := kafka.Message{
		Key:   msg.Key,
		Value: dl.Encode(),
	}
	if err := c.deadLetter.WriteMessages(ctx, out); err != nil {
		return errors.Wrap(err, "write dead letter")
	}
	metrics.DeadLetters.WithLabelValues(errorType).Inc()
	return nil
}
