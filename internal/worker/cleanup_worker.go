package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"ragchat/internal/app"
	"ragchat/internal/model"
)

// CleanupWorker drains session-teardown jobs and removes the temporary
// documents and vector index left behind by deleted sessions.
type CleanupWorker struct {
	conn      *amqp.Connection
	tempDocs  *app.TempDocService
	queueName string
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewCleanupWorker(conn *amqp.Connection, tempDocs *app.TempDocService, queueName string, logger *zap.Logger) *CleanupWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CleanupWorker{
		conn:      conn,
		tempDocs:  tempDocs,
		queueName: queueName,
		logger:    logger,
	}
}

func (w *CleanupWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				w.handle(workerCtx, d)
			}
		}
	}()

	return nil
}

func (w *CleanupWorker) handle(ctx context.Context, d amqp.Delivery) {
	var job model.SessionCleanupJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		w.logger.Error("decode cleanup job failed", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	if err := w.tempDocs.Cleanup(ctx, job.TenantID, job.SessionID); err != nil {
		// one redelivery attempt; after that the job is dropped so a
		// persistently failing one cannot spin the consumer
		requeue := !d.Redelivered
		w.logger.Error("session cleanup failed",
			zap.String("tenant_id", job.TenantID),
			zap.String("session_id", job.SessionID),
			zap.Bool("requeue", requeue),
			zap.Error(err))
		_ = d.Nack(false, requeue)
		return
	}

	w.logger.Info("session cleanup done",
		zap.String("tenant_id", job.TenantID),
		zap.String("session_id", job.SessionID))
	_ = d.Ack(false)
}

func (w *CleanupWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
