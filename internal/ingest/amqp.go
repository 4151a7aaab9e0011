package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/docsift/docsift/internal/logger"
)

// Job is the queue message asking a worker to ingest one document
type Job struct {
	DocumentID uuid.UUID `json:"document_id"`
}

func decodeJob(body []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return Job{}, fmt.Errorf("decode job failed: %w", err)
	}
	if job.DocumentID == uuid.Nil {
		return Job{}, fmt.Errorf("decode job failed: missing document_id")
	}
	return job, nil
}

// DialAMQP connects to RabbitMQ and checks the broker answers on a channel
func DialAMQP(ctx context.Context, url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq failed: %w", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		ch, err := conn.Channel()
		if err == nil {
			err = ch.Close()
		}
		done <- err
	}()

	select {
	case <-checkCtx.Done():
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq health check timeout: %w", checkCtx.Err())
	case err := <-done:
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("open rabbitmq channel failed: %w", err)
		}
		return conn, nil
	}
}

func declareQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue failed: %w", err)
	}
	return nil
}

// Publisher submits documents to a durable RabbitMQ queue
type Publisher struct {
	conn      *amqp.Connection
	queueName string
}

var _ Submitter = (*Publisher)(nil)

func NewPublisher(conn *amqp.Connection, queueName string) *Publisher {
	return &Publisher{
		conn:      conn,
		queueName: queueName,
	}
}

// Submit publishes a persistent job for id
func (p *Publisher) Submit(ctx context.Context, id uuid.UUID) (Status, error) {
	ch, err := p.conn.Channel()
	if err != nil {
		return "", fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := declareQueue(ch, p.queueName); err != nil {
		return "", err
	}

	payload, err := json.Marshal(Job{DocumentID: id})
	if err != nil {
		return "", fmt.Errorf("marshal job payload failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return "", fmt.Errorf("publish job failed: %w", err)
	}
	return StatusProcessing, nil
}

// JobProcessor ingests documents and can record a failure that happened
// before ingestion started
type JobProcessor interface {
	DocumentProcessor
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// Worker consumes ingestion jobs from RabbitMQ
type Worker struct {
	conn      *amqp.Connection
	proc      JobProcessor
	locker    Locker
	queueName string
	log       *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(conn *amqp.Connection, proc JobProcessor, queueName string, log *logger.Logger, locker Locker) *Worker {
	return &Worker{
		conn:      conn,
		proc:      proc,
		locker:    locker,
		queueName: queueName,
		log:       log,
	}
}

// Start begins consuming; jobs are handled one at a time
func (w *Worker) Start(ctx context.Context) error {
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
	if err := declareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker prefetch failed: %w", err)
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
				if w.handle(workerCtx, d.Body) {
					_ = d.Ack(false)
				} else {
					_ = d.Nack(false, false)
				}
			}
		}
	}()

	w.log.Info("ingest worker started", "queue", w.queueName)
	return nil
}

// handle processes one message body. It returns false only for messages
// that can never succeed; processing failures are recorded on the document.
func (w *Worker) handle(ctx context.Context, body []byte) bool {
	job, err := decodeJob(body)
	if err != nil {
		w.log.Warn("dropping undecodable ingest job", "error", err)
		return false
	}

	if w.locker != nil {
		unlock, ok, err := w.locker.TryLock(ctx, job.DocumentID)
		if err != nil {
			w.log.Error("ingest lock failed", "document_id", job.DocumentID, "error", err)
			reason := fmt.Sprintf("could not acquire ingest lock: %v", err)
			if markErr := w.proc.MarkFailed(context.WithoutCancel(ctx), job.DocumentID, reason); markErr != nil {
				w.log.Error("failed to record processing failure", "document_id", job.DocumentID, "error", markErr)
			}
			return true
		}
		if !ok {
			w.log.Info("document already being processed elsewhere", "document_id", job.DocumentID)
			return true
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				w.log.Warn("failed to release ingest lock", "document_id", job.DocumentID, "error", err)
			}
		}()
	}

	if err := w.proc.ProcessDocument(ctx, job.DocumentID); err != nil {
		w.log.Warn("ingest job failed", "document_id", job.DocumentID, "error", err)
	}
	return true
}

// Close stops consuming and waits for the current job
func (w *Worker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
