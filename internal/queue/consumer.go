package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facecheck/internal/models"
)

type TaskHandler func(ctx context.Context, task models.RecognitionTask) error

type AttendanceHandler func(ctx context.Context, ev models.AttendanceEvent) error

// terminalError marks a message that must not be redelivered.
type terminalError struct{ err error }

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

// Terminal wraps err so the consumer terminates the message instead of
// asking for redelivery.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

func IsTerminal(err error) bool {
	var te *terminalError
	return errors.As(err, &te)
}

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, err := connect(natsURL, "facecheck-consumer")
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Consumer{nc: nc, js: js}, nil
}

// settle acks, naks or terminates msg according to the handler result.
func settle(msg jetstream.Msg, err error) {
	switch {
	case err == nil:
		_ = msg.Ack()
	case IsTerminal(err):
		_ = msg.Term()
	default:
		_ = msg.Nak()
	}
}

// ConsumeTasks starts a durable pull consumer on the tasks stream and a
// pool of workerCount goroutines handling its messages.
func (c *Consumer) ConsumeTasks(ctx context.Context, consumerName string, handler TaskHandler, workerCount int) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	stream, err := c.js.Stream(ctx, TasksStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", TasksStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    3,
		FilterSubject: TasksSubjectBase + ".>",
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	msgCh := make(chan jetstream.Msg, workerCount*2)
	go fetchLoop(ctx, cons, workerCount, msgCh)

	for i := 0; i < workerCount; i++ {
		go func(workerID int) {
			for msg := range msgCh {
				var task models.RecognitionTask
				if err := json.Unmarshal(msg.Data(), &task); err != nil {
					slog.Error("unmarshal recognition task", "worker", workerID, "error", err)
					_ = msg.Term()
					continue
				}
				err := handler(ctx, task)
				if err != nil {
					slog.Error("process recognition task", "worker", workerID, "task_id", task.TaskID,
						"kiosk_id", task.KioskID, "terminal", IsTerminal(err), "error", err)
				}
				settle(msg, err)
			}
		}(i)
	}

	slog.Info("recognition consumer started", "consumer", consumerName, "workers", workerCount)
	return nil
}

func fetchLoop(ctx context.Context, cons jetstream.Consumer, batchSize int, out chan<- jetstream.Msg) {
	defer close(out)
	for {
		if ctx.Err() != nil {
			return
		}

		batch, err := cons.Fetch(batchSize, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("fetch recognition tasks", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for msg := range batch.Messages() {
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// fanoutInactiveThreshold is how long the server keeps a fan-out consumer
// whose process stopped pulling.
const fanoutInactiveThreshold = time.Minute

// attendanceFanoutConfig describes a per-process consumer: no durable name,
// so the server removes it once the process is gone, and no acks, since a
// missed WebSocket push is not redelivered.
func attendanceFanoutConfig() jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		AckPolicy:         jetstream.AckNonePolicy,
		FilterSubject:     AttendanceSubjectBase + ".>",
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		InactiveThreshold: fanoutInactiveThreshold,
	}
}

// ConsumeAttendance delivers new attendance events, for the API to fan out
// over WebSocket.
func (c *Consumer) ConsumeAttendance(ctx context.Context, handler AttendanceHandler) error {
	stream, err := c.js.Stream(ctx, AttendanceStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", AttendanceStreamName, err)
	}

	cons, err := stream.CreateConsumer(ctx, attendanceFanoutConfig())
	if err != nil {
		return fmt.Errorf("create attendance consumer: %w", err)
	}

	go func() {
		for {
			if ctx.Err() != nil {
				return
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				var ev models.AttendanceEvent
				if err := json.Unmarshal(msg.Data(), &ev); err != nil {
					slog.Error("unmarshal attendance event", "error", err)
					continue
				}
				if err := handler(ctx, ev); err != nil {
					slog.Error("process attendance event", "error", err)
				}
			}
		}
	}()

	slog.Info("attendance consumer started", "consumer", cons.CachedInfo().Name)
	return nil
}

// SubscribeGalleryChanges applies gallery changes published by other
// replicas. Messages carrying origin are skipped.
func (c *Consumer) SubscribeGalleryChanges(origin string, apply func(models.GalleryChange)) (*nats.Subscription, error) {
	sub, err := c.nc.Subscribe(GalleryControlSubject, func(m *nats.Msg) {
		var change models.GalleryChange
		if err := json.Unmarshal(m.Data, &change); err != nil {
			slog.Warn("invalid gallery change", "error", err)
			return
		}
		if change.Origin == origin {
			return
		}
		apply(change)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", GalleryControlSubject, err)
	}
	return sub, nil
}

func (c *Consumer) Close() {
	c.nc.Close()
}
