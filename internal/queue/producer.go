package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facecheck/internal/models"
)

const (
	TasksStreamName       = "RECOGNITIONS"
	TasksSubjectBase      = "recognitions"
	AttendanceStreamName  = "ATTENDANCE"
	AttendanceSubjectBase = "attendance"

	// GalleryControlSubject carries gallery changes between replicas over
	// core NATS; a replica that misses one catches up on the next reload.
	GalleryControlSubject = "gallery.control"
)

func connect(natsURL, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return nc, nil
}

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, err := connect(natsURL, "facecheck-producer")
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Producer{nc: nc, js: js}, nil
}

func streamConfigs() []jetstream.StreamConfig {
	return []jetstream.StreamConfig{
		{
			Name:        TasksStreamName,
			Subjects:    []string{TasksSubjectBase + ".>"},
			Retention:   jetstream.WorkQueuePolicy,
			MaxAge:      2 * time.Minute,
			MaxMsgs:     100000,
			MaxBytes:    256 * 1024 * 1024,
			Storage:     jetstream.FileStorage,
			Discard:     jetstream.DiscardOld,
			Duplicates:  30 * time.Second,
			Description: "Kiosk recognition tasks for workers",
		},
		{
			Name:        AttendanceStreamName,
			Subjects:    []string{AttendanceSubjectBase + ".>"},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      48 * time.Hour,
			MaxMsgs:     1000000,
			Storage:     jetstream.FileStorage,
			Description: "Attendance check-in events",
		},
	}
}

// EnsureStreams creates the JetStream streams if they don't exist.
// Retries up to 30 times (1s apart) to ride out NATS startup.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var failed error
		for _, cfg := range streamConfigs() {
			opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
			cancel()
			if err != nil {
				failed = fmt.Errorf("create stream %s: %w", cfg.Name, err)
				break
			}
		}
		if failed == nil {
			slog.Info("ensured NATS streams")
			return nil
		}
		if attempt == maxAttempts {
			return fmt.Errorf("%w (after %d attempts)", failed, maxAttempts)
		}
		slog.Warn("ensure NATS streams (retrying...)", "attempt", attempt, "error", failed)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil
}

// PublishTask queues a recognition task. The task id doubles as the
// JetStream dedup id so kiosk retries are absorbed.
func (p *Producer) PublishTask(ctx context.Context, task models.RecognitionTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal recognition task: %w", err)
	}
	_, err = p.js.Publish(ctx, taskSubject(task.KioskID), payload, jetstream.WithMsgID(task.TaskID.String()))
	if err != nil {
		return fmt.Errorf("publish recognition task: %w", err)
	}
	return nil
}

// PublishAttendance records a check-in event on the ATTENDANCE stream.
func (p *Producer) PublishAttendance(ctx context.Context, ev models.AttendanceEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal attendance event: %w", err)
	}
	if _, err := p.js.Publish(ctx, AttendanceSubjectBase+"."+ev.Type, payload); err != nil {
		return fmt.Errorf("publish attendance event: %w", err)
	}
	return nil
}

// PublishGalleryChange broadcasts a gallery mutation via core NATS.
func (p *Producer) PublishGalleryChange(change models.GalleryChange) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal gallery change: %w", err)
	}
	return p.nc.Publish(GalleryControlSubject, payload)
}

// QueueDepth returns the number of pending messages in the tasks stream.
func (p *Producer) QueueDepth(ctx context.Context) (uint64, error) {
	stream, err := p.js.Stream(ctx, TasksStreamName)
	if err != nil {
		return 0, err
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.State.Msgs, nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}

// taskSubject keeps kiosk ids usable as a single subject token.
func taskSubject(kioskID string) string {
	if kioskID == "" {
		kioskID = "default"
	}
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, kioskID)
	return TasksSubjectBase + "." + token
}
