package recognition

import (
	"context"
	"errors"
	"fmt"

	"github.com/your-org/facecheck/internal/models"
	"github.com/your-org/facecheck/internal/queue"
)

type ObjectGetter interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// TaskHandler processes kiosk tasks from the queue. Problems with the task
// itself are terminal; a failed ledger write is redelivered.
func (s *Service) TaskHandler(objects ObjectGetter) queue.TaskHandler {
	return func(ctx context.Context, task models.RecognitionTask) error {
		var err error
		switch {
		case len(task.Embedding) > 0:
			_, err = s.Recognize(ctx, task.KioskID, task.Embedding)
		case task.ImageKey != "":
			if objects == nil {
				return queue.Terminal(fmt.Errorf("task %s: image tasks need an object store", task.TaskID))
			}
			var image []byte
			image, err = objects.GetObject(ctx, task.ImageKey)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					return queue.Terminal(fmt.Errorf("task %s: %w", task.TaskID, err))
				}
				return fmt.Errorf("task %s: %w", task.TaskID, err)
			}
			_, err = s.RecognizeImage(ctx, task.KioskID, image)
		default:
			return queue.Terminal(fmt.Errorf("task %s: no embedding or image", task.TaskID))
		}

		if err == nil {
			return nil
		}
		err = fmt.Errorf("task %s: %w", task.TaskID, err)
		if terminal(err) {
			return queue.Terminal(err)
		}
		return err
	}
}

func terminal(err error) bool {
	return errors.Is(err, models.ErrNoFaceDetected) ||
		errors.Is(err, models.ErrDegenerateEmbedding) ||
		errors.Is(err, models.ErrDimensionMismatch) ||
		errors.Is(err, ErrNoExtractor) ||
		errors.Is(err, models.ErrPermanentStorage)
}
