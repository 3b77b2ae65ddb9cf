package ws

import (
	"context"
	"time"

	"github.com/your-org/facecheck/internal/models"
	"github.com/your-org/facecheck/internal/queue"
	"github.com/your-org/facecheck/pkg/dto"
)

// Event converts a bus event for clients, with the time rendered in loc.
func Event(ev models.AttendanceEvent, loc *time.Location) *dto.WSEvent {
	return &dto.WSEvent{
		Type:       ev.Type,
		IdentityID: ev.IdentityID,
		Name:       ev.Name,
		Similarity: ev.Similarity,
		Date:       ev.Day,
		Timestamp:  ev.ScannedAt.In(loc).Format(time.RFC3339),
		KioskID:    ev.KioskID,
	}
}

// Forward returns a consumer handler that broadcasts every attendance
// event it receives.
func (h *Hub) Forward(loc *time.Location) queue.AttendanceHandler {
	return func(_ context.Context, ev models.AttendanceEvent) error {
		h.BroadcastEvent(Event(ev, loc))
		return nil
	}
}
