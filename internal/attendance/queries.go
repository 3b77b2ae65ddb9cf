package attendance

import (
	"context"
	"fmt"
	"math"

	"github.com/your-org/facecheck/internal/models"
)

// Today returns today's records, newest first.
func (l *Ledger) Today(ctx context.Context) ([]models.AttendanceRecord, error) {
	return l.List(ctx, models.AttendanceFilter{Day: l.CurrentDay()})
}

// HasAttended reports whether identityID already has a record today.
func (l *Ledger) HasAttended(ctx context.Context, identityID string) (bool, error) {
	rec, err := l.find(ctx, identityID, l.CurrentDay())
	if err != nil {
		return false, fmt.Errorf("check attendance: %w", err)
	}
	return rec != nil, nil
}

// List returns records matching filter, newest first. An empty Day means
// any day.
func (l *Ledger) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, error) {
	var out []models.AttendanceRecord
	err := l.retry(ctx, "list_attendance", func(ctx context.Context) error {
		recs, err := l.store.ListAttendance(ctx, filter)
		if err != nil {
			return err
		}
		out = recs
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return out, nil
}

// Stats summarises today against the number of enrolled identities.
func (l *Ledger) Stats(ctx context.Context) (models.AttendanceStats, error) {
	day := l.CurrentDay()
	recs, err := l.List(ctx, models.AttendanceFilter{Day: day})
	if err != nil {
		return models.AttendanceStats{}, err
	}

	var total int
	err = l.retry(ctx, "count_identities", func(ctx context.Context) error {
		n, err := l.store.CountIdentities(ctx)
		if err != nil {
			return err
		}
		total = n
		return nil
	})
	if err != nil {
		return models.AttendanceStats{}, fmt.Errorf("count identities: %w", err)
	}

	stats := models.AttendanceStats{Day: day, TodayAttendance: len(recs), TotalUsers: total}
	if total > 0 {
		stats.Percentage = math.Round(float64(len(recs))/float64(total)*10000) / 100
	}
	return stats, nil
}
