package recognition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/your-org/facecheck/internal/attendance"
	"github.com/your-org/facecheck/internal/cooldown"
	"github.com/your-org/facecheck/internal/models"
	"github.com/your-org/facecheck/internal/observability"
)

type Matcher interface {
	Match(query []float32) (models.MatchResult, error)
}

type Ledger interface {
	Record(ctx context.Context, identityID string, profile models.Profile) (*attendance.Outcome, error)
}

type Extractor interface {
	Extract(ctx context.Context, image []byte) (models.Extraction, error)
}

// Publisher receives an event for every recognition that reached the ledger.
type Publisher interface {
	PublishAttendance(ctx context.Context, ev models.AttendanceEvent) error
}

// ErrNoExtractor is returned by RecognizeImage when no face model is loaded.
var ErrNoExtractor = errors.New("face extractor not configured")

// Result is the outcome of one recognition. When Match is not matched the
// other fields are zero. Suppressed results carry the time left in the
// cooldown window instead of an attendance outcome.
type Result struct {
	Match      models.MatchResult
	Suppressed bool
	Remaining  time.Duration
	Attendance *attendance.Outcome
}

// Service runs the recognition flow: match, cooldown gate, ledger write
// and event publication.
type Service struct {
	matcher   Matcher
	cooldown  *cooldown.Tracker
	ledger    Ledger
	extractor Extractor
	publisher Publisher
	now       func() time.Time
}

// NewService builds the flow. extractor and publisher may be nil.
func NewService(m Matcher, cd *cooldown.Tracker, ledger Ledger, extractor Extractor, publisher Publisher) *Service {
	return &Service{
		matcher:   m,
		cooldown:  cd,
		ledger:    ledger,
		extractor: extractor,
		publisher: publisher,
		now:       time.Now,
	}
}

// RecognizeImage extracts the most confident face and recognizes it.
func (s *Service) RecognizeImage(ctx context.Context, kioskID string, image []byte) (Result, error) {
	if s.extractor == nil {
		return Result{}, ErrNoExtractor
	}
	ext, err := s.extractor.Extract(ctx, image)
	if err != nil {
		if errors.Is(err, models.ErrNoFaceDetected) {
			observability.Recognitions.WithLabelValues("no_face").Inc()
		} else {
			observability.Recognitions.WithLabelValues("error").Inc()
		}
		return Result{}, err
	}
	return s.Recognize(ctx, kioskID, ext.Embedding)
}

// Recognize identifies embedding. kioskID is carried on the published
// event and may be empty. A failed ledger write after a match returns the
// match together with an error wrapping models.ErrNotRecorded.
func (s *Service) Recognize(ctx context.Context, kioskID string, embedding []float32) (Result, error) {
	match, err := s.matcher.Match(embedding)
	if err != nil {
		observability.Recognitions.WithLabelValues("error").Inc()
		return Result{}, err
	}
	res := Result{Match: match}
	if !match.Matched() {
		observability.Recognitions.WithLabelValues("no_match").Inc()
		return res, nil
	}

	id := match.IdentityID
	if suppressed, remaining := s.cooldown.ShouldSuppress(id, s.now()); suppressed {
		observability.Recognitions.WithLabelValues("suppressed").Inc()
		res.Suppressed = true
		res.Remaining = remaining
		return res, nil
	}

	outcome, err := s.ledger.Record(ctx, id, match.Metadata.Profile)
	if err != nil {
		// Let the next scan retry the write instead of being throttled.
		s.cooldown.Forget(id)
		observability.Recognitions.WithLabelValues("not_recorded").Inc()
		slog.Error("attendance not recorded", "identity_id", id, "similarity", match.Similarity,
			"hint", models.Hint(err), "error", err)
		return res, fmt.Errorf("%w: %w", models.ErrNotRecorded, err)
	}
	res.Attendance = outcome

	ev := models.AttendanceEvent{
		Type:       models.EventCheckedIn,
		IdentityID: id,
		Name:       match.Metadata.Profile.DisplayName(),
		Similarity: match.Similarity,
		Day:        outcome.Record.Day,
		ScannedAt:  outcome.Record.ScannedAt,
		KioskID:    kioskID,
	}
	if outcome.Existing {
		ev.Type = models.EventAlreadyCheckedIn
		observability.Recognitions.WithLabelValues("duplicate").Inc()
	} else {
		observability.Recognitions.WithLabelValues("checked_in").Inc()
	}
	slog.Info("recognized", "identity_id", id, "similarity", match.Similarity,
		"existing", outcome.Existing, "kiosk_id", kioskID)

	if s.publisher != nil {
		if err := s.publisher.PublishAttendance(ctx, ev); err != nil {
			slog.Warn("publish attendance event", "identity_id", id, "error", err)
		}
	}
	return res, nil
}
