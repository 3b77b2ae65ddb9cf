package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/your-org/facecheck/internal/models"
	"github.com/your-org/facecheck/internal/observability"
)

const (
	MessageCheckedIn        = "Welcome! Attendance marked successfully"
	messageAlreadyCheckedIn = "Welcome back! You already checked in today at %s"

	displayLayout = "2006-01-02 15:04:05"

	// DefaultDeadline bounds a whole Record call, retries included.
	DefaultDeadline = 20 * time.Second
)

// Store is the durable side of the ledger. FindAttendance returns nil, nil
// when no record exists. InsertAttendance returns an error matching
// models.ErrDuplicateAttendance when (identity, day) is already taken.
// Errors are expected to be classified as transient or permanent.
type Store interface {
	FindAttendance(ctx context.Context, identityID, day string) (*models.AttendanceRecord, error)
	InsertAttendance(ctx context.Context, rec *models.AttendanceRecord) error
	ListAttendance(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, error)
	CountIdentities(ctx context.Context) (int, error)
}

// Options tunes the ledger. Zero values take the defaults.
type Options struct {
	Location *time.Location
	Attempts int
	Backoff  time.Duration
	Timeout  time.Duration
	// Deadline caps Record end to end, so callers with their own write
	// deadline can still answer.
	Deadline time.Duration
	Now      func() time.Time
}

// Outcome of a Record call. Existing is set when the identity had already
// been credited for the day, either found up front or after losing an
// insert race.
type Outcome struct {
	Record   *models.AttendanceRecord
	Existing bool
	Message  string
}

// Ledger grants at most one attendance record per identity per calendar
// day in a fixed zone.
type Ledger struct {
	store    Store
	loc      *time.Location
	attempts int
	backoff  time.Duration
	timeout  time.Duration
	deadline time.Duration
	now      func() time.Time
}

func NewLedger(store Store, opts Options) *Ledger {
	l := &Ledger{
		store:    store,
		loc:      opts.Location,
		attempts: opts.Attempts,
		backoff:  opts.Backoff,
		timeout:  opts.Timeout,
		deadline: opts.Deadline,
		now:      opts.Now,
	}
	if l.loc == nil {
		l.loc = time.FixedZone("UTC+08:00", 8*3600)
	}
	if l.attempts <= 0 {
		l.attempts = 3
	}
	if l.backoff <= 0 {
		l.backoff = 2 * time.Second
	}
	if l.timeout <= 0 {
		l.timeout = 10 * time.Second
	}
	if l.deadline <= 0 {
		l.deadline = DefaultDeadline
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

func (l *Ledger) Location() *time.Location { return l.loc }

// Day returns the calendar day of t in the ledger's zone.
func (l *Ledger) Day(t time.Time) string {
	return t.In(l.loc).Format(models.DayLayout)
}

// CurrentDay is today's calendar day in the ledger's zone.
func (l *Ledger) CurrentDay() string { return l.Day(l.now()) }

// Local renders a stored instant in the ledger's zone.
func (l *Ledger) Local(t time.Time) time.Time { return t.In(l.loc) }

// Record credits identityID for today. Transient store failures are retried
// with a constant backoff; permanent ones are returned at once. The whole
// call, retries included, ends within the ledger deadline.
func (l *Ledger) Record(ctx context.Context, identityID string, profile models.Profile) (*Outcome, error) {
	if identityID == "" {
		return nil, fmt.Errorf("record attendance: empty identity id")
	}
	ctx, cancel := context.WithTimeout(ctx, l.deadline)
	defer cancel()
	now := l.now().UTC()
	day := l.Day(now)

	existing, err := l.find(ctx, identityID, day)
	if err != nil {
		observability.AttendanceWrites.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("check attendance: %w", err)
	}
	if existing != nil {
		observability.AttendanceWrites.WithLabelValues("existing").Inc()
		return l.existing(existing), nil
	}

	profile = profile.WithDefaults()
	rec := &models.AttendanceRecord{
		ID:         uuid.New(),
		IdentityID: identityID,
		Day:        day,
		ScannedAt:  now,
		FirstName:  profile.FirstName,
		LastName:   profile.LastName,
		Email:      profile.Email,
		UserType:   profile.UserType,
		Company:    profile.Company,
		JobTitle:   profile.JobTitle,
		Status:     models.AttendanceStatusPresent,
	}

	err = l.retry(ctx, "insert_attendance", func(ctx context.Context) error {
		return l.store.InsertAttendance(ctx, rec)
	})
	switch {
	case err == nil:
		observability.AttendanceWrites.WithLabelValues("created").Inc()
		slog.Info("attendance marked", "identity_id", identityID, "day", day)
		return &Outcome{Record: rec, Message: MessageCheckedIn}, nil

	case errors.Is(err, models.ErrDuplicateAttendance):
		// Another writer won the race; its record is the day's record.
		winner, ferr := l.find(ctx, identityID, day)
		if ferr != nil {
			observability.AttendanceWrites.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("read attendance after conflict: %w", ferr)
		}
		if winner == nil {
			observability.AttendanceWrites.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("attendance conflict for %s on %s but no record found: %w",
				identityID, day, models.ErrPermanentStorage)
		}
		observability.AttendanceWrites.WithLabelValues("conflict").Inc()
		return l.existing(winner), nil

	default:
		observability.AttendanceWrites.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("insert attendance: %w", err)
	}
}

func (l *Ledger) existing(rec *models.AttendanceRecord) *Outcome {
	return &Outcome{
		Record:   rec,
		Existing: true,
		Message:  fmt.Sprintf(messageAlreadyCheckedIn, l.Local(rec.ScannedAt).Format(displayLayout)),
	}
}

func (l *Ledger) find(ctx context.Context, identityID, day string) (*models.AttendanceRecord, error) {
	var rec *models.AttendanceRecord
	err := l.retry(ctx, "find_attendance", func(ctx context.Context) error {
		r, err := l.store.FindAttendance(ctx, identityID, day)
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	return rec, err
}

// retry runs op up to l.attempts times, each under its own timeout. Only
// errors matching models.ErrTransientStorage are retried.
func (l *Ledger) retry(ctx context.Context, name string, op func(context.Context) error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(l.backoff), uint64(l.attempts-1)),
		ctx,
	)

	return backoff.RetryNotify(func() error {
		callCtx, cancel := context.WithTimeout(ctx, l.timeout)
		defer cancel()

		err := op(callCtx)
		if err == nil {
			return nil
		}
		if errors.Is(err, models.ErrTransientStorage) {
			return err
		}
		return backoff.Permanent(err)
	}, policy, func(err error, wait time.Duration) {
		observability.StorageRetries.WithLabelValues(name).Inc()
		slog.Warn("transient storage error, retrying", "op", name, "wait", wait, "error", err)
	})
}
