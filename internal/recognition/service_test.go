package recognition

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facecheck/internal/attendance"
	"github.com/your-org/facecheck/internal/cooldown"
	"github.com/your-org/facecheck/internal/gallery"
	"github.com/your-org/facecheck/internal/matcher"
	"github.com/your-org/facecheck/internal/models"
	"github.com/your-org/facecheck/internal/queue"
)

type fakeLedger struct {
	mu    sync.Mutex
	seen  map[string]bool
	err   error
	calls int
}

func (l *fakeLedger) Record(_ context.Context, id string, p models.Profile) (*attendance.Outcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	rec := &models.AttendanceRecord{IdentityID: id, Day: "2025-08-27", FirstName: p.FirstName}
	if l.seen[id] {
		return &attendance.Outcome{Record: rec, Existing: true, Message: "again"}, nil
	}
	l.seen[id] = true
	return &attendance.Outcome{Record: rec, Message: attendance.MessageCheckedIn}, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.AttendanceEvent
}

func (p *fakePublisher) PublishAttendance(_ context.Context, ev models.AttendanceEvent) error {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

type fakeExtractor struct {
	emb []float32
	err error
}

func (x fakeExtractor) Extract(context.Context, []byte) (models.Extraction, error) {
	return models.Extraction{Embedding: x.emb}, x.err
}

type fakeObjects map[string][]byte

func (o fakeObjects) GetObject(_ context.Context, key string) ([]byte, error) {
	data, ok := o[key]
	if !ok {
		return nil, models.ErrNotFound
	}
	return data, nil
}

type fixture struct {
	svc    *Service
	ledger *fakeLedger
	pub    *fakePublisher
	now    time.Time
}

func newFixture(t *testing.T, x Extractor) *fixture {
	t.Helper()
	g := gallery.New(3, nil)
	ctx := context.Background()
	alice := models.Metadata{Profile: models.Profile{IdentityID: "alice", FirstName: "Alice", LastName: "Ng"}}
	if err := g.Upsert(ctx, "alice", []float32{1, 0, 0}, alice); err != nil {
		t.Fatal(err)
	}
	if err := g.Upsert(ctx, "bob", []float32{0, 1, 0}, models.Metadata{}); err != nil {
		t.Fatal(err)
	}
	m, err := matcher.New(g, matcher.DefaultThreshold)
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		ledger: &fakeLedger{seen: make(map[string]bool)},
		pub:    &fakePublisher{},
		now:    time.Date(2025, 8, 27, 1, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(m, cooldown.New(3*time.Second), f.ledger, x, f.pub)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func TestRecognize_CheckInThenDuplicate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Recognize(ctx, "", []float32{1, 0, 0})
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if !res.Match.Matched() || res.Match.IdentityID != "alice" || res.Attendance == nil || res.Attendance.Existing {
		t.Fatalf("first result = %+v", res)
	}

	f.now = f.now.Add(5 * time.Second)
	res, err = f.svc.Recognize(ctx, "", []float32{1, 0, 0})
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if res.Attendance == nil || !res.Attendance.Existing {
		t.Fatalf("second result = %+v, want existing", res)
	}

	if len(f.pub.events) != 2 {
		t.Fatalf("published %d events", len(f.pub.events))
	}
	if f.pub.events[0].Type != models.EventCheckedIn || f.pub.events[1].Type != models.EventAlreadyCheckedIn {
		t.Errorf("event types = %s, %s", f.pub.events[0].Type, f.pub.events[1].Type)
	}
	if f.pub.events[0].Name != "Alice Ng" {
		t.Errorf("event name = %q", f.pub.events[0].Name)
	}
}

func TestRecognize_KioskIDOnEvent(t *testing.T) {
	f := newFixture(t, &fakeExtractor{emb: []float32{0, 1, 0}})
	ctx := context.Background()

	if _, err := f.svc.Recognize(ctx, "gate-a", []float32{1, 0, 0}); err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if _, err := f.svc.RecognizeImage(ctx, "gate-b", []byte("jpeg")); err != nil {
		t.Fatalf("RecognizeImage: %v", err)
	}
	if len(f.pub.events) != 2 {
		t.Fatalf("published %d events", len(f.pub.events))
	}
	if f.pub.events[0].KioskID != "gate-a" || f.pub.events[1].KioskID != "gate-b" {
		t.Errorf("kiosk ids = %q, %q", f.pub.events[0].KioskID, f.pub.events[1].KioskID)
	}
}

func TestRecognize_NoMatch(t *testing.T) {
	f := newFixture(t, nil)
	res, err := f.svc.Recognize(context.Background(), "", []float32{0, 0, 1})
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if res.Match.Matched() || res.Attendance != nil {
		t.Errorf("result = %+v, want no match", res)
	}
	if f.ledger.calls != 0 || len(f.pub.events) != 0 {
		t.Error("unmatched query reached the ledger")
	}
}

func TestRecognize_Suppressed(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.svc.Recognize(ctx, "", []float32{1, 0, 0}); err != nil {
		t.Fatal(err)
	}

	f.now = f.now.Add(time.Second)
	res, err := f.svc.Recognize(ctx, "", []float32{1, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Suppressed || res.Remaining != 2*time.Second {
		t.Errorf("result = %+v, want suppressed with 2s left", res)
	}
	if f.ledger.calls != 1 {
		t.Errorf("ledger calls = %d, want 1", f.ledger.calls)
	}
}

func TestRecognize_NotRecorded(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.ledger.err = &models.StorageError{Op: "insert attendance", Kind: models.StorageTransient, Err: errors.New("timeout")}

	res, err := f.svc.Recognize(ctx, "", []float32{1, 0, 0})
	if !errors.Is(err, models.ErrNotRecorded) || !errors.Is(err, models.ErrTransientStorage) {
		t.Fatalf("err = %v", err)
	}
	if !res.Match.Matched() || res.Match.IdentityID != "alice" {
		t.Errorf("identification lost: %+v", res)
	}

	// The failed write must not throttle an immediate retry.
	f.ledger.err = nil
	res, err = f.svc.Recognize(ctx, "", []float32{1, 0, 0})
	if err != nil || res.Suppressed || res.Attendance == nil {
		t.Fatalf("retry = %+v, %v", res, err)
	}
}

func TestRecognize_InvalidQuery(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.svc.Recognize(context.Background(), "", []float32{1, 0}); !errors.Is(err, models.ErrDimensionMismatch) {
		t.Errorf("err = %v", err)
	}
	if _, err := f.svc.Recognize(context.Background(), "", []float32{0, 0, 0}); !errors.Is(err, models.ErrDegenerateEmbedding) {
		t.Errorf("err = %v", err)
	}
}

func TestRecognizeImage(t *testing.T) {
	f := newFixture(t, fakeExtractor{emb: []float32{0.1, 1, 0}})
	res, err := f.svc.RecognizeImage(context.Background(), "", []byte("jpeg"))
	if err != nil {
		t.Fatalf("RecognizeImage: %v", err)
	}
	if res.Match.IdentityID != "bob" {
		t.Errorf("matched %q, want bob", res.Match.IdentityID)
	}

	f = newFixture(t, fakeExtractor{err: models.ErrNoFaceDetected})
	if _, err := f.svc.RecognizeImage(context.Background(), "", []byte("jpeg")); !errors.Is(err, models.ErrNoFaceDetected) {
		t.Errorf("err = %v", err)
	}

	f = newFixture(t, nil)
	if _, err := f.svc.RecognizeImage(context.Background(), "", []byte("jpeg")); !errors.Is(err, ErrNoExtractor) {
		t.Errorf("err = %v", err)
	}
}

func TestTaskHandler(t *testing.T) {
	objects := fakeObjects{"kiosk/1.jpg": []byte("jpeg")}

	tests := []struct {
		name         string
		task         models.RecognitionTask
		ledgerErr    error
		wantErr      bool
		wantTerminal bool
	}{
		{name: "embedding", task: models.RecognitionTask{Embedding: []float32{1, 0, 0}}},
		{name: "image", task: models.RecognitionTask{ImageKey: "kiosk/1.jpg"}},
		{name: "missing image", task: models.RecognitionTask{ImageKey: "kiosk/2.jpg"}, wantErr: true, wantTerminal: true},
		{name: "empty task", task: models.RecognitionTask{}, wantErr: true, wantTerminal: true},
		{name: "bad dimension", task: models.RecognitionTask{Embedding: []float32{1}}, wantErr: true, wantTerminal: true},
		{
			name:      "transient ledger failure",
			task:      models.RecognitionTask{Embedding: []float32{1, 0, 0}},
			ledgerErr: &models.StorageError{Kind: models.StorageTransient, Err: errors.New("reset")},
			wantErr:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, fakeExtractor{emb: []float32{1, 0, 0}})
			f.ledger.err = tt.ledgerErr
			tt.task.TaskID = uuid.New()
			tt.task.KioskID = "lobby"

			err := f.svc.TaskHandler(objects)(context.Background(), tt.task)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if queue.IsTerminal(err) != tt.wantTerminal {
				t.Errorf("terminal = %v, want %v (%v)", queue.IsTerminal(err), tt.wantTerminal, err)
			}
			if !tt.wantErr && (len(f.pub.events) != 1 || f.pub.events[0].KioskID != "lobby") {
				t.Errorf("events = %+v", f.pub.events)
			}
		})
	}
}
