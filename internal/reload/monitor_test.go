package reload

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/your-org/facecheck/internal/models"
)

type fakeSource struct {
	mu    sync.Mutex
	n     int
	err   error
	block bool
	calls int
}

func (s *fakeSource) set(n int, err error) {
	s.mu.Lock()
	s.n, s.err = n, err
	s.mu.Unlock()
}

func (s *fakeSource) ListEnrollments(ctx context.Context) ([]models.Enrollment, error) {
	s.mu.Lock()
	s.calls++
	n, err, block := s.n, s.err, s.block
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	out := make([]models.Enrollment, n)
	for i := range out {
		out[i].Profile.IdentityID = string(rune('a' + i))
	}
	return out, nil
}

type fakeRebuilder struct {
	mu    sync.Mutex
	calls []int
	err   error
}

func (r *fakeRebuilder) Rebuild(_ context.Context, e []models.Enrollment) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	r.calls = append(r.calls, len(e))
	return len(e), nil
}

func (r *fakeRebuilder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestCheckNow_OnlyGrowthTriggersRebuild(t *testing.T) {
	src := &fakeSource{n: 3}
	rb := &fakeRebuilder{}
	m := NewMonitor(src, rb, time.Hour, time.Second)
	m.SetKnownCount(3)
	ctx := context.Background()

	steps := []struct {
		name        string
		count       int
		wantRebuild bool
		wantKnown   int
	}{
		{"unchanged", 3, false, 3},
		{"shrunk", 2, false, 3},
		{"grew", 5, true, 5},
		{"same again", 5, false, 5},
	}
	for _, s := range steps {
		src.set(s.count, nil)
		rebuilt, err := m.CheckNow(ctx)
		if err != nil {
			t.Fatalf("%s: CheckNow: %v", s.name, err)
		}
		if rebuilt != s.wantRebuild {
			t.Errorf("%s: rebuilt = %v, want %v", s.name, rebuilt, s.wantRebuild)
		}
		if k := m.Status().KnownCount; k != s.wantKnown {
			t.Errorf("%s: known = %d, want %d", s.name, k, s.wantKnown)
		}
	}
	if rb.count() != 1 || rb.calls[0] != 5 {
		t.Errorf("rebuild calls = %v, want [5]", rb.calls)
	}
}

func TestCheckNow_EmptyKnownPopulates(t *testing.T) {
	src := &fakeSource{n: 2}
	rb := &fakeRebuilder{}
	m := NewMonitor(src, rb, time.Hour, time.Second)

	rebuilt, err := m.CheckNow(context.Background())
	if err != nil || !rebuilt {
		t.Fatalf("CheckNow = %v, %v; want rebuild", rebuilt, err)
	}
}

func TestCheckNow_SourceErrorKeepsState(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	rb := &fakeRebuilder{}
	m := NewMonitor(src, rb, time.Hour, time.Second)
	m.SetKnownCount(4)

	_, err := m.CheckNow(context.Background())
	if !errors.Is(err, models.ErrIdentitySourceUnavailable) {
		t.Fatalf("err = %v, want ErrIdentitySourceUnavailable", err)
	}
	st := m.Status()
	if st.KnownCount != 4 || st.FailedChecks != 1 || st.LastError == "" {
		t.Errorf("status = %+v", st)
	}
	if rb.count() != 0 {
		t.Error("rebuild ran after source error")
	}
}

func TestCheckNow_RebuildErrorKeepsKnownCount(t *testing.T) {
	src := &fakeSource{n: 9}
	rb := &fakeRebuilder{err: errors.New("extractor down")}
	m := NewMonitor(src, rb, time.Hour, time.Second)
	m.SetKnownCount(4)

	if _, err := m.CheckNow(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if k := m.Status().KnownCount; k != 4 {
		t.Errorf("known = %d, want 4", k)
	}

	// The next successful tick still sees growth.
	rb.mu.Lock()
	rb.err = nil
	rb.mu.Unlock()
	rebuilt, err := m.CheckNow(context.Background())
	if err != nil || !rebuilt {
		t.Errorf("retry CheckNow = %v, %v", rebuilt, err)
	}
}

func TestStartStop(t *testing.T) {
	src := &fakeSource{n: 1}
	rb := &fakeRebuilder{}
	m := NewMonitor(src, rb, 5*time.Millisecond, time.Second)

	if !m.Start(context.Background()) {
		t.Fatal("Start returned false")
	}
	if m.Start(context.Background()) {
		t.Error("second Start returned true")
	}
	if !m.Status().Running {
		t.Error("status not running")
	}

	deadline := time.Now().Add(2 * time.Second)
	for rb.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if rb.count() == 0 {
		t.Fatal("loop never rebuilt")
	}

	if !m.Stop() {
		t.Fatal("Stop returned false")
	}
	if m.Stop() {
		t.Error("second Stop returned true")
	}
	if m.Status().Running {
		t.Error("status still running")
	}

	// Restart after stop is allowed.
	if !m.Start(context.Background()) {
		t.Error("restart failed")
	}
	m.Stop()
}

func TestStop_CancelsFetchInFlight(t *testing.T) {
	src := &fakeSource{block: true}
	m := NewMonitor(src, &fakeRebuilder{}, time.Millisecond, time.Hour)
	m.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for {
		src.mu.Lock()
		calls := src.calls
		src.mu.Unlock()
		if calls > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	stopped := make(chan struct{})
	go func() {
		m.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not interrupt a blocked fetch")
	}
}
