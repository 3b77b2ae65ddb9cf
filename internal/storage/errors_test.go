package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/minio/minio-go/v7"

	"github.com/your-org/facecheck/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantTransient bool
		wantDuplicate bool
		wantHint      string
	}{
		{
			name:          "attendance unique violation",
			err:           &pgconn.PgError{Code: "23505", ConstraintName: attendanceUniqueConstraint},
			wantDuplicate: true,
		},
		{
			name: "other unique violation",
			err:  &pgconn.PgError{Code: "23505", ConstraintName: "identities_pkey"},
		},
		{
			name:     "insufficient privilege",
			err:      &pgconn.PgError{Code: "42501", Message: "permission denied for table attendance"},
			wantHint: HintCredentialTier,
		},
		{
			name:     "bad password",
			err:      &pgconn.PgError{Code: "28P01"},
			wantHint: HintEndpoint,
		},
		{
			name:     "unknown database",
			err:      &pgconn.PgError{Code: "3D000"},
			wantHint: HintEndpoint,
		},
		{
			name:     "missing table",
			err:      &pgconn.PgError{Code: "42P01"},
			wantHint: HintSchema,
		},
		{
			name:          "serialization failure",
			err:           &pgconn.PgError{Code: "40001"},
			wantTransient: true,
		},
		{
			name:          "connection failure class",
			err:           &pgconn.PgError{Code: "08006"},
			wantTransient: true,
		},
		{
			name:          "deadline exceeded",
			err:           fmt.Errorf("query: %w", context.DeadlineExceeded),
			wantTransient: true,
		},
		{
			name:          "connection reset",
			err:           &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET},
			wantTransient: true,
		},
		{
			name:     "unknown host",
			err:      &net.DNSError{Err: "no such host", Name: "db.invalid", IsNotFound: true},
			wantHint: HintEndpoint,
		},
		{
			name: "cancelled",
			err:  context.Canceled,
		},
		{
			name: "syntax error",
			err:  &pgconn.PgError{Code: "42601"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("op", tt.err)
			if tt.wantDuplicate {
				if !errors.Is(got, models.ErrDuplicateAttendance) {
					t.Fatalf("Classify = %v, want ErrDuplicateAttendance", got)
				}
				return
			}
			if errors.Is(got, models.ErrTransientStorage) != tt.wantTransient {
				t.Errorf("transient = %v, want %v (%v)", !tt.wantTransient, tt.wantTransient, got)
			}
			if !tt.wantTransient && !errors.Is(got, models.ErrPermanentStorage) {
				t.Errorf("expected permanent, got %v", got)
			}
			if h := models.Hint(got); h != tt.wantHint {
				t.Errorf("hint = %q, want %q", h, tt.wantHint)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("original error not wrapped: %v", got)
			}
		})
	}
}

func TestClassify_NilAndIdempotent(t *testing.T) {
	if Classify("op", nil) != nil {
		t.Error("Classify(nil) != nil")
	}
	first := Classify("op", &pgconn.PgError{Code: "40001"})
	if again := Classify("outer", first); again != first {
		t.Errorf("reclassified error changed: %v", again)
	}
}

func TestClassifyObject(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantNotFound  bool
		wantTransient bool
		wantHint      string
	}{
		{"missing key", minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}, true, false, ""},
		{"access denied", minio.ErrorResponse{Code: "AccessDenied", StatusCode: 403}, false, false, HintEndpoint},
		{"server error", minio.ErrorResponse{Code: "InternalError", StatusCode: 500}, false, true, ""},
		{"slow down", minio.ErrorResponse{Code: "SlowDown", StatusCode: 503}, false, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyObject("get", tt.err)
			if errors.Is(got, models.ErrNotFound) != tt.wantNotFound {
				t.Errorf("not found = %v, want %v", !tt.wantNotFound, tt.wantNotFound)
			}
			if errors.Is(got, models.ErrTransientStorage) != tt.wantTransient {
				t.Errorf("transient = %v, want %v", !tt.wantTransient, tt.wantTransient)
			}
			if h := models.Hint(got); h != tt.wantHint {
				t.Errorf("hint = %q, want %q", h, tt.wantHint)
			}
		})
	}
}
