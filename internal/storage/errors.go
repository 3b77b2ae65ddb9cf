package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/minio/minio-go/v7"

	"github.com/your-org/facecheck/internal/models"
)

const (
	attendanceUniqueConstraint = "attendance_identity_day_key"

	HintCredentialTier = "the connected role lacks privileges on this table; use the service role instead of a read-only or anonymous role"
	HintEndpoint       = "check the storage URL, database name and credentials"
	HintSchema         = "schema is missing; run migrations"
)

// Classify turns a driver error into a *models.StorageError so callers can
// decide on retry with errors.Is. A unique violation on the attendance key
// becomes models.ErrDuplicateAttendance. nil stays nil.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *models.StorageError
	if errors.As(err, &se) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyPg(op, pgErr)
	}

	switch {
	case errors.Is(err, context.Canceled):
		return permanentErr(op, err, "")
	case errors.Is(err, context.DeadlineExceeded), pgconn.Timeout(err):
		return transientErr(op, err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return permanentErr(op, err, HintEndpoint)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return transientErr(op, err)
	}
	var recErr tls.RecordHeaderError
	if errors.As(err, &recErr) {
		return transientErr(op, err)
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return transientErr(op, err)
	}

	return permanentErr(op, err, "")
}

func classifyPg(op string, pgErr *pgconn.PgError) error {
	switch code := pgErr.Code; {
	case code == "23505" && pgErr.ConstraintName == attendanceUniqueConstraint:
		return fmt.Errorf("%s: %w", op, models.ErrDuplicateAttendance)
	case code == "42501":
		return permanentErr(op, pgErr, HintCredentialTier)
	case code == "28P01", code == "28000", code == "3D000":
		return permanentErr(op, pgErr, HintEndpoint)
	case code == "42P01":
		return permanentErr(op, pgErr, HintSchema)
	case code == "40001", code == "40P01", code == "55P03", code == "57P03", code == "53300",
		strings.HasPrefix(code, "08"):
		return transientErr(op, pgErr)
	}
	return permanentErr(op, pgErr, "")
}

// classifyObject handles errors from the object store.
func classifyObject(op string, err error) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey":
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	case resp.StatusCode == 401 || resp.StatusCode == 403 ||
		resp.Code == "AccessDenied" || resp.Code == "InvalidAccessKeyId" || resp.Code == "SignatureDoesNotMatch":
		return permanentErr(op, err, HintEndpoint)
	case resp.StatusCode == 429 || resp.StatusCode >= 500:
		return transientErr(op, err)
	}
	return Classify(op, err)
}

func transientErr(op string, err error) error {
	return &models.StorageError{Op: op, Kind: models.StorageTransient, Err: err}
}

func permanentErr(op string, err error, hint string) error {
	return &models.StorageError{Op: op, Kind: models.StoragePermanent, Hint: hint, Err: err}
}

func isNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}
