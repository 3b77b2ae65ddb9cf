package models

import (
	"errors"
	"fmt"
)

var (
	ErrNoFaceDetected            = errors.New("no face detected")
	ErrDegenerateEmbedding       = errors.New("degenerate embedding")
	ErrDimensionMismatch         = errors.New("embedding dimension mismatch")
	ErrNotFound                  = errors.New("not found")
	ErrTransientStorage          = errors.New("transient storage error")
	ErrPermanentStorage          = errors.New("permanent storage error")
	ErrDuplicateAttendance       = errors.New("attendance already recorded for day")
	ErrIdentitySourceUnavailable = errors.New("identity source unavailable")
	ErrNotRecorded               = errors.New("identified but attendance not recorded")
)

// StorageKind says whether a storage failure is worth retrying.
type StorageKind int

const (
	StoragePermanent StorageKind = iota
	StorageTransient
)

func (k StorageKind) String() string {
	if k == StorageTransient {
		return "transient"
	}
	return "permanent"
}

// StorageError is produced by the storage boundary. Hint carries an
// operator-facing fix for permanent misconfiguration.
type StorageError struct {
	Op   string
	Kind StorageKind
	Hint string
	Err  error
}

func (e *StorageError) Error() string {
	msg := fmt.Sprintf("%s: %s storage error: %v", e.Op, e.Kind, e.Err)
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is lets callers test against ErrTransientStorage / ErrPermanentStorage.
func (e *StorageError) Is(target error) bool {
	switch target {
	case ErrTransientStorage:
		return e.Kind == StorageTransient
	case ErrPermanentStorage:
		return e.Kind == StoragePermanent
	}
	return false
}

// DimensionError reports the expected and actual embedding length.
type DimensionError struct {
	Want, Got int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
}

func (e *DimensionError) Is(target error) bool { return target == ErrDimensionMismatch }

// Hint returns the operator hint carried by a storage error, if any.
func Hint(err error) string {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Hint
	}
	return ""
}
