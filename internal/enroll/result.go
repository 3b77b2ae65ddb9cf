package enroll

import (
	"errors"

	"github.com/your-org/facecheck/internal/models"
)

// Result is the answer to an enrollment request.
type Result struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// Rejected reports whether err is a problem with the submitted face rather
// than with the service. Such errors become {accepted: false}.
func Rejected(err error) bool {
	return errors.Is(err, models.ErrNoFaceDetected) ||
		errors.Is(err, models.ErrDegenerateEmbedding) ||
		errors.Is(err, models.ErrDimensionMismatch)
}

// ResultOf maps an enrollment error to its result. Only nil and rejection
// errors are meaningful here; callers handle the rest as failures.
func ResultOf(err error) Result {
	switch {
	case err == nil:
		return Result{Accepted: true}
	case errors.Is(err, models.ErrNoFaceDetected):
		return Result{Reason: "no face detected"}
	case errors.Is(err, models.ErrDegenerateEmbedding):
		return Result{Reason: "degenerate embedding"}
	case errors.Is(err, models.ErrDimensionMismatch):
		var de *models.DimensionError
		if errors.As(err, &de) {
			return Result{Reason: de.Error()}
		}
		return Result{Reason: "embedding dimension mismatch"}
	default:
		return Result{Reason: err.Error()}
	}
}
