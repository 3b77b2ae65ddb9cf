package matcher

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/your-org/facecheck/internal/gallery"
	"github.com/your-org/facecheck/internal/models"
	"github.com/your-org/facecheck/internal/observability"
)

const DefaultThreshold = 0.5

var ErrThresholdRange = errors.New("threshold must be within [0, 1]")

// Matcher finds the enrolled identity closest to a query embedding by
// cosine similarity. An identity is accepted only when its similarity is
// strictly greater than the threshold.
type Matcher struct {
	gallery   *gallery.Gallery
	threshold atomic.Uint64
}

func New(g *gallery.Gallery, threshold float64) (*Matcher, error) {
	m := &Matcher{gallery: g}
	if err := m.SetThreshold(threshold); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Matcher) Threshold() float64 {
	return math.Float64frombits(m.threshold.Load())
}

// SetThreshold applies to the next Match call.
func (m *Matcher) SetThreshold(t float64) error {
	if math.IsNaN(t) || t < 0 || t > 1 {
		return fmt.Errorf("%w: %v", ErrThresholdRange, t)
	}
	m.threshold.Store(math.Float64bits(t))
	return nil
}

// Match scans the gallery view captured at call time. With an empty gallery
// or no similarity above the threshold the result has no IdentityID; the
// best similarity seen is still reported.
func (m *Matcher) Match(query []float32) (models.MatchResult, error) {
	start := time.Now()
	defer func() { observability.MatchDuration.Observe(time.Since(start).Seconds()) }()

	if dim := m.gallery.Dimension(); len(query) != dim {
		return models.MatchResult{}, &models.DimensionError{Want: dim, Got: len(query)}
	}
	q, err := Normalize(query)
	if err != nil {
		return models.MatchResult{}, err
	}

	threshold := m.Threshold()
	view := m.gallery.View()

	var (
		best    *gallery.Entry
		bestSim = math.Inf(-1)
	)
	// Entries are sorted by id and only a strictly higher score displaces
	// the current best, so ties resolve to the smallest id.
	for _, e := range view.Entries() {
		if e.Unit == nil {
			continue
		}
		sim := clamp(floats.Dot(q, e.Unit))
		if sim > bestSim {
			best, bestSim = e, sim
		}
	}

	if best == nil {
		return models.MatchResult{}, nil
	}
	if bestSim <= threshold {
		return models.MatchResult{Similarity: bestSim}, nil
	}
	return models.MatchResult{
		IdentityID: best.IdentityID,
		Similarity: bestSim,
		Accepted:   true,
		Metadata:   best.Metadata,
	}, nil
}

// Normalize returns the unit vector of v in float64.
func Normalize(v []float32) ([]float64, error) {
	out := make([]float64, len(v))
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("component %d is not finite: %w", i, models.ErrDegenerateEmbedding)
		}
		out[i] = f
	}
	norm := floats.Norm(out, 2)
	if norm == 0 || math.IsInf(norm, 0) {
		return nil, fmt.Errorf("norm %v: %w", norm, models.ErrDegenerateEmbedding)
	}
	floats.Scale(1/norm, out)
	return out, nil
}

// Similarity is the cosine similarity of a and b, in [-1, 1].
func Similarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, &models.DimensionError{Want: len(a), Got: len(b)}
	}
	ua, err := Normalize(a)
	if err != nil {
		return 0, err
	}
	ub, err := Normalize(b)
	if err != nil {
		return 0, err
	}
	return clamp(floats.Dot(ua, ub)), nil
}

func clamp(s float64) float64 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
