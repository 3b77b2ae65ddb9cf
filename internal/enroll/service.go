package enroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/your-org/facecheck/internal/gallery"
	"github.com/your-org/facecheck/internal/matcher"
	"github.com/your-org/facecheck/internal/models"
)

// ErrExtractorUnavailable is returned by image operations when the process
// runs without a face model.
var ErrExtractorUnavailable = errors.New("face extractor not configured")

// FaceStore is the durable identity source.
type FaceStore interface {
	UpsertIdentity(ctx context.Context, p models.Profile, faceImageKey string) error
	SaveFace(ctx context.Context, id string, embedding []float32, detectorScore, quality float32, sourceKey string, enrolledAt time.Time) error
	DeleteIdentity(ctx context.Context, id string) error
	ListEnrollments(ctx context.Context) ([]models.Enrollment, error)
}

// ImageStore holds source face images.
type ImageStore interface {
	PutFaceImage(ctx context.Context, identityID string, data []byte, filename, contentType string) (string, error)
	GetObject(ctx context.Context, key string) ([]byte, error)
	DeleteFaceImages(ctx context.Context, identityID string) error
}

type Extractor interface {
	Extract(ctx context.Context, image []byte) (models.Extraction, error)
}

// Publisher fans gallery changes out to other replicas.
type Publisher interface {
	PublishGalleryChange(change models.GalleryChange) error
}

type Options struct {
	// Workers bounds concurrent image extractions during a rebuild.
	Workers int
	// Origin tags published changes so a replica can ignore its own.
	Origin string
	Now    func() time.Time
}

// Service owns every path that mutates the gallery: single enrollments,
// removals and full rebuilds from the identity source.
type Service struct {
	gallery   *gallery.Gallery
	faces     FaceStore
	images    ImageStore
	extractor Extractor
	publisher Publisher
	opts      Options
}

// NewService wires the enrollment paths. images, extractor and publisher
// may be nil.
func NewService(g *gallery.Gallery, faces FaceStore, images ImageStore, extractor Extractor, publisher Publisher, opts Options) *Service {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		gallery:   g,
		faces:     faces,
		images:    images,
		extractor: extractor,
		publisher: publisher,
		opts:      opts,
	}
}

func (s *Service) HasExtractor() bool { return s.extractor != nil }

// EnrollEmbedding stores a precomputed embedding for id and makes it
// matchable. Any previous template of id is replaced.
func (s *Service) EnrollEmbedding(ctx context.Context, id string, embedding []float32, meta models.Metadata) error {
	if id == "" {
		return fmt.Errorf("enroll: empty identity id")
	}
	if err := s.validate(embedding); err != nil {
		return err
	}
	meta.Profile.IdentityID = id
	meta.Profile = meta.Profile.WithDefaults()
	if meta.EnrolledAt.IsZero() {
		meta.EnrolledAt = s.opts.Now().UTC()
	}

	if err := s.faces.UpsertIdentity(ctx, meta.Profile, meta.SourceImage); err != nil {
		return fmt.Errorf("enroll %s: %w", id, err)
	}
	if err := s.faces.SaveFace(ctx, id, embedding, meta.DetectorScore, meta.Quality, meta.SourceImage, meta.EnrolledAt); err != nil {
		return fmt.Errorf("enroll %s: %w", id, err)
	}
	return s.activate(ctx, id, embedding, meta)
}

// EnrollImage extracts the most confident face from image and enrolls it.
func (s *Service) EnrollImage(ctx context.Context, profile models.Profile, image []byte, filename, contentType string) error {
	if s.extractor == nil {
		return ErrExtractorUnavailable
	}
	id := profile.IdentityID
	if id == "" {
		return fmt.Errorf("enroll: empty identity id")
	}

	ext, err := s.extractor.Extract(ctx, image)
	if err != nil {
		return fmt.Errorf("enroll %s: %w", id, err)
	}
	if err := s.validate(ext.Embedding); err != nil {
		return fmt.Errorf("enroll %s: %w", id, err)
	}

	var key string
	if s.images != nil {
		key, err = s.images.PutFaceImage(ctx, id, image, filename, contentType)
		if err != nil {
			return fmt.Errorf("enroll %s: %w", id, err)
		}
	}

	meta := models.Metadata{
		Profile:       profile.WithDefaults(),
		SourceImage:   key,
		EnrolledAt:    s.opts.Now().UTC(),
		DetectorScore: ext.DetectorScore,
		Quality:       ext.Quality,
	}
	return s.EnrollEmbedding(ctx, id, ext.Embedding, meta)
}

// Remove deletes id from the durable store, the object store and the
// gallery. models.ErrNotFound means id was unknown everywhere.
func (s *Service) Remove(ctx context.Context, id string) error {
	stored := true
	if err := s.faces.DeleteIdentity(ctx, id); err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("remove %s: %w", id, err)
		}
		stored = false
	}

	if s.images != nil && stored {
		if err := s.images.DeleteFaceImages(ctx, id); err != nil {
			slog.Warn("delete face images", "identity_id", id, "error", err)
		}
	}

	err := s.gallery.Remove(ctx, id)
	switch {
	case errors.Is(err, models.ErrNotFound):
		if !stored {
			return err
		}
	case err != nil:
		if !isPersist(err) {
			return err
		}
		slog.Warn("gallery removal not persisted", "identity_id", id, "error", err)
	}

	s.publish(models.GalleryChange{Action: models.GalleryActionRemove, ID: id})
	return nil
}

// Rebuild resolves one embedding per enrollment and swaps the gallery to
// exactly that set. Enrollments that fail extraction are skipped.
func (s *Service) Rebuild(ctx context.Context, enrollments []models.Enrollment) (int, error) {
	resolved := make([]*models.Identity, len(enrollments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, e := range enrollments {
		if !e.HasFace() {
			continue
		}
		g.Go(func() error {
			ident, err := s.resolve(gctx, e)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				slog.Warn("skipping enrollment", "identity_id", e.Profile.IdentityID, "error", err)
				return nil
			}
			resolved[i] = ident
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("rebuild gallery: %w", err)
	}

	identities := make([]models.Identity, 0, len(resolved))
	for _, ident := range resolved {
		if ident != nil {
			identities = append(identities, *ident)
		}
	}

	if err := s.gallery.ReplaceAll(ctx, identities); err != nil {
		if !isPersist(err) {
			return 0, err
		}
		slog.Warn("rebuilt gallery not persisted", "error", err)
	}
	slog.Info("gallery rebuilt", "enrolled", len(identities), "listed", len(enrollments))
	return len(identities), nil
}

// Refresh lists the identity source and rebuilds from it. It returns the
// source cardinality and the number of identities enrolled.
func (s *Service) Refresh(ctx context.Context) (listed, enrolled int, err error) {
	enrollments, err := s.faces.ListEnrollments(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", models.ErrIdentitySourceUnavailable, err)
	}
	enrolled, err = s.Rebuild(ctx, enrollments)
	return len(enrollments), enrolled, err
}

// Initialize restores the persisted snapshot and falls back to a full
// refresh when it is empty. The returned count seeds the reload monitor.
func (s *Service) Initialize(ctx context.Context) (int, error) {
	restored, err := s.gallery.Restore(ctx)
	if err != nil {
		slog.Warn("gallery snapshot unavailable", "error", err)
	}
	if restored > 0 {
		slog.Info("gallery restored from snapshot", "identities", restored)
		return restored, nil
	}

	listed, enrolled, err := s.Refresh(ctx)
	if err != nil {
		return 0, err
	}
	slog.Info("gallery loaded from identity source", "listed", listed, "enrolled", enrolled)
	return listed, nil
}

// Apply mirrors a change made by another replica. It touches only the
// in-memory gallery.
func (s *Service) Apply(ctx context.Context, change models.GalleryChange) {
	var err error
	switch change.Action {
	case models.GalleryActionUpsert:
		if change.Identity == nil {
			return
		}
		ident := change.Identity
		err = s.gallery.Upsert(ctx, ident.IdentityID, ident.Embedding, ident.Metadata)
	case models.GalleryActionRemove:
		err = s.gallery.Remove(ctx, change.ID)
		if errors.Is(err, models.ErrNotFound) {
			err = nil
		}
	default:
		slog.Warn("unknown gallery change", "action", change.Action)
		return
	}
	if err != nil && !isPersist(err) {
		slog.Warn("apply gallery change", "action", change.Action, "origin", change.Origin, "error", err)
	}
}

func (s *Service) resolve(ctx context.Context, e models.Enrollment) (*models.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := e.Profile.IdentityID
	meta := models.Metadata{
		Profile:       e.Profile.WithDefaults(),
		SourceImage:   e.FaceImageKey,
		EnrolledAt:    e.EnrolledAt,
		DetectorScore: e.DetectorScore,
		Quality:       e.Quality,
	}

	if len(e.Embedding) > 0 {
		if err := s.validate(e.Embedding); err != nil {
			return nil, err
		}
		return &models.Identity{IdentityID: id, Embedding: e.Embedding, Metadata: meta}, nil
	}

	if s.extractor == nil || s.images == nil {
		return nil, ErrExtractorUnavailable
	}
	data, err := s.images.GetObject(ctx, e.FaceImageKey)
	if err != nil {
		return nil, fmt.Errorf("fetch face image: %w", err)
	}
	ext, err := s.extractor.Extract(ctx, data)
	if err != nil {
		return nil, err
	}
	if err := s.validate(ext.Embedding); err != nil {
		return nil, err
	}
	meta.DetectorScore = ext.DetectorScore
	meta.Quality = ext.Quality
	if meta.EnrolledAt.IsZero() {
		meta.EnrolledAt = s.opts.Now().UTC()
	}

	// Store the extracted face so later rebuilds skip the model.
	if err := s.faces.SaveFace(ctx, id, ext.Embedding, ext.DetectorScore, ext.Quality, e.FaceImageKey, meta.EnrolledAt); err != nil {
		slog.Warn("store extracted face", "identity_id", id, "error", err)
	}
	return &models.Identity{IdentityID: id, Embedding: ext.Embedding, Metadata: meta}, nil
}

func (s *Service) activate(ctx context.Context, id string, embedding []float32, meta models.Metadata) error {
	if err := s.gallery.Upsert(ctx, id, embedding, meta); err != nil {
		if !isPersist(err) {
			return err
		}
		slog.Warn("gallery upsert not persisted", "identity_id", id, "error", err)
	}
	ident, _ := s.gallery.Get(id)
	s.publish(models.GalleryChange{Action: models.GalleryActionUpsert, ID: id, Identity: &ident})
	slog.Info("identity enrolled", "identity_id", id, "gallery_size", s.gallery.Len())
	return nil
}

func (s *Service) validate(embedding []float32) error {
	if len(embedding) != s.gallery.Dimension() {
		return &models.DimensionError{Want: s.gallery.Dimension(), Got: len(embedding)}
	}
	if _, err := matcher.Normalize(embedding); err != nil {
		return err
	}
	return nil
}

func (s *Service) publish(change models.GalleryChange) {
	if s.publisher == nil {
		return
	}
	change.Origin = s.opts.Origin
	if err := s.publisher.PublishGalleryChange(change); err != nil {
		slog.Warn("publish gallery change", "action", change.Action, "identity_id", change.ID, "error", err)
	}
}

func isPersist(err error) bool {
	var pe *gallery.PersistError
	return errors.As(err, &pe)
}
