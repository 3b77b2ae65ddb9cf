package gallery

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/floats"

	"github.com/your-org/facecheck/internal/models"
	"github.com/your-org/facecheck/internal/observability"
)

// Entry is one enrolled template as seen by the matcher. Unit holds the
// L2-normalized embedding in float64, or nil when the stored embedding has
// zero norm or non-finite components.
type Entry struct {
	IdentityID string
	Embedding  []float32
	Unit       []float64
	Metadata   models.Metadata
}

// View is an immutable set of entries sorted by identity id.
type View struct {
	entries []*Entry
	byID    map[string]*Entry
}

// Entries returns the sorted entries. Callers must not modify them.
func (v *View) Entries() []*Entry { return v.entries }

func (v *View) Len() int { return len(v.entries) }

// SnapshotStore persists the whole gallery.
type SnapshotStore interface {
	Save(ctx context.Context, identities []models.Identity) error
	Load(ctx context.Context) ([]models.Identity, error)
}

// PersistError is returned when a mutation was applied in memory but the
// snapshot could not be written.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string { return "persist gallery snapshot: " + e.Err.Error() }
func (e *PersistError) Unwrap() error { return e.Err }

// Gallery is the in-memory set of enrolled identities. Reads are lock-free;
// writers serialize on mu and publish a fresh View.
type Gallery struct {
	dim   int
	store SnapshotStore

	mu  sync.Mutex
	cur atomic.Pointer[View]
}

// New creates an empty gallery for embeddings of the given dimension.
// store may be nil.
func New(dim int, store SnapshotStore) *Gallery {
	g := &Gallery{dim: dim, store: store}
	g.cur.Store(&View{byID: map[string]*Entry{}})
	return g
}

func (g *Gallery) Dimension() int { return g.dim }

// View returns the current immutable view.
func (g *Gallery) View() *View { return g.cur.Load() }

func (g *Gallery) Len() int { return g.cur.Load().Len() }

// Get returns a copy of the identity enrolled under id.
func (g *Gallery) Get(id string) (models.Identity, bool) {
	e, ok := g.cur.Load().byID[id]
	if !ok {
		return models.Identity{}, false
	}
	return e.identity(), true
}

// Upsert inserts or replaces the template for id.
func (g *Gallery) Upsert(ctx context.Context, id string, embedding []float32, meta models.Metadata) error {
	if id == "" {
		return fmt.Errorf("upsert: empty identity id")
	}
	if len(embedding) != g.dim {
		return &models.DimensionError{Want: g.dim, Got: len(embedding)}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	old := g.cur.Load()
	byID := make(map[string]*Entry, len(old.byID)+1)
	for k, v := range old.byID {
		byID[k] = v
	}
	byID[id] = newEntry(id, embedding, meta)
	g.publish(byID)

	return g.persist(ctx, "upsert")
}

// Remove deletes the template for id.
func (g *Gallery) Remove(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	old := g.cur.Load()
	if _, ok := old.byID[id]; !ok {
		return fmt.Errorf("remove %q: %w", id, models.ErrNotFound)
	}
	byID := make(map[string]*Entry, len(old.byID))
	for k, v := range old.byID {
		if k != id {
			byID[k] = v
		}
	}
	g.publish(byID)

	return g.persist(ctx, "remove")
}

// ReplaceAll swaps the whole set in one step. The input is validated before
// anything changes; a later duplicate id wins.
func (g *Gallery) ReplaceAll(ctx context.Context, identities []models.Identity) error {
	byID := make(map[string]*Entry, len(identities))
	for _, ident := range identities {
		if ident.IdentityID == "" {
			return fmt.Errorf("replace all: empty identity id")
		}
		if len(ident.Embedding) != g.dim {
			return fmt.Errorf("replace all %q: %w", ident.IdentityID,
				&models.DimensionError{Want: g.dim, Got: len(ident.Embedding)})
		}
		byID[ident.IdentityID] = newEntry(ident.IdentityID, ident.Embedding, ident.Metadata)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.publish(byID)
	return g.persist(ctx, "replace_all")
}

// Snapshot returns a deep copy of every identity, sorted by id.
func (g *Gallery) Snapshot() []models.Identity {
	v := g.cur.Load()
	out := make([]models.Identity, 0, len(v.entries))
	for _, e := range v.entries {
		out = append(out, e.identity())
	}
	return out
}

// Flush writes the current snapshot to the store.
func (g *Gallery) Flush(ctx context.Context) error {
	if g.store == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.persist(ctx, "flush")
}

// Restore replaces the in-memory set with the persisted snapshot. Entries
// with the wrong dimension are dropped with a warning.
func (g *Gallery) Restore(ctx context.Context) (int, error) {
	if g.store == nil {
		return 0, nil
	}
	identities, err := g.store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load gallery snapshot: %w", err)
	}

	byID := make(map[string]*Entry, len(identities))
	for _, ident := range identities {
		if len(ident.Embedding) != g.dim {
			slog.Warn("skipping snapshot entry", "identity_id", ident.IdentityID,
				"dimension", len(ident.Embedding), "want", g.dim)
			continue
		}
		byID[ident.IdentityID] = newEntry(ident.IdentityID, ident.Embedding, ident.Metadata)
	}

	g.mu.Lock()
	g.publish(byID)
	g.mu.Unlock()

	return len(byID), nil
}

// publish must be called with mu held.
func (g *Gallery) publish(byID map[string]*Entry) {
	entries := make([]*Entry, 0, len(byID))
	for _, e := range byID {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].IdentityID < entries[j].IdentityID })

	g.cur.Store(&View{entries: entries, byID: byID})
	observability.GallerySize.Set(float64(len(entries)))
}

// persist must be called with mu held so snapshots are written in order.
func (g *Gallery) persist(ctx context.Context, op string) error {
	if g.store == nil {
		return nil
	}
	if err := g.store.Save(ctx, g.persistable()); err != nil {
		observability.GalleryPersistFailures.Inc()
		slog.Error("gallery snapshot not persisted", "op", op, "error", err)
		return &PersistError{Err: err}
	}
	return nil
}

// persistable is Snapshot without entries that have non-finite
// components, which the snapshot encoding cannot represent. Such entries
// never match, so dropping them loses nothing on restore.
func (g *Gallery) persistable() []models.Identity {
	v := g.cur.Load()
	out := make([]models.Identity, 0, len(v.entries))
	for _, e := range v.entries {
		if !finite(e.Embedding) {
			slog.Warn("not persisting non-finite embedding", "identity_id", e.IdentityID)
			continue
		}
		out = append(out, e.identity())
	}
	return out
}

func finite(v []float32) bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func newEntry(id string, embedding []float32, meta models.Metadata) *Entry {
	emb := make([]float32, len(embedding))
	copy(emb, embedding)
	return &Entry{
		IdentityID: id,
		Embedding:  emb,
		Unit:       unit(emb),
		Metadata:   meta,
	}
}

func (e *Entry) identity() models.Identity {
	emb := make([]float32, len(e.Embedding))
	copy(emb, e.Embedding)
	return models.Identity{IdentityID: e.IdentityID, Embedding: emb, Metadata: e.Metadata}
}

func unit(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		out[i] = f
	}
	norm := floats.Norm(out, 2)
	if norm == 0 || math.IsInf(norm, 0) {
		return nil
	}
	floats.Scale(1/norm, out)
	return out
}
