package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/your-org/facecheck/internal/models"
)

type snapshotEntry struct {
	Embedding []float32       `json:"embedding"`
	Metadata  models.Metadata `json:"metadata"`
}

// EncodeSnapshot renders identities as a JSON object keyed by identity id.
func EncodeSnapshot(identities []models.Identity) ([]byte, error) {
	doc := make(map[string]snapshotEntry, len(identities))
	for _, ident := range identities {
		doc[ident.IdentityID] = snapshotEntry{Embedding: ident.Embedding, Metadata: ident.Metadata}
	}
	return json.MarshalIndent(doc, "", "  ")
}

// DecodeSnapshot is the inverse of EncodeSnapshot. The result is sorted by id.
func DecodeSnapshot(data []byte) ([]models.Identity, error) {
	var doc map[string]snapshotEntry
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode gallery snapshot: %w", err)
	}
	out := make([]models.Identity, 0, len(doc))
	for id, e := range doc {
		out = append(out, models.Identity{IdentityID: id, Embedding: e.Embedding, Metadata: e.Metadata})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IdentityID < out[j].IdentityID })
	return out, nil
}

// FileStore keeps the snapshot in a local file. It serves as a recovery
// cache when object storage is not configured.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Save(_ context.Context, identities []models.Identity) error {
	data, err := EncodeSnapshot(identities)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".gallery-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Load returns an empty set when the file does not exist yet.
func (s *FileStore) Load(_ context.Context) ([]models.Identity, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return DecodeSnapshot(data)
}
