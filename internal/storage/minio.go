package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/facecheck/internal/config"
	"github.com/your-org/facecheck/internal/gallery"
	"github.com/your-org/facecheck/internal/models"
)

const facesPrefix = "faces/"

type MinIOStore struct {
	client *minio.Client
	bucket string
}

func NewMinIOStore(cfg config.MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinIOStore{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return classifyObject("check bucket", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return classifyObject("create bucket", err)
		}
	}
	return nil
}

// PutFaceImage stores an enrollment source image and returns its key.
func (s *MinIOStore) PutFaceImage(ctx context.Context, identityID string, data []byte, filename, contentType string) (string, error) {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		ext = ".jpg"
	}
	key := facesPrefix + identityID + "/" + uuid.NewString() + ext
	if err := s.PutObject(ctx, key, data, contentType); err != nil {
		return "", err
	}
	return key, nil
}

// DeleteFaceImages removes every stored image of an identity.
func (s *MinIOStore) DeleteFaceImages(ctx context.Context, identityID string) error {
	keys, err := s.ListObjects(ctx, facesPrefix+identityID+"/")
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.DeleteObjects(ctx, keys)
}

func (s *MinIOStore) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return classifyObject("put object "+key, err)
}

// GetObject reads a whole object. A missing key maps to models.ErrNotFound.
func (s *MinIOStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classifyObject("get object "+key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, classifyObject("read object "+key, err)
	}
	return data, nil
}

func (s *MinIOStore) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, classifyObject("list objects "+prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// DeleteObjects removes multiple objects in a single batch request.
func (s *MinIOStore) DeleteObjects(ctx context.Context, keys []string) error {
	objectsCh := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objectsCh <- minio.ObjectInfo{Key: key}
	}
	close(objectsCh)
	for result := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if result.Err != nil {
			return classifyObject("delete object "+result.ObjectName, result.Err)
		}
	}
	return nil
}

// Ping checks MinIO connectivity.
func (s *MinIOStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return classifyObject("ping minio", err)
}

// SaveGallerySnapshot writes the gallery snapshot object.
func (s *MinIOStore) SaveGallerySnapshot(ctx context.Context, key string, identities []models.Identity) error {
	data, err := gallery.EncodeSnapshot(identities)
	if err != nil {
		return err
	}
	return s.PutObject(ctx, key, data, "application/json")
}

// LoadGallerySnapshot reads the gallery snapshot object. A missing object is
// an empty gallery.
func (s *MinIOStore) LoadGallerySnapshot(ctx context.Context, key string) ([]models.Identity, error) {
	data, err := s.GetObject(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return gallery.DecodeSnapshot(data)
}

// GallerySnapshotStore adapts the bucket to gallery.SnapshotStore.
type GallerySnapshotStore struct {
	store *MinIOStore
	key   string
}

func (s *MinIOStore) GallerySnapshotStore(key string) *GallerySnapshotStore {
	return &GallerySnapshotStore{store: s, key: key}
}

func (g *GallerySnapshotStore) Save(ctx context.Context, identities []models.Identity) error {
	return g.store.SaveGallerySnapshot(ctx, g.key, identities)
}

func (g *GallerySnapshotStore) Load(ctx context.Context) ([]models.Identity, error) {
	return g.store.LoadGallerySnapshot(ctx, g.key)
}
