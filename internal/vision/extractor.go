package vision

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facecheck/internal/config"
	"github.com/your-org/facecheck/internal/models"
	"github.com/your-org/facecheck/internal/observability"
)

// InitRuntime loads the ONNX Runtime shared library. An empty path picks
// the platform default name.
func InitRuntime(libPath string) error {
	if libPath == "" {
		libPath = defaultLibPath()
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("init onnx runtime: %w", err)
	}
	return nil
}

func DestroyRuntime() {
	_ = ort.DestroyEnvironment()
}

func defaultLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}

// Extractor turns an image into one face embedding: RetinaFace detection,
// then ArcFace on the most confident face.
type Extractor struct {
	det *detector
	emb *embedder
}

func NewExtractor(cfg config.VisionConfig) (*Extractor, error) {
	detPath := filepath.Join(cfg.ModelsDir, "det_10g.onnx")
	embPath := filepath.Join(cfg.ModelsDir, "w600k_r50.onnx")

	slog.Info("loading detection model", "path", detPath)
	det, err := newDetector(detPath, float32(cfg.DetectionThreshold))
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath)
	emb, err := newEmbedder(embPath)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	return &Extractor{det: det, emb: emb}, nil
}

// Extract returns the embedding of the face with the highest detector
// confidence, or models.ErrNoFaceDetected.
func (x *Extractor) Extract(ctx context.Context, data []byte) (models.Extraction, error) {
	img, err := decodeImage(data)
	if err != nil {
		return models.Extraction{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.Extraction{}, err
	}

	b := img.Bounds()
	start := time.Now()
	faces, err := x.det.detect(toCHW(img, detInputSize, detNorm), b.Dx(), b.Dy())
	observability.ExtractDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	if err != nil {
		return models.Extraction{}, err
	}

	best, ok := mostConfident(faces)
	if !ok {
		return models.Extraction{}, models.ErrNoFaceDetected
	}
	// Boxes are in bounds-relative pixels.
	best.Box.X1 += float32(b.Min.X)
	best.Box.X2 += float32(b.Min.X)
	best.Box.Y1 += float32(b.Min.Y)
	best.Box.Y2 += float32(b.Min.Y)

	face := crop(img, best.Box)
	if face == nil {
		return models.Extraction{}, models.ErrNoFaceDetected
	}
	if err := ctx.Err(); err != nil {
		return models.Extraction{}, err
	}

	start = time.Now()
	vec, err := x.emb.embed(toCHW(face, embInputSize, embNorm))
	observability.ExtractDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
	if err != nil {
		return models.Extraction{}, err
	}

	return models.Extraction{
		Embedding:     vec,
		DetectorScore: best.Score,
		Quality:       faceQuality(best.Box),
	}, nil
}

func (x *Extractor) Close() {
	if x.det != nil {
		x.det.Close()
	}
	if x.emb != nil {
		x.emb.Close()
	}
}

func mostConfident(faces []Face) (Face, bool) {
	if len(faces) == 0 {
		return Face{}, false
	}
	best := faces[0]
	for _, f := range faces[1:] {
		if f.Score > best.Score {
			best = f
		}
	}
	return best, true
}
