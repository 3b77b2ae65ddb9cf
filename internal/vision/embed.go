package vision

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	// ArcFace w600k_r50 takes aligned 112x112 crops.
	embInputSize  = 112
	EmbeddingDim  = 512
	embInputName  = "input.1"
	embOutputName = "683"
)

type embedder struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func newEmbedder(modelPath string) (*embedder, error) {
	e := &embedder{}
	var err error

	e.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, embInputSize, embInputSize))
	if err != nil {
		return nil, fmt.Errorf("create embedder input: %w", err)
	}
	e.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, EmbeddingDim))
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("create embedder output: %w", err)
	}
	e.session, err = ort.NewAdvancedSession(modelPath,
		[]string{embInputName}, []string{embOutputName},
		[]ort.Value{e.input}, []ort.Value{e.output}, nil)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}
	return e, nil
}

// embed returns the raw model output for a CHW face crop. Matching
// normalizes, so the vector is stored as produced.
func (e *embedder) embed(chw []float32) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.input.GetData(), chw)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedder: %w", err)
	}
	out := make([]float32, EmbeddingDim)
	copy(out, e.output.GetData())
	return out, nil
}

func (e *embedder) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.input != nil {
		e.input.Destroy()
	}
	if e.output != nil {
		e.output.Destroy()
	}
}
