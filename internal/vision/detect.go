package vision

import (
	"fmt"
	"sort"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	detInputSize   = 640
	detAnchors     = 2
	detNMSOverlap  = 0.4
	detInputName   = "input.1"
	detOutputCount = 9
)

var detStrides = [3]int{8, 16, 32}

// det_10g output names, grouped as scores / boxes / landmarks per stride.
var detOutputNames = [detOutputCount]string{
	"448", "471", "494",
	"451", "474", "497",
	"454", "477", "500",
}

// Face is a detected face in source-image pixel coordinates.
type Face struct {
	Box       box
	Score     float32
	Landmarks [5][2]float32
}

type box struct{ X1, Y1, X2, Y2 float32 }

func (b box) width() float32  { return b.X2 - b.X1 }
func (b box) height() float32 { return b.Y2 - b.Y1 }

func (b box) area() float32 {
	if b.width() <= 0 || b.height() <= 0 {
		return 0
	}
	return b.width() * b.height()
}

// detector wraps the RetinaFace det_10g session. A session owns its
// tensors, so runs are serialized.
type detector struct {
	mu        sync.Mutex
	session   *ort.AdvancedSession
	input     *ort.Tensor[float32]
	outputs   []*ort.Tensor[float32]
	threshold float32
}

func newDetector(modelPath string, threshold float32) (*detector, error) {
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, detInputSize, detInputSize))
	if err != nil {
		return nil, fmt.Errorf("create detector input: %w", err)
	}

	d := &detector{input: input, threshold: threshold}
	values := make([]ort.Value, 0, detOutputCount)
	for i := 0; i < detOutputCount; i++ {
		stride := int64(detStrides[i%3])
		cells := (detInputSize / stride) * (detInputSize / stride) * detAnchors
		width := [3]int64{1, 4, 10}[i/3]

		t, err := ort.NewEmptyTensor[float32](ort.NewShape(cells, width))
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("create detector output %s: %w", detOutputNames[i], err)
		}
		d.outputs = append(d.outputs, t)
		values = append(values, t)
	}

	d.session, err = ort.NewAdvancedSession(modelPath,
		[]string{detInputName}, detOutputNames[:],
		[]ort.Value{input}, values, nil)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create detector session: %w", err)
	}
	return d, nil
}

// detect runs the model on a CHW tensor and returns faces scaled to a
// srcW x srcH image, best first.
func (d *detector) detect(chw []float32, srcW, srcH int) ([]Face, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	copy(d.input.GetData(), chw)
	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detector: %w", err)
	}

	sx := float32(srcW) / detInputSize
	sy := float32(srcH) / detInputSize
	var faces []Face
	for i, stride := range detStrides {
		faces = append(faces, decodeStride(
			d.outputs[i].GetData(), d.outputs[i+3].GetData(), d.outputs[i+6].GetData(),
			stride, d.threshold, sx, sy, float32(srcW), float32(srcH))...)
	}
	return suppress(faces, detNMSOverlap), nil
}

func (d *detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.input != nil {
		d.input.Destroy()
	}
	for _, t := range d.outputs {
		t.Destroy()
	}
}

// decodeStride turns one stride's anchor grid into faces. Box and landmark
// outputs are distances from the anchor centre in units of the stride.
func decodeStride(scores, boxes, marks []float32, stride int, threshold, sx, sy, maxX, maxY float32) []Face {
	var out []Face
	side := detInputSize / stride
	st := float32(stride)

	for cell := 0; cell < side*side*detAnchors; cell++ {
		score := scores[cell]
		if score < threshold {
			continue
		}
		pos := cell / detAnchors
		ax := float32(pos%side) * st
		ay := float32(pos/side) * st

		b := boxes[cell*4 : cell*4+4]
		f := Face{
			Score: score,
			Box: box{
				X1: clamp32((ax-b[0]*st)*sx, 0, maxX),
				Y1: clamp32((ay-b[1]*st)*sy, 0, maxY),
				X2: clamp32((ax+b[2]*st)*sx, 0, maxX),
				Y2: clamp32((ay+b[3]*st)*sy, 0, maxY),
			},
		}
		m := marks[cell*10 : cell*10+10]
		for k := 0; k < 5; k++ {
			f.Landmarks[k] = [2]float32{(ax + m[2*k]*st) * sx, (ay + m[2*k+1]*st) * sy}
		}
		out = append(out, f)
	}
	return out
}

// suppress keeps the best-scoring face of every overlapping cluster.
func suppress(faces []Face, overlap float32) []Face {
	sort.SliceStable(faces, func(i, j int) bool { return faces[i].Score > faces[j].Score })

	kept := faces[:0:0]
	for _, f := range faces {
		dup := false
		for _, k := range kept {
			if iou(f.Box, k.Box) > overlap {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, f)
		}
	}
	return kept
}

func iou(a, b box) float32 {
	inter := box{
		X1: max(a.X1, b.X1), Y1: max(a.Y1, b.Y1),
		X2: min(a.X2, b.X2), Y2: min(a.Y2, b.Y2),
	}.area()
	union := a.area() + b.area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clamp32(v, lo, hi float32) float32 {
	return min(max(v, lo), hi)
}
