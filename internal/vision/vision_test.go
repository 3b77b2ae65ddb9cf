package vision

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"
)

func TestIoU(t *testing.T) {
	tests := []struct {
		name string
		a, b box
		want float32
	}{
		{"identical", box{0, 0, 10, 10}, box{0, 0, 10, 10}, 1},
		{"disjoint", box{0, 0, 10, 10}, box{20, 20, 30, 30}, 0},
		{"half overlap", box{0, 0, 10, 10}, box{5, 0, 15, 10}, 50.0 / 150.0},
		{"degenerate", box{0, 0, 0, 0}, box{0, 0, 0, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := iou(tt.a, tt.b); math.Abs(float64(got-tt.want)) > 1e-6 {
				t.Errorf("iou = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSuppress_KeepsBestOfCluster(t *testing.T) {
	faces := []Face{
		{Box: box{0, 0, 10, 10}, Score: 0.7},
		{Box: box{1, 1, 11, 11}, Score: 0.9},
		{Box: box{50, 50, 60, 60}, Score: 0.6},
	}
	got := suppress(faces, 0.4)
	if len(got) != 2 {
		t.Fatalf("kept %d faces, want 2", len(got))
	}
	if got[0].Score != 0.9 || got[1].Score != 0.6 {
		t.Errorf("kept scores %v, %v", got[0].Score, got[1].Score)
	}
}

func TestDecodeStride(t *testing.T) {
	const stride = 32
	side := detInputSize / stride
	n := side * side * detAnchors
	scores := make([]float32, n)
	boxes := make([]float32, n*4)
	marks := make([]float32, n*10)

	// Second anchor of grid cell (x=2, y=1).
	cell := (1*side+2)*detAnchors + 1
	scores[cell] = 0.95
	copy(boxes[cell*4:], []float32{1, 1, 1, 1})

	got := decodeStride(scores, boxes, marks, stride, 0.5, 1, 1, detInputSize, detInputSize)
	if len(got) != 1 {
		t.Fatalf("decoded %d faces, want 1", len(got))
	}
	want := box{X1: 32, Y1: 0, X2: 96, Y2: 64}
	if got[0].Box != want {
		t.Errorf("box = %+v, want %+v", got[0].Box, want)
	}
	if got[0].Landmarks[0] != [2]float32{64, 32} {
		t.Errorf("landmark = %v", got[0].Landmarks[0])
	}
}

func TestMostConfident(t *testing.T) {
	if _, ok := mostConfident(nil); ok {
		t.Error("empty input reported a face")
	}
	f, ok := mostConfident([]Face{{Score: 0.6}, {Score: 0.99}, {Score: 0.8}})
	if !ok || f.Score != 0.99 {
		t.Errorf("got %v, %v", f.Score, ok)
	}
}

func TestToCHW(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 0, B: 128, A: 255})
		}
	}
	out := toCHW(img, 2, [2]float32{127.5, 127.5})
	if len(out) != 12 {
		t.Fatalf("len = %d, want 12", len(out))
	}
	if out[0] != 1 || out[4] != -1 {
		t.Errorf("R=%v G=%v, want 1 and -1", out[0], out[4])
	}
}

func TestCrop_ClampsAndPads(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))

	c := crop(img, box{10, 10, 60, 60})
	if c == nil {
		t.Fatal("crop returned nil")
	}
	if b := c.Bounds(); b.Dx() != 60 || b.Dy() != 60 {
		t.Errorf("crop size = %v, want 60x60 with padding", b)
	}

	edge := crop(img, box{90, 90, 140, 140})
	if b := edge.Bounds(); b.Dx() != 15 || b.Dy() != 15 {
		t.Errorf("edge crop size = %v, want clamped 15x15", b)
	}

	if crop(img, box{200, 200, 210, 210}) != nil {
		t.Error("crop outside image should be nil")
	}
}

func TestFaceQuality(t *testing.T) {
	if q := faceQuality(box{0, 0, 56, 200}); q != 0.5 {
		t.Errorf("quality = %v, want 0.5", q)
	}
	if q := faceQuality(box{0, 0, 300, 300}); q != 1 {
		t.Errorf("quality = %v, want 1", q)
	}
}

func TestDecodeImage(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 3, 2))); err != nil {
		t.Fatal(err)
	}
	img, err := decodeImage(buf.Bytes())
	if err != nil {
		t.Fatalf("decodeImage: %v", err)
	}
	if img.Bounds().Dx() != 3 {
		t.Errorf("width = %d", img.Bounds().Dx())
	}
	if _, err := decodeImage([]byte("not an image")); err == nil {
		t.Error("expected decode error")
	}
}
