package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
)

// normalization constants (mean, scale) for the two models.
var (
	detNorm = [2]float32{127.5, 128.0}
	embNorm = [2]float32{127.5, 127.5}
)

func decodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// toCHW resizes img to size x size (nearest neighbour) and lays it out as
// planar RGB, each value mapped to (v - mean) / scale.
func toCHW(img image.Image, size int, norm [2]float32) []float32 {
	src := toRGBA(img)
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := size * size
	out := make([]float32, 3*plane)

	for y := 0; y < size; y++ {
		sy := b.Min.Y + y*h/size
		for x := 0; x < size; x++ {
			sx := b.Min.X + x*w/size
			off := src.PixOffset(sx, sy)
			i := y*size + x
			for c := 0; c < 3; c++ {
				out[c*plane+i] = (float32(src.Pix[off+c]) - norm[0]) / norm[1]
			}
		}
	}
	return out
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(b)
	draw.Draw(rgba, b, img, b.Min, draw.Src)
	return rgba
}

// crop cuts the face box out of img with 10% padding on each side, clamped
// to the image. It returns nil for an empty box.
func crop(img image.Image, fb box) image.Image {
	b := img.Bounds()
	padX := fb.width() * 0.1
	padY := fb.height() * 0.1
	r := image.Rect(
		int(fb.X1-padX), int(fb.Y1-padY),
		int(fb.X2+padX), int(fb.Y2+padY),
	).Intersect(b)
	if r.Empty() {
		return nil
	}

	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), img, r.Min, draw.Src)
	return out
}

// faceQuality is a size heuristic in [0, 1]: a face at least as large as
// the embedder input scores 1.
func faceQuality(fb box) float32 {
	side := min(fb.width(), fb.height())
	if side <= 0 {
		return 0
	}
	return min(side/embInputSize, 1)
}
