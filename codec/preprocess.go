package codec

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Normalization holds optional per-channel mean/std applied after the [0,1]
// scaling, using (x - mean) / std.
type Normalization struct {
	Mean [3]float32
	Std  [3]float32
}

// Letterbox records the geometry used to place a frame on the model canvas.
// The frame is scaled to the canvas width and padded vertically with black;
// horizontal padding is always zero. An odd padding difference puts the
// extra row on the bottom border.
type Letterbox struct {
	Scale     float32 // model pixels per original-frame pixel
	ScaledW   int
	ScaledH   int
	PadTop    int
	PadBottom int
}

// PadX is the horizontal padding offset. Kept as a named accessor so the
// decode-side reversal reads symmetrically with PadTop.
func (lb Letterbox) PadX() int { return 0 }

// Preprocess letterboxes frame onto a modelW x modelH canvas and writes the
// planar CHW float32 tensor into dst, which must hold exactly
// 3*modelW*modelH values. Channel values are scaled to [0,1]; norm, when
// non-nil, is applied on top. The padding rows stay zero either way.
//
// The canvas is width-fit: the frame is scaled to the canvas width and the
// leftover height is padded. A frame whose scaled height exceeds the canvas
// (taller aspect than the canvas) is squeezed to the canvas height with no
// padding rather than cropped.
func Preprocess(frame image.Image, modelW, modelH int, norm *Normalization, dst []float32) (Letterbox, error) {
	b := frame.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return Letterbox{}, fmt.Errorf("empty frame %dx%d", w, h)
	}
	if want := 3 * modelW * modelH; len(dst) != want {
		return Letterbox{}, fmt.Errorf("input buffer holds %d values, model wants %d", len(dst), want)
	}

	scale := float32(modelW) / float32(w)
	scaledH := h * modelW / w
	if scaledH > modelH {
		// Width-fit overflow: squeeze to the canvas height instead of
		// cropping content.
		scaledH = modelH
	}
	pad := modelH - scaledH
	lb := Letterbox{
		Scale:     scale,
		ScaledW:   modelW,
		ScaledH:   scaledH,
		PadTop:    pad / 2,
		PadBottom: pad - pad/2,
	}

	resized := frame
	if w != modelW || h != scaledH {
		resized = imaging.Resize(frame, modelW, scaledH, imaging.Linear)
	}

	for i := range dst {
		dst[i] = 0
	}

	// Fold the normalization profile into a single multiply-subtract per
	// value: (x/255 - mean) / std == x*mul - sub.
	mul := [3]float32{1.0 / 255, 1.0 / 255, 1.0 / 255}
	var sub [3]float32
	if norm != nil {
		for c := 0; c < 3; c++ {
			mul[c] = 1.0 / (255 * norm.Std[c])
			sub[c] = norm.Mean[c] / norm.Std[c]
		}
	}

	switch img := resized.(type) {
	case *image.RGBA:
		writePix(img.Pix, img.Stride, dst, lb, modelW, modelH, mul, sub)
	case *image.NRGBA:
		writePix(img.Pix, img.Stride, dst, lb, modelW, modelH, mul, sub)
	default:
		writeGeneric(resized, dst, lb, modelW, modelH, mul, sub)
	}
	return lb, nil
}

// writePix walks 4-byte-per-pixel raster rows directly. Alpha is ignored,
// so RGBA and NRGBA buffers are handled identically.
func writePix(pix []uint8, stride int, dst []float32, lb Letterbox, modelW, modelH int, mul, sub [3]float32) {
	channelSize := modelW * modelH
	for y := 0; y < lb.ScaledH; y++ {
		row := pix[y*stride:]
		out := (lb.PadTop + y) * modelW
		for x := 0; x < modelW; x++ {
			i := out + x
			p := row[x*4 : x*4+3 : x*4+3]
			dst[i] = float32(p[0])*mul[0] - sub[0]
			dst[channelSize+i] = float32(p[1])*mul[1] - sub[1]
			dst[channelSize*2+i] = float32(p[2])*mul[2] - sub[2]
		}
	}
}

func writeGeneric(img image.Image, dst []float32, lb Letterbox, modelW, modelH int, mul, sub [3]float32) {
	channelSize := modelW * modelH
	min := img.Bounds().Min
	for y := 0; y < lb.ScaledH; y++ {
		out := (lb.PadTop + y) * modelW
		for x := 0; x < modelW; x++ {
			i := out + x
			r, g, b, _ := img.At(min.X+x, min.Y+y).RGBA()
			dst[i] = float32(r>>8)*mul[0] - sub[0]
			dst[channelSize+i] = float32(g>>8)*mul[1] - sub[1]
			dst[channelSize*2+i] = float32(b>>8)*mul[2] - sub[2]
		}
	}
}
