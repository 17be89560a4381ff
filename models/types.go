package models

import (
	"image"
	"time"
)

// BoundingBox is a single detection in original-frame pixel coordinates.
// Corners are clamped to the frame bounds at decode time; instances are not
// mutated after creation.
type BoundingBox struct {
	X1, Y1     float32
	X2, Y2     float32
	Confidence float32
	ClassID    int
	Label      string
}

// Area returns the box area in square pixels.
func (b BoundingBox) Area() float32 {
	return (b.X2 - b.X1) * (b.Y2 - b.Y1)
}

// Mask is a binary segmentation mask covering the original frame, one byte
// per pixel, 0 or 255, row-major.
type Mask struct {
	Width  int
	Height int
	Pix    []uint8
}

func NewMask(width, height int) *Mask {
	return &Mask{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height),
	}
}

// Gray wraps the mask buffer as an image without copying it.
func (m *Mask) Gray() *image.Gray {
	return &image.Gray{
		Pix:    m.Pix,
		Stride: m.Width,
		Rect:   image.Rect(0, 0, m.Width, m.Height),
	}
}

// Timings holds per-stage wall-clock durations for a single frame.
type Timings struct {
	Preprocess time.Duration
	Inference  time.Duration
	Decode     time.Duration
	Suppress   time.Duration
	Total      time.Duration
}
