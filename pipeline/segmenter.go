package pipeline

import (
	"context"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/streamshield/person-detection-service/backend"
	"github.com/streamshield/person-detection-service/codec"
	"github.com/streamshield/person-detection-service/models"
)

const DefaultMaskThreshold = 0.5

// SegmenterConfig is the caller-supplied configuration for the person
// segmentation pipeline.
type SegmenterConfig struct {
	Model backend.ModelSpec
	// Threshold is the activation cutoff: model pixels above it become
	// 255 in the mask, the rest stay 0.
	Threshold        float32
	PreferredBackend backend.Kind
	Normalization    *codec.Normalization
}

// Segmenter produces a binary person mask per frame. Same session and
// retry discipline as Detector; one Segmenter owns exactly one session.
type Segmenter struct {
	cfg SegmenterConfig
	mgr *backend.Manager
	log *zap.Logger

	modelW, modelH int
	lastTimings    models.Timings
}

func NewSegmenter(cfg SegmenterConfig, log *zap.Logger, opts ...backend.Option) *Segmenter {
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultMaskThreshold
	}
	if cfg.PreferredBackend != "" {
		opts = append(opts, backend.WithPreferredBackend(cfg.PreferredBackend))
	}
	return &Segmenter{
		cfg:    cfg,
		mgr:    backend.NewManager(cfg.Model, log, opts...),
		log:    log,
		modelH: int(cfg.Model.InputShape[2]),
		modelW: int(cfg.Model.InputShape[3]),
	}
}

func (s *Segmenter) Initialize(ctx context.Context, deviceIndex int) error {
	_, err := s.mgr.Initialize(ctx, deviceIndex)
	return err
}

func (s *Segmenter) Dispose() {
	s.mgr.Dispose()
}

func (s *Segmenter) ActiveProvider() string {
	return string(s.mgr.ActiveProvider())
}

// Segment runs one frame through the segmentation model and returns a
// binary mask sized to the original frame. The raw per-pixel activation is
// thresholded, the vertical letterbox padding is cropped out, and mask
// pixels are mapped back to original-frame coordinates (nearest neighbor
// when the frame was scaled). An unrecognized output shape yields an empty
// mask, logged, nil error.
func (s *Segmenter) Segment(ctx context.Context, frame image.Image) (*models.Mask, error) {
	sess, err := s.mgr.Session()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	total := time.Now()
	var t models.Timings
	b := frame.Bounds()
	mask := models.NewMask(b.Dx(), b.Dy())

	start := time.Now()
	lb, err := codec.Preprocess(frame, s.modelW, s.modelH, s.cfg.Normalization, sess.InputData())
	if err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}
	t.Preprocess = time.Since(start)

	start = time.Now()
	if err := runWithRetry(sess, s.mgr.ActiveProvider(), s.log); err != nil {
		return nil, err
	}
	t.Inference = time.Since(start)
	s.log.Debug("inference complete",
		zap.Duration("inference", t.Inference),
		zap.String("backend", s.ActiveProvider()))

	start = time.Now()
	out := sess.OutputData()
	shape := sess.OutputShape()

	// Accept [1,1,H,W] or [1,H,W] activation maps.
	var h, w int
	switch len(shape) {
	case 4:
		h, w = int(shape[2]), int(shape[3])
	case 3:
		h, w = int(shape[1]), int(shape[2])
	default:
		s.log.Warn("unrecognized mask tensor shape, dropping frame",
			zap.Int64s("shape", shape))
		return mask, nil
	}
	if h*w > len(out) {
		s.log.Warn("mask tensor smaller than its declared shape",
			zap.Int64s("shape", shape), zap.Int("values", len(out)))
		return mask, nil
	}

	for y := 0; y < mask.Height; y++ {
		my := int(float32(y)*lb.Scale) + lb.PadTop
		if my >= h {
			my = h - 1
		}
		row := my * w
		outRow := y * mask.Width
		for x := 0; x < mask.Width; x++ {
			mx := int(float32(x) * lb.Scale)
			if mx >= w {
				mx = w - 1
			}
			if out[row+mx] > s.cfg.Threshold {
				mask.Pix[outRow+x] = 255
			}
		}
	}
	t.Decode = time.Since(start)

	t.Total = time.Since(total)
	s.lastTimings = t
	return mask, nil
}

// LastTimings returns the stage timings of the most recent successful
// Segment call.
func (s *Segmenter) LastTimings() models.Timings {
	return s.lastTimings
}
