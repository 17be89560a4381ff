package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/streamshield/person-detection-service/backend"
	"github.com/streamshield/person-detection-service/codec"
	"github.com/streamshield/person-detection-service/labels"
	"github.com/streamshield/person-detection-service/models"
	"github.com/streamshield/person-detection-service/nms"
)

const (
	DefaultConfidenceThreshold = 0.4
	DefaultIoUThreshold        = 0.45
)

// DetectorConfig is the caller-supplied configuration for a detection
// pipeline. It is read-only for the pipeline's lifetime.
type DetectorConfig struct {
	Model               backend.ModelSpec
	ConfidenceThreshold float32
	IoUThreshold        float32
	PreferredBackend    backend.Kind
	// Normalization applies a per-channel mean/std profile after the
	// [0,1] scaling; nil leaves the plain scaling.
	Normalization *codec.Normalization
}

// Detector runs per-frame object detection: preprocess, inference, decode,
// suppress. One Detector owns exactly one backend session; the caller must
// not issue overlapping Detect calls on the same instance.
type Detector struct {
	cfg   DetectorConfig
	table *labels.Table
	mgr   *backend.Manager
	log   *zap.Logger

	modelW, modelH int
	lastTimings    models.Timings
}

func NewDetector(cfg DetectorConfig, log *zap.Logger, opts ...backend.Option) *Detector {
	if cfg.ConfidenceThreshold == 0 {
		cfg.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if cfg.IoUThreshold == 0 {
		cfg.IoUThreshold = DefaultIoUThreshold
	}
	if cfg.PreferredBackend != "" {
		opts = append(opts, backend.WithPreferredBackend(cfg.PreferredBackend))
	}
	return &Detector{
		cfg:    cfg,
		table:  labels.Default(),
		mgr:    backend.NewManager(cfg.Model, log, opts...),
		log:    log,
		modelH: int(cfg.Model.InputShape[2]),
		modelW: int(cfg.Model.InputShape[3]),
	}
}

// Initialize selects a backend and constructs the session. deviceIndex
// picks the GPU adapter for backends that take one; negative means default.
func (d *Detector) Initialize(ctx context.Context, deviceIndex int) error {
	_, err := d.mgr.Initialize(ctx, deviceIndex)
	return err
}

// Dispose releases the session. Safe to call repeatedly.
func (d *Detector) Dispose() {
	d.mgr.Dispose()
}

// ActiveProvider names the backend serving this pipeline, or "" before
// initialization.
func (d *Detector) ActiveProvider() string {
	return string(d.mgr.ActiveProvider())
}

// Detect runs one frame through the pipeline and returns the surviving
// boxes in original-frame coordinates. Calling before Initialize succeeds
// returns ErrNotInitialized without touching any tensor. An unrecognized
// output tensor shape drops the frame: empty result, logged, nil error.
func (d *Detector) Detect(ctx context.Context, frame image.Image) ([]models.BoundingBox, error) {
	sess, err := d.mgr.Session()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	total := time.Now()
	var t models.Timings
	b := frame.Bounds()

	start := time.Now()
	lb, err := codec.Preprocess(frame, d.modelW, d.modelH, d.cfg.Normalization, sess.InputData())
	if err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}
	t.Preprocess = time.Since(start)

	start = time.Now()
	if err := runWithRetry(sess, d.mgr.ActiveProvider(), d.log); err != nil {
		return nil, err
	}
	t.Inference = time.Since(start)
	d.log.Debug("inference complete",
		zap.Duration("inference", t.Inference),
		zap.String("backend", d.ActiveProvider()))

	start = time.Now()
	boxes, err := codec.DecodeDetections(
		sess.OutputData(), sess.OutputShape(), lb,
		b.Dx(), b.Dy(), d.cfg.ConfidenceThreshold, d.table)
	if err != nil {
		if errors.Is(err, codec.ErrUnexpectedShape) {
			d.log.Warn("unrecognized output tensor shape, dropping frame", zap.Error(err))
			return []models.BoundingBox{}, nil
		}
		return nil, fmt.Errorf("decode: %w", err)
	}
	t.Decode = time.Since(start)

	start = time.Now()
	kept := nms.Suppress(boxes, d.cfg.IoUThreshold)
	t.Suppress = time.Since(start)

	t.Total = time.Since(total)
	d.lastTimings = t
	return kept, nil
}

// LastTimings returns the stage timings of the most recent successful
// Detect call.
func (d *Detector) LastTimings() models.Timings {
	return d.lastTimings
}
