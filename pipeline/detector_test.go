package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamshield/person-detection-service/backend"
	"github.com/streamshield/person-detection-service/pipeline"
)

const (
	detModelSize = 640
	detBoxes     = 100
	detVecLen    = 29
	detInputLen  = 3 * detModelSize * detModelSize
)

func detectorModel() backend.ModelSpec {
	return backend.ModelSpec{
		Path:        "persondet.onnx",
		InputShape:  []int64{1, 3, detModelSize, detModelSize},
		OutputShape: []int64{1, detVecLen, detBoxes},
	}
}

func newTestDetector(sess *fakeSession, kind backend.Kind) *pipeline.Detector {
	return pipeline.NewDetector(pipeline.DetectorConfig{Model: detectorModel()},
		testLogger(), sessionOptions(sess, kind)...)
}

// setBox writes one candidate into an attribute-major detection tensor.
func setBox(out []float32, box int, cx, cy, w, h float32, classID int, score float32) {
	out[0*detBoxes+box] = cx
	out[1*detBoxes+box] = cy
	out[2*detBoxes+box] = w
	out[3*detBoxes+box] = h
	out[(4+classID)*detBoxes+box] = score
}

func TestDetectBeforeInitialize(t *testing.T) {
	sess := newFakeSession(detInputLen, []int64{1, detVecLen, detBoxes})
	det := newTestDetector(sess, backend.KindCPU)

	_, err := det.Detect(context.Background(), testFrame(640, 480))
	assert.ErrorIs(t, err, backend.ErrNotInitialized)
	assert.Zero(t, sess.runs)
}

func TestDetectAfterDispose(t *testing.T) {
	sess := newFakeSession(detInputLen, []int64{1, detVecLen, detBoxes})
	det := newTestDetector(sess, backend.KindCPU)

	require.NoError(t, det.Initialize(context.Background(), -1))
	det.Dispose()

	_, err := det.Detect(context.Background(), testFrame(640, 480))
	assert.ErrorIs(t, err, backend.ErrNotInitialized)
}

func TestDetectDecodesFrameCoordinates(t *testing.T) {
	sess := newFakeSession(detInputLen, []int64{1, detVecLen, detBoxes})
	// 640x480 frame letterboxed into 640x640: scale 1, 80px pad above.
	setBox(sess.output, 7, 320, 200, 100, 120, 0, 0.9)

	det := newTestDetector(sess, backend.KindCPU)
	require.NoError(t, det.Initialize(context.Background(), -1))

	boxes, err := det.Detect(context.Background(), testFrame(640, 480))
	require.NoError(t, err)
	require.Len(t, boxes, 1)

	b := boxes[0]
	assert.InDelta(t, 270, b.X1, 0.01)
	assert.InDelta(t, 370, b.X2, 0.01)
	assert.InDelta(t, 60, b.Y1, 0.01)
	assert.InDelta(t, 180, b.Y2, 0.01)
	assert.Equal(t, "Body", b.Label)
	assert.InDelta(t, 0.9, float64(b.Confidence), 1e-6)

	tm := det.LastTimings()
	assert.Greater(t, tm.Total, tm.Inference)
}

func TestDetectCPURunsOnce(t *testing.T) {
	sess := newFakeSession(detInputLen, []int64{1, detVecLen, detBoxes})
	det := newTestDetector(sess, backend.KindCPU)
	require.NoError(t, det.Initialize(context.Background(), -1))

	_, err := det.Detect(context.Background(), testFrame(640, 480))
	require.NoError(t, err)

	require.Equal(t, 1, sess.runs)
	assert.False(t, sess.runOpts[0].QuietLogs)
}

func TestDetectGPURetriesWithDefaultOptions(t *testing.T) {
	sess := newFakeSession(detInputLen, []int64{1, detVecLen, detBoxes})
	sess.runErrs = []error{errors.New("transient provider failure")}
	setBox(sess.output, 0, 320, 320, 50, 50, 1, 0.8)

	det := newTestDetector(sess, backend.KindCUDA)
	require.NoError(t, det.Initialize(context.Background(), -1))

	boxes, err := det.Detect(context.Background(), testFrame(640, 480))
	require.NoError(t, err)
	assert.Len(t, boxes, 1)

	require.Equal(t, 2, sess.runs)
	assert.True(t, sess.runOpts[0].QuietLogs, "first gpu attempt runs quiet")
	assert.False(t, sess.runOpts[1].QuietLogs, "retry falls back to default options")
}

func TestDetectGPUFailsAfterRetry(t *testing.T) {
	sess := newFakeSession(detInputLen, []int64{1, detVecLen, detBoxes})
	sess.runErrs = []error{errors.New("boom"), errors.New("boom again")}

	det := newTestDetector(sess, backend.KindCUDA)
	require.NoError(t, det.Initialize(context.Background(), -1))

	_, err := det.Detect(context.Background(), testFrame(640, 480))
	assert.ErrorIs(t, err, backend.ErrInferenceRun)
	assert.Equal(t, 2, sess.runs)
}

func TestDetectCPUFailureDoesNotRetry(t *testing.T) {
	sess := newFakeSession(detInputLen, []int64{1, detVecLen, detBoxes})
	sess.runErrs = []error{errors.New("boom")}

	det := newTestDetector(sess, backend.KindCPU)
	require.NoError(t, det.Initialize(context.Background(), -1))

	_, err := det.Detect(context.Background(), testFrame(640, 480))
	assert.ErrorIs(t, err, backend.ErrInferenceRun)
	assert.Equal(t, 1, sess.runs)
}

func TestDetectUnrecognizedShapeDropsFrame(t *testing.T) {
	sess := newFakeSession(detInputLen, []int64{detVecLen, detBoxes})

	det := newTestDetector(sess, backend.KindCPU)
	require.NoError(t, det.Initialize(context.Background(), -1))

	boxes, err := det.Detect(context.Background(), testFrame(640, 480))
	require.NoError(t, err)
	assert.NotNil(t, boxes)
	assert.Empty(t, boxes)
}

func TestDetectCancelledContext(t *testing.T) {
	sess := newFakeSession(detInputLen, []int64{1, detVecLen, detBoxes})
	det := newTestDetector(sess, backend.KindCPU)
	require.NoError(t, det.Initialize(context.Background(), -1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := det.Detect(ctx, testFrame(640, 480))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sess.runs)
}

func TestDetectorActiveProvider(t *testing.T) {
	sess := newFakeSession(detInputLen, []int64{1, detVecLen, detBoxes})
	det := newTestDetector(sess, backend.KindCUDA)

	assert.Empty(t, det.ActiveProvider())
	require.NoError(t, det.Initialize(context.Background(), -1))
	assert.Equal(t, "cuda", det.ActiveProvider())
}
