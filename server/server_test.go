package server_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/streamshield/person-detection-service/backend"
	"github.com/streamshield/person-detection-service/config"
	"github.com/streamshield/person-detection-service/pipeline"
	"github.com/streamshield/person-detection-service/server"
)

func pngFrame(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

// newTestServer stands up a server over one stub-backed detector and returns
// the stub so tests can stage tensor output.
func newTestServer(t *testing.T, seg *pipeline.Segmenter) (*server.Server, *stubSession) {
	t.Helper()

	sess := newStubSession()
	pool, err := server.NewPool(1, func() (*pipeline.Detector, error) {
		det := pipeline.NewDetector(pipeline.DetectorConfig{
			Model: backend.ModelSpec{
				Path:        "persondet.onnx",
				InputShape:  []int64{1, 3, 640, 640},
				OutputShape: []int64{1, 29, 100},
			},
		}, zap.NewNop(),
			backend.WithCandidates([]backend.Candidate{
				{Kind: backend.KindCPU, Available: func() bool { return true }},
			}),
			backend.WithFactory(func(backend.ModelSpec, backend.Candidate, backend.Device) (backend.Session, error) {
				return sess, nil
			}))
		if err := det.Initialize(context.Background(), -1); err != nil {
			return nil, err
		}
		return det, nil
	})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return server.New(config.ServerConfig{}, pool, seg, zap.NewNop()), sess
}

func TestHandleDetectRawBody(t *testing.T) {
	srv, sess := newTestServer(t, nil)
	// One body at model center, mapped through the 80px vertical pad of a
	// 640x480 frame.
	sess.output[0*100+3] = 320  // cx
	sess.output[1*100+3] = 200  // cy
	sess.output[2*100+3] = 100  // w
	sess.output[3*100+3] = 120  // h
	sess.output[4*100+3] = 0.92 // class 0 score

	req := httptest.NewRequest(http.MethodPost, "/v1/detect", bytes.NewReader(pngFrame(t, 640, 480)))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp struct {
		Detections []struct {
			Label      string  `json:"label"`
			Confidence float32 `json:"confidence"`
			Y1         float32 `json:"y1"`
		} `json:"detections"`
		Backend string `json:"backend"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cpu", resp.Backend)
	require.Len(t, resp.Detections, 1)
	assert.Equal(t, "Body", resp.Detections[0].Label)
	assert.InDelta(t, 0.92, float64(resp.Detections[0].Confidence), 1e-5)
	assert.InDelta(t, 60, float64(resp.Detections[0].Y1), 0.01)
}

func TestHandleDetectJSONBody(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	body, err := json.Marshal(map[string]string{
		"image": base64.StdEncoding.EncodeToString(pngFrame(t, 640, 480)),
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/detect", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Detections []json.RawMessage `json:"detections"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Detections)
}

func TestHandleDetectRejectsGarbage(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/detect", bytes.NewReader([]byte("not an image")))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_image", resp.Code)
}

func TestHandleSegmentNotConfigured(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/segment", bytes.NewReader(pngFrame(t, 640, 480)))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSegmentReturnsPNGMask(t *testing.T) {
	segSess := &stubSession{
		input:  make([]float32, 3*640*640),
		output: make([]float32, 640*640),
		shape:  []int64{1, 1, 640, 640},
	}
	segSess.output[(100+80)*640+50] = 0.9

	seg := pipeline.NewSegmenter(pipeline.SegmenterConfig{
		Model: backend.ModelSpec{
			Path:        "personseg.onnx",
			InputShape:  []int64{1, 3, 640, 640},
			OutputShape: []int64{1, 1, 640, 640},
		},
	}, zap.NewNop(),
		backend.WithCandidates([]backend.Candidate{
			{Kind: backend.KindCPU, Available: func() bool { return true }},
		}),
		backend.WithFactory(func(backend.ModelSpec, backend.Candidate, backend.Device) (backend.Session, error) {
			return segSess, nil
		}))
	require.NoError(t, seg.Initialize(context.Background(), -1))
	defer seg.Dispose()

	srv, _ := newTestServer(t, seg)

	req := httptest.NewRequest(http.MethodPost, "/v1/segment", bytes.NewReader(pngFrame(t, 640, 480)))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	require.Equal(t, 640, img.Bounds().Dx())
	require.Equal(t, 480, img.Bounds().Dy())

	r, _, _, _ := img.At(50, 100).RGBA()
	assert.EqualValues(t, 0xffff, r)
	r, _, _, _ = img.At(51, 100).RGBA()
	assert.EqualValues(t, 0, r)
}

func TestHandleStatus(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "cpu", status["backend"])
	assert.NotEmpty(t, status["cpu_capabilities"])
	assert.NotContains(t, status, "segmentation_backend")
}

func TestHandleMetrics(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var m struct {
		Size int `json:"pool_size"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, 1, m.Size)
}

func TestHandleDetectMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/detect", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
