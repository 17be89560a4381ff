package server

import (
	"encoding/json"
	"image/png"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/streamshield/person-detection-service/backend"
	"github.com/streamshield/person-detection-service/config"
	"github.com/streamshield/person-detection-service/models"
	"github.com/streamshield/person-detection-service/pipeline"
)

// Server is the HTTP surface over the inference pipelines: detection via a
// pipeline pool, segmentation via a single mutex-guarded instance (the
// segmentation path never sees enough traffic to justify a pool).
type Server struct {
	cfg  config.ServerConfig
	pool *Pool
	seg  *pipeline.Segmenter
	log  *zap.Logger

	segMu sync.Mutex
}

func New(cfg config.ServerConfig, pool *Pool, seg *pipeline.Segmenter, log *zap.Logger) *Server {
	return &Server{cfg: cfg, pool: pool, seg: seg, log: log}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/detect", s.handleDetect).Methods("POST")
	r.HandleFunc("/v1/segment", s.handleSegment).Methods("POST")
	r.HandleFunc("/v1/status", s.handleStatus).Methods("GET")
	r.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
	return r
}

func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Handler:      s.Router(),
		Addr:         s.cfg.Address,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSec) * time.Second,
	}
	s.log.Info("listening", zap.String("addr", srv.Addr))
	return srv.ListenAndServe()
}

type detectionJSON struct {
	Label      string  `json:"label"`
	ClassID    int     `json:"class_id"`
	Confidence float32 `json:"confidence"`
	X1         float32 `json:"x1"`
	Y1         float32 `json:"y1"`
	X2         float32 `json:"x2"`
	Y2         float32 `json:"y2"`
}

type detectResponse struct {
	Detections  []detectionJSON `json:"detections"`
	Backend     string          `json:"backend"`
	InferenceMs float64         `json:"inference_ms"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	frame, err := readFrame(r)
	if err != nil {
		sendError(w, "invalid_image", err.Error(), http.StatusBadRequest)
		return
	}

	det, err := s.pool.Acquire(r.Context())
	if err != nil {
		sendError(w, "session_error", err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer s.pool.Release(det)

	boxes, err := det.Detect(r.Context(), frame)
	if err != nil {
		sendError(w, "processing_error", err.Error(), http.StatusInternalServerError)
		return
	}

	resp := detectResponse{
		Detections:  make([]detectionJSON, 0, len(boxes)),
		Backend:     det.ActiveProvider(),
		InferenceMs: float64(det.LastTimings().Inference) / float64(time.Millisecond),
	}
	for _, b := range boxes {
		resp.Detections = append(resp.Detections, detectionJSON{
			Label:      b.Label,
			ClassID:    b.ClassID,
			Confidence: b.Confidence,
			X1:         b.X1,
			Y1:         b.Y1,
			X2:         b.X2,
			Y2:         b.Y2,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	if s.seg == nil {
		sendError(w, "not_configured", "segmentation model not configured", http.StatusNotFound)
		return
	}

	frame, err := readFrame(r)
	if err != nil {
		sendError(w, "invalid_image", err.Error(), http.StatusBadRequest)
		return
	}

	var mask *models.Mask
	s.segMu.Lock()
	mask, err = s.seg.Segment(r.Context(), frame)
	s.segMu.Unlock()
	if err != nil {
		sendError(w, "processing_error", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, mask.Gray()); err != nil {
		s.log.Warn("encode mask response", zap.Error(err))
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := map[string]interface{}{
		"backend":          s.pool.Provider(),
		"cpu_capabilities": backend.CPUCapabilities(),
	}
	if s.seg != nil {
		status["segmentation_backend"] = s.seg.ActiveProvider()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.pool.Metrics())
}

func sendError(w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Code: code, Message: message})
}
