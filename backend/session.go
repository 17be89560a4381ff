package backend

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ModelSpec describes the model file and tensor binding a session is
// constructed from.
type ModelSpec struct {
	Path        string
	InputShape  []int64
	OutputShape []int64
	// InputName and OutputName default to "images" / "output0".
	InputName  string
	OutputName string
}

// RunOptions tunes a single inference run.
type RunOptions struct {
	// QuietLogs marks the optimistic first attempt on GPU paths: a
	// failure under quiet options is logged at debug and retried instead
	// of surfacing.
	QuietLogs bool
}

// Session is a loaded model bound to one execution provider. InputData and
// OutputData expose the pre-allocated tensor buffers; a Run reads the
// former and fills the latter.
type Session interface {
	Run(opts RunOptions) error
	InputData() []float32
	OutputData() []float32
	OutputShape() []int64
	Release() error
}

// Factory constructs a Session for one candidate backend.
type Factory func(spec ModelSpec, cand Candidate, dev Device) (Session, error)

// State of the session manager.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateDisposed:
		return "disposed"
	}
	return "unknown"
}

// Handle owns a live session. Release consumes the handle: the first call
// releases the underlying session, every later call observes an already
// consumed handle and no-ops.
type Handle struct {
	sess     Session
	released atomic.Bool
}

func NewHandle(sess Session) *Handle {
	return &Handle{sess: sess}
}

func (h *Handle) Session() Session {
	return h.sess
}

func (h *Handle) Release() error {
	if h == nil || !h.released.CompareAndSwap(false, true) {
		return nil
	}
	return h.sess.Release()
}

// StatusFunc receives human-readable phase strings during initialization,
// for UI display only.
type StatusFunc func(string)

// Option configures a Manager.
type Option func(*Manager)

// WithEnumerator injects the device enumeration collaborator.
func WithEnumerator(e DeviceEnumerator) Option {
	return func(m *Manager) { m.enum = e }
}

// WithFactory overrides the session factory.
func WithFactory(f Factory) Option {
	return func(m *Manager) { m.factory = f }
}

// WithStatusSink registers the phase-string callback.
func WithStatusSink(fn StatusFunc) Option {
	return func(m *Manager) { m.status = fn }
}

// WithPreferredBackend moves the named backend to the front of the default
// candidate chain.
func WithPreferredBackend(k Kind) Option {
	return func(m *Manager) { m.preferred = k }
}

// WithCandidates replaces the candidate chain entirely.
func WithCandidates(c []Candidate) Option {
	return func(m *Manager) { m.candidates = c }
}

// Manager owns the inference session lifecycle: capability-probed backend
// selection, fallback, and disposal. At most one live session exists per
// Manager at any time.
type Manager struct {
	spec       ModelSpec
	preferred  Kind
	candidates []Candidate
	enum       DeviceEnumerator
	factory    Factory
	status     StatusFunc
	log        *zap.Logger

	mu     sync.Mutex
	state  State
	handle *Handle
	active Kind
}

func NewManager(spec ModelSpec, log *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		spec:    spec,
		enum:    defaultEnumerator{},
		factory: newORTSession,
		status:  func(string) {},
		log:     log,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Initialize walks the candidate chain until a session is constructed and
// returns the backend that succeeded. deviceIndex selects a concrete
// adapter for backends that need one; pass a negative value for the default
// adapter. When every candidate fails, the last error is surfaced wrapped
// in ErrAllBackendsFailed and no session is left allocated.
//
// Initializing an already-ready Manager returns the active backend
// unchanged; initializing after Dispose constructs a fresh session.
func (m *Manager) Initialize(ctx context.Context, deviceIndex int) (Kind, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateReady {
		return m.active, nil
	}
	m.state = StateInitializing
	m.status("Loading model...")

	chain := m.candidates
	if chain == nil {
		chain = Candidates(m.preferred)
	}

	var lastErr error
	for _, cand := range chain {
		if err := ctx.Err(); err != nil {
			m.state = StateFailed
			return "", err
		}
		if cand.Available != nil && !cand.Available() {
			lastErr = fmt.Errorf("%s: %w: not supported on this platform", cand.Kind, ErrBackendUnavailable)
			continue
		}

		var dev Device
		if cand.NeedsDevice {
			d, ok := m.enum.Resolve(deviceIndex)
			if !ok {
				lastErr = fmt.Errorf("%s: %w: no adapter for index %d", cand.Kind, ErrBackendUnavailable, deviceIndex)
				m.log.Warn("no adapter for backend",
					zap.String("backend", string(cand.Kind)),
					zap.Int("device_index", deviceIndex))
				continue
			}
			dev = d
		}

		m.status(fmt.Sprintf("Trying %s...", cand.Kind))
		sess, err := m.factory(m.spec, cand, dev)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w: %v", cand.Kind, ErrSessionConstruction, err)
			m.log.Warn("session construction failed",
				zap.String("backend", string(cand.Kind)),
				zap.Error(err))
			continue
		}

		m.handle = &Handle{sess: sess}
		m.active = cand.Kind
		m.state = StateReady
		m.status(fmt.Sprintf("Using %s", cand.Kind))
		m.log.Info("backend ready",
			zap.String("backend", string(cand.Kind)),
			zap.String("model", m.spec.Path))
		return cand.Kind, nil
	}

	m.state = StateFailed
	m.handle = nil
	m.active = ""
	return "", fmt.Errorf("%w: %v", ErrAllBackendsFailed, lastErr)
}

// Dispose releases the live session. Idempotent: disposing twice, or before
// any initialization, is a no-op. The handle reference is cleared before
// the release runs, so a repeated call observes nothing to release instead
// of double-freeing. Release failures are logged, never returned, so they
// cannot block teardown or a later re-initialization.
func (m *Manager) Dispose() {
	m.mu.Lock()
	h := m.handle
	m.handle = nil
	m.active = ""
	m.state = StateDisposed
	m.mu.Unlock()

	if err := h.Release(); err != nil {
		m.log.Warn("session release failed", zap.Error(err))
	}
}

// Session returns the live session, or ErrNotInitialized when no ready
// session exists.
func (m *Manager) Session() (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateReady || m.handle == nil {
		return nil, ErrNotInitialized
	}
	return m.handle.sess, nil
}

// ActiveProvider returns the backend of the live session, or the empty
// string when there is none.
func (m *Manager) ActiveProvider() Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
