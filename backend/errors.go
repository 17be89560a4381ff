package backend

import "errors"

var (
	// ErrBackendUnavailable marks a candidate whose platform or device
	// could not be resolved. Initialization recovers by moving to the
	// next candidate in the chain.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrSessionConstruction marks a model load or compile failure on a
	// specific backend. Also recovered by falling through the chain.
	ErrSessionConstruction = errors.New("session construction failed")

	// ErrAllBackendsFailed is returned when the whole candidate chain is
	// exhausted. It wraps the last underlying failure.
	ErrAllBackendsFailed = errors.New("all backends failed")

	// ErrNotInitialized is returned for inference calls issued before a
	// ready session exists, or after disposal.
	ErrNotInitialized = errors.New("backend not initialized")

	// ErrInferenceRun marks a run failure that survived the single
	// default-options retry on GPU paths.
	ErrInferenceRun = errors.New("inference run failed")
)
