package pipeline_test

import (
	"image"

	"go.uber.org/zap"

	"github.com/streamshield/person-detection-service/backend"
)

// fakeSession satisfies backend.Session with pre-allocated buffers and a
// scripted error sequence for Run.
type fakeSession struct {
	input  []float32
	output []float32
	shape  []int64

	runErrs  []error
	runs     int
	runOpts  []backend.RunOptions
	releases int
}

func newFakeSession(inputLen int, shape []int64) *fakeSession {
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return &fakeSession{
		input:  make([]float32, inputLen),
		output: make([]float32, n),
		shape:  shape,
	}
}

func (f *fakeSession) Run(opts backend.RunOptions) error {
	f.runOpts = append(f.runOpts, opts)
	f.runs++
	if len(f.runErrs) > 0 {
		err := f.runErrs[0]
		f.runErrs = f.runErrs[1:]
		return err
	}
	return nil
}

func (f *fakeSession) InputData() []float32 { return f.input }

func (f *fakeSession) OutputData() []float32 { return f.output }

func (f *fakeSession) OutputShape() []int64 { return f.shape }

func (f *fakeSession) Release() error {
	f.releases++
	return nil
}

// sessionOptions wires a Manager to always construct the given fake on the
// given backend kind, without touching the runtime library.
func sessionOptions(sess *fakeSession, kind backend.Kind) []backend.Option {
	return []backend.Option{
		backend.WithCandidates([]backend.Candidate{
			{Kind: kind, Available: func() bool { return true }},
		}),
		backend.WithFactory(func(backend.ModelSpec, backend.Candidate, backend.Device) (backend.Session, error) {
			return sess, nil
		}),
	}
}

func testFrame(w, h int) image.Image {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func testLogger() *zap.Logger { return zap.NewNop() }
