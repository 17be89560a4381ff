package backend

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// ortSession wraps an onnxruntime session with pre-allocated input and
// output tensors, so per-frame runs allocate nothing.
type ortSession struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// newORTSession is the default Factory. It builds session options for the
// candidate's execution provider and constructs the session; on any partial
// failure the tensors created so far are destroyed before returning.
func newORTSession(spec ModelSpec, cand Candidate, dev Device) (Session, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer options.Destroy()

	rt := activeRuntime.withDefaults()
	if err := options.SetIntraOpNumThreads(rt.IntraOpThreads); err != nil {
		return nil, fmt.Errorf("set intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(rt.InterOpThreads); err != nil {
		return nil, fmt.Errorf("set inter-op threads: %w", err)
	}
	if cand.Configure != nil {
		if err := cand.Configure(options, dev); err != nil {
			return nil, fmt.Errorf("configure %s provider: %w", cand.Kind, err)
		}
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(spec.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(spec.OutputShape...))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	inputName := spec.InputName
	if inputName == "" {
		inputName = "images"
	}
	outputName := spec.OutputName
	if outputName == "" {
		outputName = "output0"
	}

	session, err := ort.NewAdvancedSession(
		spec.Path,
		[]string{inputName},
		[]string{outputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &ortSession{session: session, input: input, output: output}, nil
}

// Run executes the session. The runtime offers no per-run tuning, so the
// options only steer how the caller reports a failed attempt.
func (s *ortSession) Run(RunOptions) error {
	return s.session.Run()
}

func (s *ortSession) InputData() []float32 {
	return s.input.GetData()
}

func (s *ortSession) OutputData() []float32 {
	return s.output.GetData()
}

func (s *ortSession) OutputShape() []int64 {
	return []int64(s.output.GetShape())
}

func (s *ortSession) Release() error {
	var firstErr error
	if s.session != nil {
		if err := s.session.Destroy(); err != nil {
			firstErr = err
		}
		s.session = nil
	}
	if s.input != nil {
		if err := s.input.Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.input = nil
	}
	if s.output != nil {
		if err := s.output.Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.output = nil
	}
	return firstErr
}
