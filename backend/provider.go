package backend

import (
	"runtime"
	"strconv"

	ort "github.com/yalue/onnxruntime_go"
)

// Kind identifies an execution provider in the fallback chain.
type Kind string

const (
	KindDirectML Kind = "directml"
	KindCUDA     Kind = "cuda"
	KindCoreML   Kind = "coreml"
	KindCPU      Kind = "cpu"
)

// IsGPU reports whether the provider runs on a hardware-accelerated path.
func (k Kind) IsGPU() bool {
	return k != KindCPU && k != ""
}

// Device is a concrete accelerator handle resolved by a DeviceEnumerator.
type Device struct {
	Index int
}

// DeviceEnumerator resolves an optional preference index to a concrete
// device, or reports that none is available. It stands in for the adapter
// enumeration collaborator; callers inject their own when they can actually
// enumerate hardware.
type DeviceEnumerator interface {
	Resolve(preferred int) (Device, bool)
}

// defaultEnumerator assumes the requested adapter exists; a negative
// preference selects adapter 0. Whether the adapter really works surfaces
// as a session construction failure, which the fallback chain absorbs.
type defaultEnumerator struct{}

func (defaultEnumerator) Resolve(preferred int) (Device, bool) {
	if preferred < 0 {
		preferred = 0
	}
	return Device{Index: preferred}, true
}

// Candidate is one entry of the fixed-priority backend table.
type Candidate struct {
	Kind Kind
	// NeedsDevice marks candidates that must resolve an adapter before
	// session construction.
	NeedsDevice bool
	// Available reports whether the provider can exist on this platform.
	Available func() bool
	// Configure appends the execution provider to the session options.
	Configure func(opts *ort.SessionOptions, dev Device) error
}

// Candidates returns the fallback chain in priority order: DirectML, CUDA,
// CoreML, CPU. A recognized preferred kind is moved to the front; unknown
// values leave the chain untouched.
func Candidates(preferred Kind) []Candidate {
	chain := []Candidate{
		{
			Kind:        KindDirectML,
			NeedsDevice: true,
			Available:   func() bool { return runtime.GOOS == "windows" },
			Configure: func(opts *ort.SessionOptions, dev Device) error {
				// DirectML requires the memory pattern optimization off.
				if err := opts.SetMemPattern(false); err != nil {
					return err
				}
				return opts.AppendExecutionProviderDirectML(dev.Index)
			},
		},
		{
			Kind:        KindCUDA,
			NeedsDevice: true,
			Available: func() bool {
				return runtime.GOOS == "linux" || runtime.GOOS == "windows"
			},
			Configure: func(opts *ort.SessionOptions, dev Device) error {
				cudaOpts, err := ort.NewCUDAProviderOptions()
				if err != nil {
					return err
				}
				defer cudaOpts.Destroy()
				err = cudaOpts.Update(map[string]string{
					"device_id": strconv.Itoa(dev.Index),
				})
				if err != nil {
					return err
				}
				return opts.AppendExecutionProviderCUDA(cudaOpts)
			},
		},
		{
			Kind:      KindCoreML,
			Available: func() bool { return runtime.GOOS == "darwin" },
			Configure: func(opts *ort.SessionOptions, _ Device) error {
				return opts.AppendExecutionProviderCoreML(0)
			},
		},
		{
			Kind:      KindCPU,
			Available: func() bool { return true },
			Configure: func(*ort.SessionOptions, Device) error { return nil },
		},
	}

	if preferred == "" {
		return chain
	}
	for i, c := range chain {
		if c.Kind != preferred {
			continue
		}
		if i == 0 {
			return chain
		}
		reordered := make([]Candidate, 0, len(chain))
		reordered = append(reordered, c)
		reordered = append(reordered, chain[:i]...)
		reordered = append(reordered, chain[i+1:]...)
		return reordered
	}
	return chain
}
