package backend

import (
	"fmt"
	"runtime"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
	"golang.org/x/sys/cpu"
)

// RuntimeOptions configures the onnxruntime environment. It is passed once
// at process start instead of being tuned through ambient process state.
type RuntimeOptions struct {
	// SharedLibraryPath points at the onnxruntime shared library. Empty
	// leaves the loader default in place.
	SharedLibraryPath string
	// IntraOpThreads and InterOpThreads bound graph parallelism per
	// session. Zero means one thread per CPU.
	IntraOpThreads int
	InterOpThreads int
	// Telemetry leaves the runtime's telemetry events enabled.
	Telemetry bool
}

func (o RuntimeOptions) withDefaults() RuntimeOptions {
	if o.IntraOpThreads == 0 {
		o.IntraOpThreads = runtime.NumCPU()
	}
	if o.InterOpThreads == 0 {
		o.InterOpThreads = runtime.NumCPU()
	}
	return o
}

// activeRuntime holds the options InitRuntime was called with; the session
// factory reads its thread counts.
var activeRuntime RuntimeOptions

// InitRuntime loads the onnxruntime shared library and initializes the
// environment. Must be called before any Manager is initialized; calling it
// again on an initialized environment is a no-op.
func InitRuntime(opts RuntimeOptions, log *zap.Logger) error {
	activeRuntime = opts
	if ort.IsInitialized() {
		return nil
	}
	if opts.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(opts.SharedLibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime environment: %w", err)
	}
	if !opts.Telemetry {
		if err := ort.DisableTelemetry(); err != nil {
			log.Warn("disable onnxruntime telemetry", zap.Error(err))
		}
	}
	log.Info("onnxruntime environment ready",
		zap.String("library", opts.SharedLibraryPath),
		zap.String("cpu_capabilities", CPUCapabilities()))
	return nil
}

// ShutdownRuntime destroys the onnxruntime environment. Safe to call when
// the environment was never initialized.
func ShutdownRuntime() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// CPUCapabilities reports the SIMD feature set of the host, for startup
// logs and the status endpoint.
func CPUCapabilities() string {
	caps := make([]string, 0, 4)
	if cpu.X86.HasSSE41 {
		caps = append(caps, "sse4.1")
	}
	if cpu.X86.HasAVX2 {
		caps = append(caps, "avx2")
	}
	if cpu.X86.HasAVX512 {
		caps = append(caps, "avx512")
	}
	if cpu.ARM64.HasASIMD {
		caps = append(caps, "asimd")
	}
	if len(caps) == 0 {
		return "baseline"
	}
	return strings.Join(caps, ",")
}
