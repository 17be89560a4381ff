package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/streamshield/person-detection-service/backend"
)

// runWithRetry executes a single inference. GPU paths attempt quietly
// first: the failure is logged at debug only and retried once with default
// run options before the error propagates. This degrades the single frame
// gracefully without triggering a full backend re-selection. CPU runs get
// no retry.
func runWithRetry(sess backend.Session, kind backend.Kind, log *zap.Logger) error {
	if !kind.IsGPU() {
		if err := sess.Run(backend.RunOptions{}); err != nil {
			return fmt.Errorf("%w: %v", backend.ErrInferenceRun, err)
		}
		return nil
	}

	err := sess.Run(backend.RunOptions{QuietLogs: true})
	if err == nil {
		return nil
	}
	log.Debug("inference failed on gpu path, retrying with default run options",
		zap.String("backend", string(kind)),
		zap.Error(err))
	if err := sess.Run(backend.RunOptions{}); err != nil {
		return fmt.Errorf("%w: %v", backend.ErrInferenceRun, err)
	}
	return nil
}
