package codec

import (
	"errors"
	"fmt"

	"github.com/streamshield/person-detection-service/labels"
	"github.com/streamshield/person-detection-service/models"
)

// ErrUnexpectedShape marks an output tensor whose rank or size does not
// match any known detection layout. The pipeline treats it as a dropped
// frame, not a fatal error.
var ErrUnexpectedShape = errors.New("unexpected output tensor shape")

// DecodeDetections converts a raw detection tensor into bounding boxes in
// original-frame coordinates. The tensor must be rank 3 with one axis
// holding the per-box vector (4 coords + class scores) and one axis holding
// the box count; whichever of the two non-batch axes is larger is taken as
// the box count, and the element layout branches accordingly.
//
// Boxes are kept only when the best class score strictly exceeds
// confThreshold and the class is not excluded by the table. Corner
// coordinates have the letterbox padding reversed, are rescaled to the
// original frame and clamped to its bounds. The result is unordered and
// pre-suppression.
func DecodeDetections(data []float32, shape []int64, lb Letterbox, origW, origH int, confThreshold float32, table *labels.Table) ([]models.BoundingBox, error) {
	if len(shape) != 3 {
		return nil, fmt.Errorf("%w: rank %d, want 3", ErrUnexpectedShape, len(shape))
	}
	d1, d2 := int(shape[1]), int(shape[2])

	// The box count is always the larger non-batch axis: models emit far
	// more candidate boxes than per-box attributes.
	var boxCount, vecLen int
	transposed := false
	if d2 > d1 {
		vecLen, boxCount = d1, d2
		transposed = true // attribute-major: [1, 4+classes, boxes]
	} else {
		boxCount, vecLen = d1, d2 // box-major: [1, boxes, 4+classes]
	}

	numClasses := vecLen - 4
	if numClasses < 1 {
		return nil, fmt.Errorf("%w: per-box vector of %d values", ErrUnexpectedShape, vecLen)
	}
	if len(data) < boxCount*vecLen {
		return nil, fmt.Errorf("%w: %d values for %dx%d tensor", ErrUnexpectedShape, len(data), d1, d2)
	}

	at := func(attr, box int) float32 {
		if transposed {
			return data[attr*boxCount+box]
		}
		return data[box*vecLen+attr]
	}

	padX := float32(lb.PadX())
	padY := float32(lb.PadTop)
	out := make([]models.BoundingBox, 0, 64)

	for i := 0; i < boxCount; i++ {
		// Argmax with strict > keeps the first index on exact ties.
		best := 0
		bestScore := at(4, i)
		for c := 1; c < numClasses; c++ {
			if s := at(4+c, i); s > bestScore {
				bestScore = s
				best = c
			}
		}
		if bestScore <= confThreshold || table.Excluded(best) {
			continue
		}

		cx, cy := at(0, i), at(1, i)
		w, h := at(2, i), at(3, i)
		x1 := (cx - w/2 - padX) / lb.Scale
		y1 := (cy - h/2 - padY) / lb.Scale
		x2 := (cx + w/2 - padX) / lb.Scale
		y2 := (cy + h/2 - padY) / lb.Scale

		out = append(out, models.BoundingBox{
			X1:         clamp(x1, 0, float32(origW)),
			Y1:         clamp(y1, 0, float32(origH)),
			X2:         clamp(x2, 0, float32(origW)),
			Y2:         clamp(y2, 0, float32(origH)),
			Confidence: bestScore,
			ClassID:    best,
			Label:      table.Name(best),
		})
	}
	return out, nil
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
