package nms

import (
	"sort"

	"github.com/streamshield/person-detection-service/models"
)

// IoU returns the intersection-over-union of two axis-aligned boxes. The
// intersection extent is clamped to zero, so disjoint boxes yield 0, never
// a negative value.
func IoU(a, b models.BoundingBox) float32 {
	ix := minf(a.X2, b.X2) - maxf(a.X1, b.X1)
	iy := minf(a.Y2, b.Y2) - maxf(a.Y1, b.Y1)
	if ix < 0 {
		ix = 0
	}
	if iy < 0 {
		iy = 0
	}
	inter := ix * iy
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Suppress runs greedy class-scoped non-maximum suppression. Candidates are
// sorted by descending confidence (stable, so equal scores keep their input
// order); each accepted box removes remaining candidates of the same class
// with IoU at or above the threshold. Boxes of different classes never
// suppress each other.
func Suppress(boxes []models.BoundingBox, iouThreshold float32) []models.BoundingBox {
	if len(boxes) == 0 {
		return nil
	}

	sorted := make([]models.BoundingBox, len(boxes))
	copy(sorted, boxes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	kept := make([]models.BoundingBox, 0, len(sorted))
	suppressed := make([]bool, len(sorted))
	for i, b := range sorted {
		if suppressed[i] {
			continue
		}
		kept = append(kept, b)
		for j := i + 1; j < len(sorted); j++ {
			if suppressed[j] || sorted[j].ClassID != b.ClassID {
				continue
			}
			if IoU(b, sorted[j]) >= iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
