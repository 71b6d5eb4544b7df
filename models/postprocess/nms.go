// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"sort"
	"sync"

	"github.com/nvr-ai/go-assist/common"
)

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	Greedy       bool    `json:"greedy"        yaml:"greedy"`        // If true, use greedy NMS.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"` // Overlap threshold for suppression.
	ClassAware   bool    `json:"class_aware"   yaml:"class_aware"`   // If true, suppress only within same class.
	NumWorkers   int     `json:"num_workers"   yaml:"num_workers"`   // Goroutines for parallel IoU computation.
}

// DefaultNMSConfig returns the cross-class greedy configuration used by the detector.
//
// Returns:
//   - NMSConfig: Greedy, cross-class suppression at IoU >= 0.5.
func DefaultNMSConfig() NMSConfig {
	return NMSConfig{
		Greedy:       true,
		IoUThreshold: 0.5,
		ClassAware:   false,
		NumWorkers:   1,
	}
}

// Suppress runs the configured NMS variant over unsorted detections.
//
// Arguments:
//   - detections: Candidate boxes in any order. The slice is not modified.
//   - config: NMS configuration.
//
// Returns:
//   - []common.BoundingBox: The surviving boxes sorted by descending confidence.
func Suppress(detections []common.BoundingBox, config *NMSConfig) []common.BoundingBox {
	sorted := SortByConfidence(detections)
	if config.Greedy || config.NumWorkers <= 1 {
		return ApplyGreedyNMS(sorted, config)
	}
	return ApplyNMS(sorted, config)
}

// SortByConfidence returns a copy of detections ordered by descending confidence.
//
// The sort is stable so that equal scores keep their decode order.
func SortByConfidence(detections []common.BoundingBox) []common.BoundingBox {
	sorted := make([]common.BoundingBox, len(detections))
	copy(sorted, detections)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})
	return sorted
}

// suppresses reports whether the anchor box suppresses the candidate.
func suppresses(anchor, candidate common.BoundingBox, config *NMSConfig) bool {
	if config.ClassAware && anchor.ClassID != candidate.ClassID {
		return false
	}
	return anchor.IoU(candidate) >= config.IoUThreshold
}

// ApplyNMS filters overlapping detections using Non-Maximum Suppression with the
// IoU comparisons of each anchor spread across a pool of workers.
//
// Arguments:
//   - detections: Sorted slice of detections (highest score first).
//   - config: NMS configuration. If ClassAware, suppress only within same class. If not,
//     suppress all overlapping detections.
//
// Returns:
//   - Filtered slice of detections. If no detections are provided, returns nil.
func ApplyNMS(detections []common.BoundingBox, config *NMSConfig) []common.BoundingBox {
	n := len(detections)
	if n == 0 {
		return nil
	}

	workers := config.NumWorkers
	if workers < 1 {
		workers = 1
	}

	used := make([]bool, n)
	filtered := make([]common.BoundingBox, 0, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}
		anchor := detections[i]
		filtered = append(filtered, anchor)
		used[i] = true

		// Each worker owns a strided subset of the remaining candidates so writes to used
		// never overlap.
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(start int) {
				defer wg.Done()
				for j := start; j < n; j += workers {
					if used[j] {
						continue
					}
					if suppresses(anchor, detections[j], config) {
						used[j] = true
					}
				}
			}(i + 1 + w)
		}
		wg.Wait()
	}

	return filtered
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression.
//
// Arguments:
//   - detections: Slice of detections sorted by descending confidence.
//   - config: Suppression threshold and class awareness. Candidates whose IoU with a kept
//     box is at or above the threshold are dropped.
//
// Returns:
//   - Filtered slice of detections.
func ApplyGreedyNMS(detections []common.BoundingBox, config *NMSConfig) []common.BoundingBox {
	n := len(detections)
	if n == 0 {
		return nil
	}

	filtered := make([]common.BoundingBox, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := detections[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if suppresses(anchor, detections[j], config) {
				used[j] = true
			}
		}
	}

	return filtered
}
