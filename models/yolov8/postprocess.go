// Package yolov8 - postprocess YOLOv8 model outputs.
package yolov8

import (
	"fmt"

	"github.com/nvr-ai/go-assist/common"
	"github.com/nvr-ai/go-assist/models/model"
	"github.com/nvr-ai/go-assist/models/model/preprocess"
	"github.com/nvr-ai/go-assist/models/postprocess"
	"gorgonia.org/tensor"
)

// PostProcess decodes the raw head output into boxes and applies NMS.
//
// Arguments:
//   - output: The flattened output tensor.
//   - meta: Preprocessing metadata used to undo letterboxing. May be nil.
//
// Returns:
//   - []common.BoundingBox: Surviving boxes, highest confidence first.
//   - error: An error when the output does not match the configured shape.
func (m *YOLOv8) PostProcess(output []float32, meta *preprocess.PreprocessingResult) ([]common.BoundingBox, error) {
	candidates, err := m.Decode(output, meta)
	if err != nil {
		return nil, err
	}
	return postprocess.Suppress(candidates, &m.options.NMS), nil
}

// Decode extracts candidate boxes from the head output without suppression.
//
// Each of the E elements holds (cx, cy, w, h) in channels 0..3 followed by one score per
// class. The best class must score above the confidence threshold and every corner must
// fall inside the unit square, otherwise the element is dropped.
//
// Arguments:
//   - output: The flattened output tensor.
//   - meta: Preprocessing metadata used to undo letterboxing. May be nil.
//
// Returns:
//   - []common.BoundingBox: Candidates in element order.
//   - error: An error when the output does not match the configured shape.
func (m *YOLOv8) Decode(output []float32, meta *preprocess.PreprocessingResult) ([]common.BoundingBox, error) {
	data, err := m.channelsFirst(output)
	if err != nil {
		return nil, err
	}

	numChannels, numElements := m.channels, m.elements
	threshold := m.options.ConfidenceThreshold

	var scaleX, scaleY float32 = 1, 1
	if !m.options.NormalizedOutput {
		scaleX, scaleY = 1/float32(m.width), 1/float32(m.height)
	}

	candidates := make([]common.BoundingBox, 0, 16)
	for c := 0; c < numElements; c++ {
		maxConf := threshold
		classIdx := -1
		for j := 4; j < numChannels; j++ {
			if score := data[c+numElements*j]; score > maxConf {
				maxConf = score
				classIdx = j - 4
			}
		}
		if classIdx < 0 {
			continue
		}

		cx := data[c] * scaleX
		cy := data[c+numElements] * scaleY
		w := data[c+numElements*2] * scaleX
		h := data[c+numElements*3] * scaleY

		box := common.FromCenter(cx, cy, w, h, maxConf, classIdx, m.labels.Name(classIdx))
		if !box.InBounds() {
			continue
		}

		if meta != nil && (meta.PadLeft != 0 || meta.PadTop != 0) {
			x1, y1 := meta.ToSource(box.X1, box.Y1, m.width, m.height)
			x2, y2 := meta.ToSource(box.X2, box.Y2, m.width, m.height)
			box = common.NewBoundingBox(x1, y1, x2, y2, box.Confidence, box.ClassID, box.ClassName).Clamp()
			if !box.Valid() {
				continue
			}
		}

		candidates = append(candidates, box)
	}

	return candidates, nil
}

// channelsFirst returns the output as a [channels, elements] row-major buffer.
func (m *YOLOv8) channelsFirst(output []float32) ([]float32, error) {
	size := m.channels * m.elements
	if len(output) < size {
		return nil, fmt.Errorf("output holds %d floats, needs %d for shape %v",
			len(output), size, m.options.OutputShape)
	}

	if m.options.Layout != model.LayoutElementsFirst {
		dense := tensor.New(tensor.WithShape(m.channels, m.elements), tensor.WithBacking(output[:size]))
		return dense.Float32s(), nil
	}

	backing := make([]float32, size)
	copy(backing, output[:size])
	dense := tensor.New(tensor.WithShape(m.elements, m.channels), tensor.WithBacking(backing))
	if err := dense.T(); err != nil {
		return nil, fmt.Errorf("transpose output: %w", err)
	}
	if err := dense.Transpose(); err != nil {
		return nil, fmt.Errorf("materialize transposed output: %w", err)
	}
	return dense.Float32s(), nil
}
