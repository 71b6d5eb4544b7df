package postprocess

import (
	"testing"

	"github.com/nvr-ai/go-assist/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func box(x1, y1, x2, y2, conf float32, class int) common.BoundingBox {
	return common.NewBoundingBox(x1, y1, x2, y2, conf, class, "")
}

func assertNoOverlap(t *testing.T, boxes []common.BoundingBox, config *NMSConfig) {
	t.Helper()
	for i := range boxes {
		for j := i + 1; j < len(boxes); j++ {
			if config.ClassAware && boxes[i].ClassID != boxes[j].ClassID {
				continue
			}
			assert.Less(t, boxes[i].IoU(boxes[j]), config.IoUThreshold,
				"boxes %d and %d overlap after suppression", i, j)
		}
	}
}

func TestSuppressCrossClass(t *testing.T) {
	config := DefaultNMSConfig()
	detections := []common.BoundingBox{
		box(0.1, 0.1, 0.4, 0.4, 0.6, 1),
		box(0.1, 0.1, 0.41, 0.41, 0.9, 0),
		box(0.6, 0.6, 0.9, 0.9, 0.7, 2),
	}

	kept := Suppress(detections, &config)
	require.Len(t, kept, 2)
	assert.Equal(t, float32(0.9), kept[0].Confidence)
	assert.Equal(t, float32(0.7), kept[1].Confidence)
	assertNoOverlap(t, kept, &config)
}

func TestSuppressClassAware(t *testing.T) {
	config := DefaultNMSConfig()
	config.ClassAware = true
	detections := []common.BoundingBox{
		box(0.1, 0.1, 0.4, 0.4, 0.6, 1),
		box(0.1, 0.1, 0.41, 0.41, 0.9, 0),
		box(0.1, 0.1, 0.39, 0.39, 0.5, 0),
	}

	kept := Suppress(detections, &config)
	require.Len(t, kept, 2)
	assert.Equal(t, 0, kept[0].ClassID)
	assert.Equal(t, 1, kept[1].ClassID)
	assertNoOverlap(t, kept, &config)
}

func TestSuppressThresholdIsInclusive(t *testing.T) {
	config := DefaultNMSConfig()
	// b covers half of a, so their IoU is exactly the default 0.5.
	a := box(0, 0, 0.5, 0.5, 0.9, 0)
	b := box(0, 0, 0.5, 0.25, 0.8, 1)
	require.Equal(t, float32(0.5), a.IoU(b))
	require.Equal(t, float32(0.5), config.IoUThreshold)

	kept := ApplyGreedyNMS([]common.BoundingBox{a, b}, &config)
	require.Len(t, kept, 1)
	assert.Equal(t, float32(0.9), kept[0].Confidence)

	// Either side of the threshold.
	c := box(0, 0, 0.5, 0.26, 0.8, 1)
	require.Greater(t, a.IoU(c), float32(0.5))
	d := box(0, 0, 0.5, 0.24, 0.8, 1)
	require.Less(t, a.IoU(d), float32(0.5))
	assert.Len(t, ApplyGreedyNMS([]common.BoundingBox{a, d}, &config), 2)
	assert.Len(t, ApplyGreedyNMS([]common.BoundingBox{a, c}, &config), 1)
}

func TestSuppressEmpty(t *testing.T) {
	config := DefaultNMSConfig()
	assert.Empty(t, Suppress(nil, &config))
	assert.Nil(t, ApplyNMS(nil, &config))
}

func TestSuppressIdempotent(t *testing.T) {
	configs := map[string]NMSConfig{
		"greedy":      DefaultNMSConfig(),
		"parallel":    {IoUThreshold: 0.5, NumWorkers: 4},
		"class aware": {Greedy: true, IoUThreshold: 0.5, ClassAware: true},
	}

	var detections []common.BoundingBox
	for i := 0; i < 40; i++ {
		off := float32(i%8) * 0.05
		row := float32(i/8) * 0.1
		detections = append(detections, box(off, row, off+0.3, row+0.3, 0.3+float32(i%7)*0.1, i%3))
	}

	for name, config := range configs {
		t.Run(name, func(t *testing.T) {
			once := Suppress(detections, &config)
			twice := Suppress(once, &config)
			assert.Equal(t, once, twice)
			assertNoOverlap(t, once, &config)
		})
	}
}

func TestParallelMatchesGreedy(t *testing.T) {
	var detections []common.BoundingBox
	for i := 0; i < 25; i++ {
		off := float32(i) * 0.03
		detections = append(detections, box(off, off, off+0.25, off+0.25, 1-float32(i)*0.02, 0))
	}
	sorted := SortByConfidence(detections)

	greedy := ApplyGreedyNMS(sorted, &NMSConfig{IoUThreshold: 0.5})
	parallel := ApplyNMS(sorted, &NMSConfig{IoUThreshold: 0.5, NumWorkers: 3})
	assert.Equal(t, greedy, parallel)
}
