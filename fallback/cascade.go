package fallback

import (
	"context"
	"image"
	"sync/atomic"

	"github.com/nvr-ai/go-assist/common"
	"github.com/nvr-ai/go-assist/images"
	"github.com/nvr-ai/go-assist/logging"
	"github.com/nvr-ai/go-assist/tracker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrCrop reports that a box could not be cut from the frame.
var ErrCrop = images.ErrCrop

// Result is the outcome of a whole-frame cloud fallback.
type Result struct {
	// Boxes are normalized to the submitted frame.
	Boxes []common.BoundingBox
	// Identified is false when the service failed or found nothing.
	Identified bool
	// Err is the service failure, if any.
	Err error
}

// Labels returns the class names of the result boxes.
func (r Result) Labels() []string {
	labels := make([]string, len(r.Boxes))
	for i, b := range r.Boxes {
		labels[i] = b.ClassName
	}
	return labels
}

// Stats counts cascade activity.
type Stats struct {
	Reclassified       uint64
	ReclassifyFailures uint64
	CloudCalls         uint64
	CloudFailures      uint64
}

// Cascade escalates uncertain detections to a local classifier and empty frames to the cloud.
type Cascade struct {
	cfg        Config
	classifier Classifier
	cloud      CloudDetector
	logger     *zap.Logger

	reclassified       atomic.Uint64
	reclassifyFailures atomic.Uint64
	cloudCalls         atomic.Uint64
	cloudFailures      atomic.Uint64
}

// NewCascade creates a cascade.
//
// Arguments:
//   - cfg: Cascade configuration.
//   - classifier: The crop classifier, nil disables reclassification.
//   - cloud: The cloud detector, nil disables the cloud fallback.
//   - logger: Logger, may be nil.
//
// Returns:
//   - *Cascade: The cascade.
func NewCascade(cfg Config, classifier Classifier, cloud CloudDetector, logger *zap.Logger) *Cascade {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	return &Cascade{
		cfg:        cfg,
		classifier: classifier,
		cloud:      cloud,
		logger:     logging.OrNop(logger).Named("fallback"),
	}
}

// NeedsReclassification reports whether a box is unlabeled or below the confidence floor.
func (c *Cascade) NeedsReclassification(box common.BoundingBox) bool {
	return box.ClassName == common.UnknownClassName || box.Confidence < c.cfg.ReclassifyBelow
}

// Reclassify relabels uncertain tracked objects from crops of the cycle's frame.
//
// Each object is handled independently: a crop or classifier failure leaves that object
// unchanged and never affects the others.
//
// Arguments:
//   - ctx: Cancels outstanding classifier calls.
//   - frame: The frame the objects were detected in.
//   - objects: The tracker output for the frame.
//
// Returns:
//   - []TrackedObject: A copy of objects with relabeled boxes where classification succeeded.
func (c *Cascade) Reclassify(ctx context.Context, frame image.Image, objects []tracker.TrackedObject) []tracker.TrackedObject {
	out := make([]tracker.TrackedObject, len(objects))
	copy(out, objects)
	if c.classifier == nil || frame == nil {
		return out
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxConcurrency)
	for i := range out {
		if !c.NeedsReclassification(out[i].SmoothBox) {
			continue
		}
		i := i
		g.Go(func() error {
			out[i] = c.reclassify(gctx, frame, out[i])
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (c *Cascade) reclassify(ctx context.Context, frame image.Image, obj tracker.TrackedObject) tracker.TrackedObject {
	crop, err := images.Crop(frame, obj.SmoothBox)
	if err != nil {
		c.reclassifyFailures.Add(1)
		c.logger.Warn("crop failed, keeping box", zap.Int("track_id", obj.ID), zap.Error(err))
		return obj
	}

	result, err := c.classifier.Classify(ctx, crop)
	if err != nil {
		c.reclassifyFailures.Add(1)
		c.logger.Warn("reclassification failed, keeping box", zap.Int("track_id", obj.ID), zap.Error(err))
		return obj
	}

	c.reclassified.Add(1)
	c.logger.Debug("reclassified",
		zap.Int("track_id", obj.ID),
		zap.String("from", obj.SmoothBox.ClassName),
		zap.String("to", result.Label),
		zap.Float32("score", result.Score))

	obj.SmoothBox = obj.SmoothBox.WithLabel(result.Label, result.Score)
	obj.Box = obj.Box.WithLabel(result.Label, result.Score)
	return obj
}

// CloudFallback sends a frame with no local detections to the cloud detector.
//
// Arguments:
//   - ctx: Cancels the request.
//   - frame: The frame the detector found nothing in.
//
// Returns:
//   - Result: Identified boxes, or Identified=false on an empty result or any failure.
func (c *Cascade) CloudFallback(ctx context.Context, frame image.Image) Result {
	if c.cloud == nil || frame == nil {
		return Result{}
	}

	ctx, cancel := requestTimeout(ctx, c.cfg.Cloud.Timeout)
	defer cancel()

	c.cloudCalls.Add(1)
	found, err := c.cloud.DetectFrame(ctx, frame)
	if err != nil {
		c.cloudFailures.Add(1)
		c.logger.Warn("cloud detection failed", zap.Error(err))
		return Result{Err: err}
	}

	bounds := frame.Bounds()
	boxes := ToBoundingBoxes(found, bounds.Dx(), bounds.Dy(), c.cfg.Cloud.CoordinateSpace)
	c.logger.Debug("cloud detection", zap.Int("received", len(found)), zap.Int("kept", len(boxes)))
	if len(boxes) == 0 {
		return Result{}
	}
	return Result{Boxes: boxes, Identified: true}
}

// Stats returns the activity counters.
func (c *Cascade) Stats() Stats {
	return Stats{
		Reclassified:       c.reclassified.Load(),
		ReclassifyFailures: c.reclassifyFailures.Load(),
		CloudCalls:         c.cloudCalls.Load(),
		CloudFailures:      c.cloudFailures.Load(),
	}
}
