package main

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/nvr-ai/go-assist/config"
	"github.com/nvr-ai/go-assist/controller"
	"github.com/nvr-ai/go-assist/detector"
	"github.com/nvr-ai/go-assist/fallback"
	"github.com/nvr-ai/go-assist/inference"
	"github.com/nvr-ai/go-assist/models"
	"github.com/nvr-ai/go-assist/profiler"
	"github.com/nvr-ai/go-assist/speech"
	"github.com/nvr-ai/go-assist/tracker"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// assistant owns the pipeline and the native resources behind it.
type assistant struct {
	pipeline   *controller.Pipeline
	profiler   *profiler.OperationTracker
	detector   *detector.Detector
	classifier *fallback.ONNXClassifier
	dispatcher *speech.Dispatcher
	clock      clock.Clock
	logger     *zap.Logger
}

// newAssistant opens the model sessions and wires every stage.
//
// The classifier is optional and only opened when a model path is configured. The cloud
// fallback is enabled by a non-empty URL.
func newAssistant(cfg config.Config, logger *zap.Logger) (*assistant, error) {
	clk := clock.New()
	a := &assistant{
		profiler: profiler.NewOperationTracker(clk, profiler.DefaultMaxSamples),
		clock:    clk,
		logger:   logger,
	}

	engine, err := inference.NewEngineBuilder().
		WithProvider(cfg.Provider).
		WithModel(cfg.Detector.Model).
		Build()
	if err != nil {
		return nil, errors.Wrap(err, "build detector engine")
	}
	a.detector = detector.New(engine, cfg.Detector, logger)

	var classifier fallback.Classifier
	if cc := cfg.Fallback.Classifier; cc.ModelPath != "" {
		c, err := openClassifier(cfg, cc)
		if err != nil {
			return nil, multierr.Append(err, a.Close())
		}
		a.classifier = c
		classifier = c
	}

	var cloud fallback.CloudDetector
	if cfg.Fallback.Cloud.URL != "" {
		cloud = fallback.NewHTTPCloudDetector(cfg.Fallback.Cloud, nil)
	}

	a.dispatcher = speech.NewDispatcher(speech.LogSpeaker{
		Logger: logger.Named("speaker"),
		Volume: cfg.Speech.Volume,
		Rate:   cfg.Speech.Rate,
	}, cfg.Speech.QueueSize, logger)

	a.pipeline, err = controller.New(controller.Options{
		Detector: a.detector,
		Tracker:  tracker.New(cfg.Tracker, logger),
		Cascade:  fallback.NewCascade(cfg.Fallback, classifier, cloud, logger),
		Speech:   speech.NewScheduler(cfg.Speech, a.dispatcher, clk, logger),
		Pending:  a.dispatcher,
		Overlay:  controller.OverlayFunc(a.render),
		Profiler: a.profiler,
		Clock:    clk,
		Logger:   logger,
	})
	if err != nil {
		return nil, multierr.Append(err, a.Close())
	}
	return a, nil
}

func openClassifier(cfg config.Config, cc fallback.ClassifierConfig) (*fallback.ONNXClassifier, error) {
	if cc.LabelsPath == "" {
		return nil, errors.New("fallback classifier requires labels_path")
	}
	labels, err := models.LoadLabels(models.ModelFamilyCustom, cc.LabelsPath)
	if err != nil {
		return nil, err
	}
	session, err := inference.NewSession(cfg.Provider, inference.SessionArgs{
		ModelPath:   cc.ModelPath,
		InputName:   cc.InputName,
		OutputName:  cc.OutputName,
		InputShape:  cc.InputShape(),
		OutputShape: cc.OutputShape(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open classifier session")
	}
	classifier, err := fallback.NewONNXClassifier(session, labels)
	if err != nil {
		return nil, multierr.Append(err, session.Close())
	}
	return classifier, nil
}

func (a *assistant) render(overlay controller.Overlay) {
	a.logger.Debug("overlay",
		zap.Uint64("seq", overlay.Seq),
		zap.Int("source", int(overlay.Source)),
		zap.Int("boxes", len(overlay.Boxes)))
}

func (a *assistant) report() {
	stats := a.pipeline.Stats()
	a.logger.Info("pipeline stats",
		zap.Uint64("admitted", stats.Admitted),
		zap.Uint64("dropped", stats.Dropped),
		zap.Uint64("completed", stats.Completed),
		zap.Uint64("empty_frames", stats.EmptyFrames),
		zap.Uint64("inference_errors", stats.InferenceErrors),
		zap.Int("live_tracks", stats.Tracker.Live),
		zap.Uint64("reclassified", stats.Fallback.Reclassified),
		zap.Uint64("cloud_calls", stats.Fallback.CloudCalls),
		zap.Uint64("announced", stats.Speech.Delivered))
	a.profiler.Report(a.logger)
}

func (a *assistant) reportEvery(ctx context.Context, every time.Duration) {
	ticker := a.clock.Ticker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.report()
		}
	}
}

// Close releases the model sessions and stops the speech dispatcher.
func (a *assistant) Close() error {
	var err error
	if a.dispatcher != nil {
		err = multierr.Append(err, a.dispatcher.Close())
	}
	if a.classifier != nil {
		err = multierr.Append(err, a.classifier.Close())
	}
	if a.detector != nil {
		err = multierr.Append(err, a.detector.Close())
	}
	return err
}
