package main

import (
	"context"
	"io"
	"time"

	"github.com/nvr-ai/go-assist/config"
	"github.com/nvr-ai/go-assist/images"
	"github.com/nvr-ai/go-assist/util"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// frameSource yields decoded frames until it returns io.EOF.
type frameSource interface {
	Next() (*images.Frame, error)
	Close() error
}

func openSource(cfg config.SourceConfig, logger *zap.Logger) (frameSource, error) {
	if cfg.FramesDir != "" {
		files, err := util.LoadDirectoryImageFiles(cfg.FramesDir)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, errors.Errorf("no frames in %s", cfg.FramesDir)
		}
		logger.Info("replaying frames", zap.Int("files", len(files)), zap.Bool("loop", cfg.Loop))
		return &directorySource{files: files, loop: cfg.Loop, logger: logger}, nil
	}

	webcam, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, errors.Wrapf(err, "open video capture device %d", cfg.Device)
	}
	return &cameraSource{webcam: webcam, mat: gocv.NewMat(), device: cfg.Device}, nil
}

// feed offers one frame per interval. Frames arriving while a cycle runs are dropped by
// the pipeline.
func feed(ctx context.Context, a *assistant, source frameSource, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := a.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		frame, err := source.Next()
		if errors.Is(err, io.EOF) {
			a.logger.Info("source exhausted")
			return nil
		}
		if err != nil {
			return err
		}
		a.pipeline.Submit(frame)
	}
}

type cameraSource struct {
	webcam *gocv.VideoCapture
	mat    gocv.Mat
	device int
	seq    uint64
}

func (s *cameraSource) Next() (*images.Frame, error) {
	if ok := s.webcam.Read(&s.mat); !ok {
		return nil, errors.Errorf("device closed: %d", s.device)
	}
	img, err := images.FromMat(s.mat)
	if err != nil {
		return nil, err
	}
	s.seq++
	return images.NewFrame(s.seq, img, time.Now()), nil
}

func (s *cameraSource) Close() error {
	return multierr.Combine(s.mat.Close(), s.webcam.Close())
}

type directorySource struct {
	files  []util.ImageFile
	next   int
	loop   bool
	seq    uint64
	logger *zap.Logger
}

func (s *directorySource) Next() (*images.Frame, error) {
	for failed := 0; failed < len(s.files); failed++ {
		if s.next >= len(s.files) {
			if !s.loop {
				return nil, io.EOF
			}
			s.next = 0
		}
		file := s.files[s.next]
		s.next++

		img, err := file.Image.Decode()
		if err != nil {
			s.logger.Warn("skipping undecodable frame", zap.String("path", file.Path), zap.Error(err))
			continue
		}
		s.seq++
		return images.NewFrame(s.seq, img, time.Now()), nil
	}
	return nil, errors.New("no decodable frames left")
}

func (s *directorySource) Close() error {
	return nil
}
