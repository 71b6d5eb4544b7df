// Package main is the assist command: it reads frames from a camera or a directory and
// announces what the pipeline sees.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nvr-ai/go-assist/config"
	"github.com/nvr-ai/go-assist/logging"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const (
	flagConfig    = "config"
	flagFramesDir = "frames-dir"
	flagDevice    = "device"
	flagInterval  = "interval"
	flagLogLevel  = "log-level"
	flagLoop      = "loop"
	flagStats     = "stats-interval"
)

var app = &cli.App{
	Name:            "assist",
	Usage:           "describe nearby objects out loud from a camera feed",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    flagConfig,
			Aliases: []string{"c"},
			Usage:   "load configuration from `FILE`",
		},
		&cli.StringFlag{
			Name:  flagLogLevel,
			Usage: "override the log level (debug, info, warn, error)",
		},
	},
	Commands: []*cli.Command{
		{
			Name:  "run",
			Usage: "run the pipeline until interrupted",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  flagFramesDir,
					Usage: "replay encoded frames from `DIR` instead of a camera",
				},
				&cli.IntFlag{
					Name:  flagDevice,
					Usage: "camera device index",
				},
				&cli.DurationFlag{
					Name:  flagInterval,
					Usage: "delay between frames offered to the pipeline",
				},
				&cli.BoolFlag{
					Name:  flagLoop,
					Usage: "restart a directory replay when it ends",
				},
				&cli.DurationFlag{
					Name:  flagStats,
					Value: 10 * time.Second,
					Usage: "how often to log pipeline statistics, 0 to disable",
				},
			},
			Action: runAction,
		},
		{
			Name:   "config",
			Usage:  "print the effective configuration as YAML",
			Action: configAction,
		},
	},
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads --config over the defaults and applies command line overrides.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String(flagConfig); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	if c.IsSet(flagLogLevel) {
		cfg.Logging.Level = c.String(flagLogLevel)
	}
	if c.IsSet(flagFramesDir) {
		cfg.Source.FramesDir = c.String(flagFramesDir)
	}
	if c.IsSet(flagDevice) {
		cfg.Source.Device = c.Int(flagDevice)
	}
	if c.IsSet(flagInterval) {
		cfg.Source.Interval = c.Duration(flagInterval)
	}
	if c.IsSet(flagLoop) {
		cfg.Source.Loop = c.Bool(flagLoop)
	}
	return cfg, cfg.Validate()
}

func configAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	data, err := cfg.Marshal()
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	_, err = c.App.Writer.Write(data)
	return err
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newAssistant(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}()

	session, err := a.pipeline.Connect(ctx)
	if err != nil {
		return err
	}
	defer a.pipeline.Disconnect()
	logger.Info("assist started",
		zap.String("session", session),
		zap.String("frames_dir", cfg.Source.FramesDir),
		zap.Int("device", cfg.Source.Device),
		zap.Duration("interval", cfg.Source.Interval))

	if every := c.Duration(flagStats); every > 0 {
		go a.reportEvery(ctx, every)
	}

	source, err := openSource(cfg.Source, logger)
	if err != nil {
		return err
	}
	defer source.Close()

	err = feed(ctx, a, source, cfg.Source.Interval)
	a.report()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
