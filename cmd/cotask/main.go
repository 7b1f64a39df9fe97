package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli"
	"go.opentelemetry.io/otel"

	"github.com/plprobelab/go-cotask/coord"
	"github.com/plprobelab/go-cotask/event"
	"github.com/plprobelab/go-cotask/task"
	"github.com/plprobelab/go-cotask/timer"
)

const version = "v0.1.0"

var (
	jaegerURL string
	interval  time.Duration
	repeat    int
	fps       int
	verbose   bool

	runFlags = []cli.Flag{
		cli.DurationFlag{
			Name:        "interval, i",
			Usage:       "time between two heartbeats",
			EnvVar:      "COTASK_INTERVAL",
			Destination: &interval,
			Value:       time.Second,
		},
		cli.IntFlag{
			Name:        "repeat, n",
			Usage:       "number of heartbeats before exiting (0 = until interrupted)",
			EnvVar:      "COTASK_REPEAT",
			Destination: &repeat,
			Value:       3,
		},
		cli.IntFlag{
			Name:        "fps, f",
			Usage:       "frames executed per second",
			EnvVar:      "COTASK_FPS",
			Destination: &fps,
			Value:       60,
		},
		cli.StringFlag{
			Name:        "jaeger",
			Usage:       "export spans to the Jaeger collector at this url (e.g. http://localhost:14268/api/traces)",
			EnvVar:      "COTASK_JAEGER",
			Destination: &jaegerURL,
		},
		cli.BoolFlag{
			Name:        "verbose, v",
			Usage:       "log task lifecycle transitions",
			Destination: &verbose,
		},
	}
)

func Execute(args []string) error {
	app := cli.App{
		Name:        "cotask",
		Usage:       "runs a repeating timer task on a frame-driven main loop",
		UsageText:   "cotask [options]",
		HideVersion: true,
		Action:      run,
		Flags:       runFlags,
	}
	return app.Run(args)
}

func run(cctx *cli.Context) error {
	if fps < 1 {
		return fmt.Errorf("fps must be greater than zero")
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if jaegerURL != "" {
		tp, err := tracerProvider(jaegerURL)
		if err != nil {
			return fmt.Errorf("tracer provider: %w", err)
		}
		otel.SetTracerProvider(tp)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Warn("tracer provider shutdown failed", "err", err)
			}
		}()
	}

	sched, err := event.NewFrameScheduler(nil)
	if err != nil {
		return err
	}

	engineCfg := task.DefaultEngineConfig()
	engineCfg.Logger = logger
	engine, err := task.NewEngine(engineCfg)
	if err != nil {
		return err
	}

	coordCfg := coord.DefaultConfig()
	coordCfg.FrameInterval = time.Second / time.Duration(fps)
	if coordCfg.MaxFrameDelta < coordCfg.FrameInterval {
		coordCfg.MaxFrameDelta = coordCfg.FrameInterval
	}
	coordCfg.Logger = logger
	c, err := coord.NewCoordinator(sched, engine, coordCfg)
	if err != nil {
		return err
	}

	tm, err := timer.New(sched, &timer.Config{Interval: interval, Persistent: true})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	heartbeat := engine.Add("heartbeat", tm)
	beats := 0
	var onBeat func(bool)
	onBeat = func(success bool) {
		if !success {
			return
		}
		beats++
		fmt.Fprintf(cctx.App.Writer, "heartbeat %d at %s\n", beats, sched.Now())
		if repeat > 0 && beats >= repeat {
			cancel()
			return
		}
		heartbeat.Run(ctx, onBeat)
	}
	heartbeat.Run(ctx, onBeat)

	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	for _, info := range engine.Snapshot() {
		logger.Debug("task at exit", "task", info.Name, "id", info.ID, "phase", info.Phase.String())
	}
	return nil
}

func main() {
	err := Execute(os.Args)
	if err != nil {
		fmt.Printf("cotask: %s\n", err.Error())
		os.Exit(1)
	}
}
