// Command ballreplay runs the ball filter over a recorded or synthetic
// scenario, optionally recording every cycle to SQLite, plotting the
// trajectory and serving the debug monitor while it runs.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/balltrack/internal/ballfilter"
	"github.com/banshee-data/balltrack/internal/config"
	"github.com/banshee-data/balltrack/internal/cycler"
	"github.com/banshee-data/balltrack/internal/debug"
	"github.com/banshee-data/balltrack/internal/monitor"
	"github.com/banshee-data/balltrack/internal/projection"
	"github.com/banshee-data/balltrack/internal/replay"
	"github.com/banshee-data/balltrack/internal/security"
	"github.com/banshee-data/balltrack/internal/storage/sqlite"
	"github.com/banshee-data/balltrack/internal/version"
)

var (
	scenarioPath = flag.String("scenario", "", "JSON-lines scenario to replay (see gen-scenario)")
	configPath   = flag.String("config", "", "tuning config JSON (default "+config.DefaultConfigPath+")")
	dbPath       = flag.String("db", "", "SQLite database to record cycles into (disabled when empty)")
	label        = flag.String("label", "replay", "run label stored with the recorded cycles")
	plotDir      = flag.String("plot-dir", "", "directory to write a trajectory PNG into (disabled when empty)")
	listen       = flag.String("listen", "", "debug monitor listen address, e.g. localhost:8081 (disabled when empty)")
	realtime     = flag.Bool("realtime", false, "pace cycles at the configured cycle_period")
	debugTrace   = flag.Bool("debug-trace", false, "collect a per-cycle association trace for the monitor")
	hold         = flag.Bool("hold", false, "keep the monitor up after the scenario ends until interrupted")

	cameraHeight = flag.Float64("camera-height", 0.5, "camera height above the ground in metres")
	cameraPitch  = flag.Float64("camera-pitch", 0.3, "camera pitch below the horizon in radians")
	focalLength  = flag.Float64("focal-length", 550, "camera focal length in pixels")

	showVersion = flag.Bool("version", false, "print the version and exit")
)

// options is everything run needs, separated from the flag globals so the
// replay can be driven from tests.
type options struct {
	Scenario   string
	Tuning     *config.TuningConfig
	DBPath     string
	Label      string
	PlotDir    string
	Listen     string
	Realtime   bool
	DebugTrace bool
	Hold       bool
	Camera     projection.Camera
}

// result summarises a finished replay.
type result struct {
	RunID      string
	Cycles     uint64
	Evaluation replay.Evaluation
	PlotPath   string
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("ballreplay", version.String())
		return
	}
	if *scenarioPath == "" {
		log.Fatal("-scenario is required")
	}

	var tuning *config.TuningConfig
	if *configPath == "" {
		tuning = config.MustLoadDefaultConfig()
	} else {
		var err error
		if tuning, err = config.LoadTuningConfig(*configPath); err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := run(ctx, options{
		Scenario:   *scenarioPath,
		Tuning:     tuning,
		DBPath:     *dbPath,
		Label:      *label,
		PlotDir:    *plotDir,
		Listen:     *listen,
		Realtime:   *realtime,
		DebugTrace: *debugTrace,
		Hold:       *hold,
		Camera:     headCamera(tuning, *cameraHeight, *cameraPitch, *focalLength),
	})
	if err != nil {
		log.Fatalf("replay failed: %v", err)
	}

	log.Printf("replayed %d cycles: %s", res.Cycles, res.Evaluation)
	if res.RunID != "" {
		log.Printf("recorded run %s in %s", res.RunID, *dbPath)
	}
	if res.PlotPath != "" {
		log.Printf("✓ Created: %s", res.PlotPath)
	}
}

// headCamera is a forward-looking camera at the robot origin with its
// principal point in the image centre.
func headCamera(tuning *config.TuningConfig, height, pitch, focal float64) projection.Camera {
	return projection.Camera{
		Height:      height,
		Pitch:       pitch,
		FocalLength: focal,
		PrincipalPoint: projection.Pixel{
			U: float64(tuning.GetImageWidth()) / 2,
			V: float64(tuning.GetImageHeight()) / 2,
		},
	}
}

func run(ctx context.Context, o options) (result, error) {
	var res result

	params, err := ballfilter.ParametersFromTuning(o.Tuning)
	if err != nil {
		return res, err
	}

	f, err := os.Open(o.Scenario)
	if err != nil {
		return res, fmt.Errorf("open scenario: %w", err)
	}
	frames, err := replay.ReadFrames(f)
	f.Close()
	if err != nil {
		return res, fmt.Errorf("read scenario %s: %w", o.Scenario, err)
	}
	log.Printf("loaded %d frames from %s", len(frames), o.Scenario)

	cameras := []ballfilter.CameraView{{
		Projector:   o.Camera,
		ImageWidth:  o.Tuning.GetImageWidth(),
		ImageHeight: o.Tuning.GetImageHeight(),
	}}

	var filterOpts []ballfilter.Option
	var cyclerOpts []cycler.Option
	if o.DebugTrace {
		collector := debug.NewCollector()
		collector.SetEnabled(true)
		filterOpts = append(filterOpts, ballfilter.WithDebugCollector(collector))
		cyclerOpts = append(cyclerOpts, cycler.WithDebugCollector(collector))
	}
	if o.Realtime {
		cyclerOpts = append(cyclerOpts, cycler.WithPeriod(o.Tuning.GetCyclePeriod()))
	}

	filter, err := ballfilter.NewBallFilter(params, filterOpts...)
	if err != nil {
		return res, err
	}

	evaluator := replay.NewEvaluator(frames)
	sinks := []cycler.Sink{evaluator}

	var trajectory *replay.TrajectoryPlot
	if o.PlotDir != "" {
		if res.PlotPath, err = security.OutputFile(o.PlotDir, o.Label, ".png"); err != nil {
			return res, err
		}
		trajectory = replay.NewTrajectoryPlot(o.Label, frames)
		sinks = append(sinks, trajectory)
	}

	var store *sqlite.Store
	if o.DBPath != "" {
		if store, err = sqlite.Open(o.DBPath); err != nil {
			return res, err
		}
		defer store.Close()

		tuningJSON, err := json.Marshal(o.Tuning)
		if err != nil {
			return res, fmt.Errorf("encode tuning: %w", err)
		}
		rec := &sqlite.Run{Label: o.Label, Version: version.String(), TuningJSON: tuningJSON}
		if err := store.BeginRun(ctx, rec); err != nil {
			return res, err
		}
		res.RunID = rec.RunID
		sinks = append(sinks, store.Sink(rec.RunID))
	}

	cyclerOpts = append(cyclerOpts, cycler.WithSinks(sinks...))
	c := cycler.New(filter, cycler.NewSliceSource(replay.Inputs(frames, cameras)), cyclerOpts...)

	serveCtx, stopServing := context.WithCancel(ctx)
	defer stopServing()
	var wg sync.WaitGroup
	if o.Listen != "" {
		ws, err := monitor.NewWebServer(monitor.WebServerConfig{
			Address: o.Listen,
			Latest:  c,
			Params:  params,
			Store:   store,
		})
		if err != nil {
			return res, err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ws.Start(serveCtx); err != nil {
				log.Printf("monitor failed: %v", err)
			}
		}()
	}

	started := time.Now()
	if err := c.Run(ctx); err != nil {
		stopServing()
		wg.Wait()
		return res, err
	}
	res.Cycles = c.Cycles()
	res.Evaluation = evaluator.Result()
	log.Printf("filter finished in %s", time.Since(started))

	if trajectory != nil {
		if err := trajectory.Save(res.PlotPath); err != nil {
			return res, fmt.Errorf("save plot: %w", err)
		}
	}

	if o.Listen != "" && o.Hold {
		log.Printf("scenario finished, monitor still serving on %s", o.Listen)
		<-ctx.Done()
	}
	stopServing()
	wg.Wait()
	return res, nil
}
