// Command gen-scenario writes a synthetic JSON-lines scenario of a ball
// rolling to a stop in front of a turning robot, for ballreplay.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/banshee-data/balltrack/internal/replay"
	"github.com/banshee-data/balltrack/internal/security"
	"github.com/banshee-data/balltrack/internal/version"
)

func main() {
	defaults := replay.DefaultSyntheticConfig()
	cfg := defaults

	output := flag.String("o", "scenario.jsonl", "output path")
	flag.IntVar(&cfg.Frames, "n", defaults.Frames, "number of frames")
	flag.Int64Var(&cfg.Seed, "seed", defaults.Seed, "random seed")
	flag.DurationVar(&cfg.CycleDuration, "dt", defaults.CycleDuration, "time between frames")
	flag.Float64Var(&cfg.BallStart.X, "x", defaults.BallStart.X, "ball start x in metres")
	flag.Float64Var(&cfg.BallStart.Y, "y", defaults.BallStart.Y, "ball start y in metres")
	flag.Float64Var(&cfg.BallVelocity.X, "vx", defaults.BallVelocity.X, "ball start velocity x in m/s")
	flag.Float64Var(&cfg.BallVelocity.Y, "vy", defaults.BallVelocity.Y, "ball start velocity y in m/s")
	flag.Float64Var(&cfg.Deceleration, "decel", defaults.Deceleration, "rolling deceleration in m/s²")
	flag.Float64Var(&cfg.RobotYawRate, "yaw-rate", defaults.RobotYawRate, "robot turn rate in rad/s")
	flag.Float64Var(&cfg.NoiseStdDev, "noise", defaults.NoiseStdDev, "detection noise standard deviation in metres")
	flag.Float64Var(&cfg.DropoutProbability, "dropout", defaults.DropoutProbability, "probability a frame misses the ball")
	flag.Float64Var(&cfg.FalsePositiveProbability, "false-positive", defaults.FalsePositiveProbability, "probability of a spurious detection per frame")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("gen-scenario", version.String())
		return
	}

	if err := security.ValidateOutputPath(*output); err != nil {
		log.Fatalf("invalid output path: %v", err)
	}
	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("failed to create %s: %v", *output, err)
	}
	n, err := generate(f, cfg)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		log.Fatalf("failed to write scenario: %v", err)
	}
	log.Printf("✓ Created: %s (%d frames)", *output, n)
}

func generate(w io.Writer, cfg replay.SyntheticConfig) (int, error) {
	frames, err := replay.Synthesize(cfg)
	if err != nil {
		return 0, err
	}
	fw := replay.NewWriter(w)
	for i, frame := range frames {
		if err := fw.Write(frame); err != nil {
			return fw.Frames(), err
		}
		if (i+1)%100 == 0 {
			log.Printf("%d/%d frames", i+1, len(frames))
		}
	}
	return fw.Frames(), fw.Flush()
}
