// car-x drives a small robot car to locate, approach, and follow a moving
// target with a single fixed forward camera. A fast tracker runs at frame
// rate, a heavy detector reconciles it at a fraction of that, and a
// finite-state controller turns their output into bounded steering and
// speed commands. All shared buffers are allocated once before any
// goroutine starts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ranhaber/car-x/calibration"
	"github.com/ranhaber/car-x/capture"
	"github.com/ranhaber/car-x/command"
	"github.com/ranhaber/car-x/control"
	"github.com/ranhaber/car-x/detection"
	"github.com/ranhaber/car-x/motion"
	"github.com/ranhaber/car-x/odometry"
	"github.com/ranhaber/car-x/picar"
	"github.com/ranhaber/car-x/pool"
	"github.com/ranhaber/car-x/tracking"
	"github.com/ranhaber/car-x/web"
)

var (
	frameWidth  = flag.Int("width", envInt("CARX_WIDTH", 640), "Frame width in pixels")
	frameHeight = flag.Int("height", envInt("CARX_HEIGHT", 480), "Frame height in pixels")
	frameRate   = flag.Float64("fps", 30, "Capture and tracker rate (Hz)")
	cameraID    = flag.Int("camera", envInt("CARX_CAMERA", 0), "V4L camera device id")
	synthetic   = flag.Bool("synthetic", false, "Use a synthetic frame source instead of a camera (bench mode)")

	hatPort   = flag.String("hat-port", os.Getenv("CARX_HAT_PORT"), "Robot hat serial port (empty = no hardware, discard commands)")
	calibPath = flag.String("calibration", os.Getenv("CARX_CALIBRATION"), "Calibration JSON file (empty = stock defaults)")

	modelPath     = flag.String("model", os.Getenv("CARX_MODEL"), "Detection model weights (empty = stub detector)")
	modelConfig   = flag.String("model-config", os.Getenv("CARX_MODEL_CONFIG"), "Detection model config file")
	namesPath     = flag.String("names", os.Getenv("CARX_NAMES"), "Class names file for the detection model")
	targetClass   = flag.String("target-class", envStr("CARX_TARGET_CLASS", "cat"), "Class name to follow")
	detectMinConf = flag.Float64("detect-min-confidence", 0.5, "Minimum detector confidence")
	detectEveryK  = flag.Int("detect-every", 10, "Freeze a detector snapshot every K controller ticks")

	trackerAlgo = flag.String("tracker", "kcf", "Tracking algorithm: kcf or csrt")
	listenAddr  = flag.String("listen", envStr("CARX_LISTEN", ":5000"), "Command/status HTTP listen address")
)

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func main() {
	// Env bootstrap before flag defaults are read.
	godotenv.Load()
	flag.Parse()

	detection.SetDebugFunction(func(component, message string) {
		log.Printf("[%s] %s", component, message)
	})

	if err := run(); err != nil {
		log.Fatalf("[main] %v", err)
	}
}

func run() error {
	// 1. Calibration: typed, validated, immutable for the rest of the run.
	var calib *calibration.Calibration
	if *calibPath != "" {
		c, err := calibration.Load(*calibPath)
		if err != nil {
			return err
		}
		calib = c
	} else {
		log.Printf("[main] no calibration file given, using stock defaults")
		calib = calibration.Default()
	}

	// 2. Allocate every shared buffer before any goroutine exists.
	shared, err := pool.Allocate(*frameWidth, *frameHeight, 3)
	if err != nil {
		return err
	}
	defer shared.Close()

	// 3. External capabilities: camera, hat, detector model.
	var source capture.Source
	if *synthetic {
		source = &capture.SyntheticSource{}
	} else {
		src, err := capture.OpenDevice(*cameraID, *frameWidth, *frameHeight, *frameRate)
		if err != nil {
			return err
		}
		source = src
	}
	defer source.Close()

	var act picar.Actuator
	var ranger picar.Ranger = picar.NoRanger{}
	if *hatPort != "" {
		hat, err := picar.Open(*hatPort)
		if err != nil {
			return err
		}
		defer hat.Close()
		act = hat
		if calib.Source() == calibration.SourceRange {
			ranger = picar.NewRangeSensor(hat, picar.DefaultMinReadInterval)
		}
	} else {
		log.Printf("[main] no hat port given, commands will be discarded")
		act = &picar.NopActuator{}
	}

	var provider detection.Provider
	if *modelPath != "" {
		p, err := detection.NewDNNProvider(*modelPath, *modelConfig, *namesPath, *targetClass, *detectMinConf)
		if err != nil {
			return err
		}
		provider = p
	} else {
		log.Printf("[main] no detection model given, using stub detector")
		provider = detection.StubProvider{}
	}

	var algo tracking.Algorithm
	switch *trackerAlgo {
	case "kcf":
		algo = tracking.NewKCF()
	case "csrt":
		algo = tracking.NewCSRT()
	default:
		return fmt.Errorf("unknown tracker algorithm %q", *trackerAlgo)
	}

	// 4. Core components around the pool.
	cmds := command.New()
	odo := odometry.New(calib)
	odo.Reset(0, 0, 0)
	planner := motion.NewPlanner(calib, *frameWidth, *frameHeight)

	tracker := tracking.New(algo, shared, tracking.Config{RateHz: *frameRate})
	detector := detection.NewDetector(provider, shared, *frameRate/float64(*detectEveryK))

	ctrlCfg := control.DefaultConfig()
	ctrlCfg.TickHz = *frameRate
	ctrlCfg.ReconcileEveryK = *detectEveryK
	ctrl := control.New(ctrlCfg, shared, cmds, planner, act, ranger, odo, calib, tracker, detector)

	// 5. One stop signal for every loop; all goroutines joined on exit.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		capture.Loop(ctx, source, shared, *frameRate)
	}()
	go func() {
		defer wg.Done()
		tracker.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		detector.Run(ctx)
	}()

	server := web.NewServer(*listenAddr, cmds, ctrl.Snapshot)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Run(ctx); err != nil {
			log.Printf("[web] server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		s := <-sig
		log.Printf("[main] received %v, shutting down", s)
		cancel()
	}()

	log.Printf("[main] running: %dx%d @ %.0f Hz, state=idle, api on %s",
		*frameWidth, *frameHeight, *frameRate, *listenAddr)
	ctrl.Run(ctx)

	// Controller returned: stop signal observed. Join everything, then
	// make sure the car is no longer moving.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		log.Printf("[main] timed out waiting for worker loops")
	}
	act.Halt()
	log.Printf("[main] bye")
	return nil
}
