package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/formtrack/pkg/analysisclient"
	"github.com/cyclopcam/formtrack/pkg/pose"
	"github.com/cyclopcam/formtrack/pkg/tracker"
	"github.com/cyclopcam/formtrack/server/config"
	"github.com/cyclopcam/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	parser := argparse.NewParser("formtrack", "Replay recorded keypoints through a tracking session")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Configuration file (JSON or YAML)", Default: ""})
	replayFile := parser.String("r", "replay", &argparse.Options{Help: "Recorded keypoints (JSON lines)", Required: true})
	fps := parser.Float("", "fps", &argparse.Options{Help: "Camera frame rate", Default: 30.0})
	latency := parser.Int("", "latency", &argparse.Options{Help: "Simulated inference time (milliseconds)", Default: 20})
	loop := parser.Flag("", "loop", &argparse.Options{Help: "Loop the recording until interrupted", Default: false})
	metricsAddr := parser.String("", "metrics", &argparse.Options{Help: "Serve prometheus metrics on this address (eg :9100)", Default: ""})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	check(err)

	cfg := config.DefaultConfig()
	if *configFile != "" {
		cfg, err = config.LoadConfig(*configFile)
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
	}

	estimator, err := pose.LoadReplayEstimator(*replayFile)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	estimator.Latency = time.Duration(*latency) * time.Millisecond
	estimator.Loop = *loop
	defer estimator.Close()
	logger.Infof("Loaded %v frames from %v", estimator.Len(), *replayFile)

	opts := cfg.SessionOptions()
	opts.Metrics = tracker.NewMetrics(prometheus.DefaultRegisterer)
	opts.Upload.Metrics = analysisclient.NewMetrics(prometheus.DefaultRegisterer)
	if *metricsAddr != "" {
		go func() {
			logger.Infof("Serving metrics on %v", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, promhttp.Handler()); err != nil {
				logger.Errorf("Metrics server failed: %v", err)
			}
		}()
	}

	var remote tracker.Remote
	if cfg.Recording() {
		remote = analysisclient.NewClient(logger, cfg.ServerURL, cfg.APIKey)
	} else {
		logger.Infof("No serverUrl configured. Tracking only")
	}
	session, err := tracker.NewSession(logger, estimator, remote, opts)
	check(err)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Frames arrive at the camera rate regardless of how long inference takes, the way a camera
	// callback would deliver them. The replay estimator ignores the image, so we submit nil.
	ticker := time.NewTicker(time.Duration(float64(time.Second) / *fps))
	defer ticker.Stop()
	reportTicker := time.NewTicker(5 * time.Second)
	defer reportTicker.Stop()
	finished := make(chan struct{})
	var finishOnce sync.Once
	var wg sync.WaitGroup
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-finished:
			break loop
		case <-reportTicker.C:
			st := session.Stats()
			logger.Infof("Frames %v, inferred %v, repeats %v, inference %v (max %v), pending uploads %v",
				st.Submitted, st.Inferred, st.Repeats, st.AverageInference, st.MaxInference, st.PendingUploads)
		case <-ticker.C:
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := session.Submit(ctx, nil)
				if errors.Is(err, pose.ErrReplayFinished) {
					finishOnce.Do(func() { close(finished) })
				} else if err != nil && !errors.Is(err, tracker.ErrSessionFinished) {
					logger.Warnf("%v", err)
				}
			}()
		}
	}
	wg.Wait()

	finishCtx, finishCancel := context.WithTimeout(context.Background(), time.Minute)
	defer finishCancel()
	result, err := session.Finish(finishCtx)
	check(err)
	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
}
