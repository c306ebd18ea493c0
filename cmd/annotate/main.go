// annotate - run one still-image detection and write the annotated image
//
// Usage: annotate [-backend yolo] [-o out.jpg] photo.jpg
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/disintegration/imaging"

	"github.com/teslashibe/go-detect/internal/config"
	dlog "github.com/teslashibe/go-detect/internal/log"
	"github.com/teslashibe/go-detect/pkg/camera"
	"github.com/teslashibe/go-detect/pkg/canvas"
	"github.com/teslashibe/go-detect/pkg/session"
)

func main() {
	configPath := flag.String("config", "detect.yaml", "YAML config file (ignored if missing)")
	backend := flag.String("backend", "", "Model backend: yolo, remote, cloud (overrides MODEL_BACKEND)")
	modelPath := flag.String("model", "", "YOLO ONNX model path (overrides MODEL_PATH)")
	out := flag.String("o", "", "Output image (default: <input>_detected.jpg)")
	minConfidence := flag.Float64("min-confidence", -1, "Drop detections below this confidence (0-1)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: annotate [flags] <image>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	input := flag.Arg(0)
	if *out == "" {
		*out = strings.TrimSuffix(input, filepath.Ext(input)) + "_detected.jpg"
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}
	if *backend != "" {
		cfg.SetBackend(*backend)
	}
	if *modelPath != "" {
		cfg.Model.YOLO.Path = *modelPath
	}
	if *minConfidence >= 0 {
		cfg.Model.MinConfidence = *minConfidence
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	dlog.Init(cfg.LogLevel)
	logger := dlog.L()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	provider, err := cfg.BuildProvider(dlog.Component("detection.chain"))
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}
	cv, err := canvas.New(canvas.DefaultFontSize)
	if err != nil {
		log.Fatalf("❌ Canvas: %v", err)
	}

	noCamera := camera.OpenerFunc(func(context.Context, camera.Constraints) (camera.Camera, error) {
		return nil, camera.ErrDeviceUnavailable
	})
	sess := session.New(cfg.SessionConfig(), provider, noCamera, cv, session.WithLogger(logger))
	defer sess.Close()

	fmt.Printf("🧠 Loading model (%s)...\n", cfg.Model.Backend)
	if err := sess.LoadModel(ctx); err != nil {
		log.Fatalf("❌ Error loading AI model: %v", err)
	}

	f, err := os.Open(input)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	info, err := f.Stat()
	size := int64(-1)
	if err == nil {
		size = info.Size()
	}
	cycle, err := sess.Upload(ctx, f, size)
	f.Close()
	if err != nil {
		log.Fatalf("❌ Detection failed: %v", err)
	}

	if err := imaging.Save(cv.Snapshot(), *out, imaging.JPEGQuality(cfg.Camera.Quality)); err != nil {
		log.Fatalf("❌ Write %s: %v", *out, err)
	}

	p := cycle.Panel
	fmt.Printf("\n📦 Objects:    %s\n", p.ObjectCount)
	fmt.Printf("🎯 Confidence: %s\n", p.ConfidenceAvg)
	fmt.Printf("⏱️  Time:       %s\n\n", p.ProcessingTime)
	for _, line := range p.Lines {
		fmt.Println("   " + line)
	}
	fmt.Printf("\n✅ Saved %s\n", *out)
}
