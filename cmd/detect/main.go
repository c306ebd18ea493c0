// go-detect - object detection server with live camera and still-image paths
//
// Serves the detection API and websocket streams for the browser page.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-detect/internal/app"
	"github.com/teslashibe/go-detect/internal/config"
	dlog "github.com/teslashibe/go-detect/internal/log"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	dlog.Init(cfg.LogLevel)

	a, err := app.New(cfg, app.WithLogger(dlog.L()))
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	fmt.Println("🔍 go-detect")
	fmt.Println("============")
	fmt.Printf("Backend: %s\n", backendName(cfg))
	fmt.Printf("Listen:  %s\n", cfg.Addr())
	if cfg.StaticDir != "" {
		fmt.Printf("Page:    %s\n", cfg.StaticDir)
	}

	if err := a.Init(); err != nil {
		log.Fatalf("❌ Initialization failed: %v", err)
	}
	defer a.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dlog.Info("starting", "backend", backendName(cfg), "addr", cfg.Addr())
	fmt.Println("\n🚀 Ready (Ctrl+C to exit)")
	if err := a.Run(ctx); err != nil {
		log.Fatalf("❌ Runtime error: %v", err)
	}
	fmt.Println("\n👋 Goodbye!")
}

// parseFlags loads the config file and environment, then applies flags.
func parseFlags(args []string) (config.Config, error) {
	fs := flag.NewFlagSet("detect", flag.ContinueOnError)
	configPath := fs.String("config", "detect.yaml", "YAML config file (ignored if missing)")
	port := fs.String("port", "", "Listen port or host:port (overrides PORT)")
	backend := fs.String("backend", "", "Model backend: yolo, remote, cloud, mock, or a comma list for a chain (overrides MODEL_BACKEND)")
	modelPath := fs.String("model", "", "YOLO ONNX model path (overrides MODEL_PATH)")
	inferenceURL := fs.String("inference-url", "", "Remote inference URL (overrides INFERENCE_URL)")
	staticDir := fs.String("static", "", "Directory with the web page (overrides STATIC_DIR)")
	minConfidence := fs.Float64("min-confidence", -1, "Drop detections below this confidence (0-1)")
	minArea := fs.Float64("min-area", -1, "Drop boxes smaller than this many square pixels")
	debug := fs.Bool("debug", false, "Enable verbose debug logging")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return cfg, err
	}

	if *port != "" {
		cfg.Port = *port
	}
	if *backend != "" {
		cfg.SetBackend(*backend)
	}
	if *modelPath != "" {
		cfg.Model.YOLO.Path = *modelPath
	}
	if *inferenceURL != "" {
		cfg.Model.Remote.URL = *inferenceURL
	}
	if *staticDir != "" {
		cfg.StaticDir = *staticDir
	}
	if *minConfidence >= 0 {
		cfg.Model.MinConfidence = *minConfidence
	}
	if *minArea >= 0 {
		cfg.Model.MinArea = *minArea
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func backendName(cfg config.Config) string {
	if cfg.Model.Backend == config.BackendChain {
		return fmt.Sprintf("chain %v", cfg.Model.Chain)
	}
	return cfg.Model.Backend
}
