package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/shell-sorter/shellsorter/internal/api"
	"github.com/shell-sorter/shellsorter/internal/camera/capture"
	"github.com/shell-sorter/shellsorter/internal/camera/discovery"
	"github.com/shell-sorter/shellsorter/internal/camera/identity"
	"github.com/shell-sorter/shellsorter/internal/camera/manager"
	"github.com/shell-sorter/shellsorter/internal/camera/opencv"
	"github.com/shell-sorter/shellsorter/internal/config"
	"github.com/shell-sorter/shellsorter/internal/metrics"
	"github.com/shell-sorter/shellsorter/internal/utils/logger"
	"github.com/shell-sorter/shellsorter/pkg/sse"
	"github.com/shell-sorter/shellsorter/webui"
)

// Banner is printed on startup
const Banner = `
 ___ _        _ _   ___          _
/ __| |_  ___| | | / __| ___ _ _| |_ ___ _ _
\__ \ ' \/ -_) | | \__ \/ _ \ '_|  _/ -_) '_|
|___/_||_\___|_|_| |___/\___/_|  \__\___|_|

Camera Manager
Version: %s
`

func main() {
	fmt.Printf(Banner, api.Version)
	fmt.Println()

	// Load configuration
	cfg := config.Load()

	// Setup logger
	slogger := cfg.SetupLogger()
	slog.SetDefault(slogger)

	log := logger.NewAdapter(slogger)

	log.Info("starting shell-sorter camera manager",
		slog.String("version", api.Version),
		slog.String("go_version", runtime.Version()),
		slog.String("listen", cfg.Server.Listen),
		slog.String("user_config", cfg.UserConfig.Path),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()
	cameras := newManager(cfg, reg, log.With("component", "cameras"))

	sseServer := sse.NewServer(log)
	sseServer.Start(ctx)

	apiServer := api.NewServer(cfg, cameras, sseServer, reg.Handler(), log)

	httpServer := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      apiServer,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting",
			slog.String("address", httpServer.Addr),
			slog.String("api_version", "v1"),
		)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", err)
			os.Exit(1)
		}
	}()

	var uiServer *http.Server
	if cfg.Server.WebUIListen != "" {
		uiServer = &http.Server{
			Addr:        cfg.Server.WebUIListen,
			Handler:     webui.NewServer(portOf(cfg.Server.Listen), log),
			IdleTimeout: 120 * time.Second,
		}
		go func() {
			log.Info("web UI starting", slog.String("address", uiServer.Addr))
			if err := uiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("web UI server failed", err)
			}
		}()
	}

	go cameras.Startup(ctx)

	printEndpoints(cfg.Server.Listen)

	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if uiServer != nil {
		if err := uiServer.Shutdown(shutdownCtx); err != nil {
			log.Error("web UI shutdown failed", err)
		}
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", err)
	}

	cameras.Cleanup()

	log.Info("server stopped gracefully")
}

// newManager wires the OpenCV backend, probes and capture pipeline into a
// camera manager.
func newManager(cfg *config.Config, reg *metrics.Metrics, log *logger.Adapter) *manager.Manager {
	cc := cfg.Camera

	opener := opencv.NewOpener()
	store := config.NewUserStore(cfg.UserConfig.Path, cc.DefaultHostname, log)

	prober := discovery.NewProber(
		opener,
		identity.NewSystemProbe(cc.IdentityTimeout, log),
		&http.Client{},
		discovery.Config{
			MaxUSBIndex:   cc.MaxUSBIndex,
			OpenTimeout:   cc.OpenTimeout,
			Concurrency:   cc.ProbeConcurrency,
			StreamPath:    cc.StreamPath,
			DetectTimeout: cc.NetworkDetectTimeout,
			DefaultWidth:  cc.DefaultWidth,
			DefaultHeight: cc.DefaultHeight,
		},
		log,
	)

	pipeline := capture.NewPipeline(
		opener,
		&http.Client{},
		capture.Config{
			Quality:        cc.CaptureQuality,
			OpenTimeout:    cc.CaptureTimeout,
			NetworkTimeout: cc.NetworkCaptureTimeout,
		},
		log,
	)

	return manager.New(cc, manager.Deps{
		Opener:    opener,
		Prober:    prober,
		Capturer:  pipeline,
		Processor: opencv.NewProcessor(cc.CaptureQuality, log),
		Store:     store,
		Metrics:   reg,
		Client:    &http.Client{Timeout: cc.NetworkFetchTimeout},
	}, log)
}

func portOf(listen string) string {
	_, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "8000"
	}
	return port
}

// printEndpoints prints available API endpoints
func printEndpoints(listen string) {
	host, port, err := net.SplitHostPort(listen)
	if err != nil || host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	baseURL := fmt.Sprintf("http://%s:%s", host, port)

	fmt.Println("\nAPI Endpoints:")
	fmt.Println("────────────────────────────────────────────────")
	fmt.Printf("  Health Check:     GET  %s/api/v1/health\n", baseURL)
	fmt.Printf("  List Cameras:     GET  %s/api/v1/cameras\n", baseURL)
	fmt.Printf("  Detect Cameras:   POST %s/api/v1/cameras/detect\n", baseURL)
	fmt.Printf("  Detect (SSE):     POST %s/api/v1/cameras/detect/stream\n", baseURL)
	fmt.Printf("  Live Preview:     GET  %s/api/v1/cameras/{index}/stream\n", baseURL)
	fmt.Printf("  Metrics:          GET  %s/metrics\n", baseURL)
	fmt.Println("────────────────────────────────────────────────")

	fmt.Println("\nExample Requests:")
	fmt.Println("\n1. Detect and select cameras:")
	fmt.Printf("   curl -X POST %s/api/v1/cameras/detect\n", baseURL)
	fmt.Printf(`   curl -X POST %s/api/v1/cameras/select \
     -H "Content-Type: application/json" \
     -d '{"indices": [0, 1000]}'
`, baseURL)

	fmt.Println("\n2. Set a region and capture:")
	fmt.Printf(`   curl -X PUT %s/api/v1/cameras/0/region \
     -H "Content-Type: application/json" \
     -d '{"x": 100, "y": 80, "width": 320, "height": 240}'
`, baseURL)
	fmt.Printf("   curl -X POST %s/api/v1/cameras/0/capture?processed=true -o shell.jpg\n", baseURL)
	fmt.Println("────────────────────────────────────────────────")
}
