package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"vocald/internal/cache"
	"vocald/internal/common/fsutil"
	"vocald/internal/config"
	"vocald/internal/device"
	"vocald/internal/httpapi"
	"vocald/internal/registry"
	"vocald/internal/service"
	"vocald/pkg/types"
)

func main() {
	// Flags with environment variable defaults
	defaultAddr := os.Getenv("VOCALD_ADDR")
	defaultModelsDir := os.Getenv("VOCALD_MODELS_DIR")
	addr := flag.String("addr", defaultAddr, "HTTP listen address, e.g. :8088")
	modelsDir := flag.String("models-dir", defaultModelsDir, "Directory for downloaded model artifacts")
	configPath := flag.String("config", os.Getenv("VOCALD_CONFIG"), "Optional config file (.yaml/.json/.toml)")
	keepAlive := flag.String("keep-alive", "", "Idle window before a warm adapter is unloaded, e.g. 5m")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	flag.Parse()

	cfg := config.Config{}
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", *configPath, err)
			os.Exit(1)
		}
		cfg = loaded
	}
	// Flags override file values.
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *modelsDir != "" {
		cfg.ModelsDir = *modelsDir
	}
	if *keepAlive != "" {
		cfg.KeepAlive = *keepAlive
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	n, err := cfg.Normalize()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(n.LogLevel)

	root, err := fsutil.ExpandHome(n.ModelsDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", n.ModelsDir).Msg("cannot resolve models dir")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", root).Msg("cannot create models dir")
	}

	profile := device.Detect(device.Options{
		HighVRAMMB: n.HighVRAMMB,
		LowVRAMMB:  n.LowVRAMMB,
	}, log)

	meta, err := registry.OpenMetaCache(filepath.Join(root, ".meta"))
	if err != nil {
		log.Warn().Err(err).Msg("metadata cache unavailable, continuing without it")
		meta = nil
	}

	reg := registry.New(registry.Config{
		Providers: []registry.Provider{
			registry.NewHFProvider(root),
			registry.NewLocalProvider(root),
		},
		Meta:            meta,
		Log:             log,
		DownloadTimeout: n.DownloadTimeout,
	})

	cacheCtx, cacheCancel := context.WithCancel(context.Background())
	defer cacheCancel()
	adapterCache := cache.New(cache.Config{
		Resolver:  reg,
		Profile:   profile,
		KeepAlive: n.KeepAlive,
		BinPaths: map[types.Backend]string{
			types.BackendWhisper: n.WhisperBin,
			types.BackendPiper:   n.PiperBin,
		},
		Log: log,
	})
	adapterCache.StartJanitor(cacheCtx, n.EvictInterval)
	reg.SetDeleteHook(adapterCache.Evict)

	svc := service.New(reg, adapterCache, log)

	httpapi.SetLogger(log)
	httpapi.SetCORSOptions(n.CORSEnabled, n.CORSOrigins,
		[]string{"GET", "POST", "DELETE", "OPTIONS"},
		[]string{"Accept", "Content-Type"})
	baseCtx, baseCancel := context.WithCancel(context.Background())
	httpapi.SetBaseContext(baseCtx)

	mux := httpapi.NewMux(svc)
	srv := &http.Server{Addr: n.Addr, Handler: mux}

	go func() {
		log.Info().Str("addr", n.Addr).Str("models_dir", root).
			Str("precision", string(profile.Precision)).Msg("vocald listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")

	baseCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	cacheCancel()
	adapterCache.Close()
	if meta != nil {
		meta.Close()
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
