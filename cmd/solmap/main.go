package main

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/ChenXin-2009/solmap-sub004/internal/api"
	"github.com/ChenXin-2009/solmap-sub004/internal/auth"
	"github.com/ChenXin-2009/solmap-sub004/internal/catalog"
	"github.com/ChenXin-2009/solmap-sub004/internal/metrics"
	"github.com/ChenXin-2009/solmap-sub004/internal/sim"
	"github.com/ChenXin-2009/solmap-sub004/internal/stream"
	"github.com/ChenXin-2009/solmap-sub004/internal/trail"
)

// catalogConfig controls where the body catalog comes from.
type catalogConfig struct {
	File            string
	SourceURL       string
	CacheDir        string
	MaxFiles        int
	RefreshInterval time.Duration // 0 disables periodic refresh
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: loadLogLevel(),
	}))

	addr := os.Getenv("SOLMAP_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	catCfg := loadCatalogConfig(logger)
	store := catalog.NewStore()
	var fetcher *catalog.Fetcher
	if catCfg.SourceURL != "" {
		fetcher = catalog.NewFetcher(catCfg.SourceURL, logger)
	}
	loader := catalog.NewLoader(store, catalog.NewCache(catCfg.CacheDir, catCfg.MaxFiles), fetcher, catCfg.File, logger)
	loader.LoadInitial()

	trails := trail.NewManager(loadTrailConfig(logger), logger)

	simCfg := loadSimConfig(logger)
	simulation := sim.New(store, trails, simCfg, logger)

	streamHandler := stream.NewHandler(simulation, trails, store, loadStreamConfig(logger), logger)

	srv := api.NewServer(addr, api.Deps{
		Sim:                simulation,
		Trails:             trails,
		Store:              store,
		Loader:             loader,
		Stream:             streamHandler,
		MaxApproachSamples: loadApproachBudget(logger),
	}, logger, authCfg)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go simulation.Start(ctx)
	go refreshCatalog(ctx, loader, catCfg.RefreshInterval, logger)

	// Background goroutine to update catalog age gauge.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if age, ok := store.Age(); ok {
					metrics.SetCatalogAge(age.Seconds())
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("starting server", "addr", addr, "auth_enabled", authCfg.Enabled, "catalog_fetch_enabled", loader.CanFetch())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// refreshCatalog fetches the remote catalog on startup and then every
// interval. The simulation picks up a new dataset on its next tick.
func refreshCatalog(ctx context.Context, loader *catalog.Loader, interval time.Duration, logger *slog.Logger) {
	if !loader.CanFetch() || interval <= 0 {
		return
	}

	refresh := func() {
		fetchCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if _, err := loader.Refresh(fetchCtx); err != nil {
			logger.Warn("catalog refresh failed, keeping current dataset", "error", err)
		}
	}

	refresh()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			refresh()
		case <-ctx.Done():
			return
		}
	}
}

func loadLogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(os.Getenv("SOLMAP_LOG_LEVEL"))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabledStr := os.Getenv("SOLMAP_AUTH_ENABLED")
	if enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, errors.New("SOLMAP_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("SOLMAP_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("SOLMAP_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

func loadCatalogConfig(logger *slog.Logger) catalogConfig {
	cfg := catalogConfig{
		File:            os.Getenv("SOLMAP_CATALOG_FILE"),
		SourceURL:       os.Getenv("SOLMAP_CATALOG_URL"),
		CacheDir:        "/tmp/solmap/catalog",
		MaxFiles:        5,
		RefreshInterval: 24 * time.Hour,
	}

	if v := os.Getenv("SOLMAP_CATALOG_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}

	if v := os.Getenv("SOLMAP_CATALOG_CACHE_FILES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SOLMAP_CATALOG_CACHE_FILES value, using default", "value", v, "default", 5)
		} else {
			cfg.MaxFiles = n
		}
	}

	if v := os.Getenv("SOLMAP_CATALOG_REFRESH_INTERVAL"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil || seconds < 0 {
			logger.Warn("invalid SOLMAP_CATALOG_REFRESH_INTERVAL value, defaulting to 86400", "value", v)
		} else {
			cfg.RefreshInterval = time.Duration(seconds) * time.Second
		}
	}

	logger.Info("catalog config",
		"file", cfg.File,
		"source_url", cfg.SourceURL,
		"cache_dir", cfg.CacheDir,
		"refresh_interval_seconds", cfg.RefreshInterval.Seconds(),
	)

	return cfg
}

func loadSimConfig(logger *slog.Logger) sim.Config {
	cfg := sim.Config{
		Workers:      runtime.NumCPU(),
		TickInterval: sim.DefaultTickInterval,
		DaysPerTick:  sim.DefaultDaysPerTick,
	}

	if v := os.Getenv("SOLMAP_SIM_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SOLMAP_SIM_WORKERS value, using default", "value", v, "default", cfg.Workers)
		} else {
			cfg.Workers = n
		}
	}

	if v := os.Getenv("SOLMAP_SIM_TICK_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 10 {
			logger.Warn("invalid SOLMAP_SIM_TICK_MS value, using default", "value", v, "default", 1000)
		} else {
			cfg.TickInterval = time.Duration(n) * time.Millisecond
		}
	}

	if v := os.Getenv("SOLMAP_SIM_DAYS_PER_TICK"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f == 0 || math.Abs(f) > sim.MaxDaysPerTick {
			logger.Warn("invalid SOLMAP_SIM_DAYS_PER_TICK value, using default", "value", v, "default", sim.DefaultDaysPerTick)
		} else {
			cfg.DaysPerTick = f
		}
	}

	if v := os.Getenv("SOLMAP_SIM_START_JD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			logger.Warn("invalid SOLMAP_SIM_START_JD value, starting at the current time", "value", v)
		} else {
			cfg.StartJD = f
		}
	}

	logger.Info("simulation config",
		"workers", cfg.Workers,
		"tick_ms", cfg.TickInterval.Milliseconds(),
		"days_per_tick", cfg.DaysPerTick,
		"start_jd", cfg.StartJD,
	)

	return cfg
}

func loadTrailConfig(logger *slog.Logger) trail.Config {
	cfg := trail.DefaultConfig()

	if v := os.Getenv("SOLMAP_TRAIL_MAX_POINTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < trail.MinMaxPoints {
			logger.Warn("invalid SOLMAP_TRAIL_MAX_POINTS value, using default", "value", v, "default", trail.DefaultMaxPoints)
		} else {
			cfg.MaxPoints = n
		}
	}

	if v := os.Getenv("SOLMAP_TRAIL_MIN_DISTANCE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		switch {
		case err != nil || f < 0:
			logger.Warn("invalid SOLMAP_TRAIL_MIN_DISTANCE value, using default", "value", v, "default", trail.DefaultMinDistance)
		case f == 0:
			cfg.MinDistance = trail.NoMinDistance
		default:
			cfg.MinDistance = f
		}
	}

	if v := os.Getenv("SOLMAP_TRAIL_TIME_SPAN"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || !(f > 0) {
			logger.Warn("invalid SOLMAP_TRAIL_TIME_SPAN value, using default", "value", v, "default", trail.DefaultTimeSpan)
		} else {
			cfg.TimeSpan = f
		}
	}

	logger.Info("trail config",
		"max_points", cfg.MaxPoints,
		"min_distance_au", cfg.MinDistance,
		"time_span_days", cfg.TimeSpan,
	)

	return cfg
}

func loadStreamConfig(logger *slog.Logger) stream.Config {
	cfg := stream.DefaultConfig()

	if v := os.Getenv("SOLMAP_STREAM_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SOLMAP_STREAM_MAX_CONCURRENT value, using default", "value", v, "default", 10)
		} else {
			cfg.MaxConcurrentPerIP = n
		}
	}

	if v := os.Getenv("SOLMAP_STREAM_MAX_TOTAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SOLMAP_STREAM_MAX_TOTAL value, using default", "value", v, "default", 1000)
		} else {
			cfg.MaxConcurrentTotal = n
		}
	}

	if v := os.Getenv("SOLMAP_STREAM_BANDWIDTH_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			logger.Warn("invalid SOLMAP_STREAM_BANDWIDTH_LIMIT value, using default", "value", v, "default", 1048576)
		} else {
			cfg.BandwidthLimit = n
		}
	}

	if v := os.Getenv("SOLMAP_STREAM_KEEPALIVE_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SOLMAP_STREAM_KEEPALIVE_INTERVAL value, using default", "value", v, "default", 30)
		} else {
			cfg.KeepaliveInterval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("SOLMAP_TRUST_PROXY"); v != "" {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid SOLMAP_TRUST_PROXY value, defaulting to false", "value", v)
		} else {
			cfg.TrustProxy = trust
		}
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"max_concurrent_total", cfg.MaxConcurrentTotal,
		"bandwidth_limit", cfg.BandwidthLimit,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
		"trust_proxy", cfg.TrustProxy,
	)

	return cfg
}

func loadApproachBudget(logger *slog.Logger) int {
	if v := os.Getenv("SOLMAP_APPROACH_MAX_SAMPLES"); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil && n > 0 {
			return n
		}
		logger.Warn("invalid SOLMAP_APPROACH_MAX_SAMPLES value, using default", "value", v, "default", api.DefaultMaxApproachSamples)
	}
	return api.DefaultMaxApproachSamples
}
