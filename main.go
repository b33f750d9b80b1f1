package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/thushan/mcpmux/internal/config"
	"github.com/thushan/mcpmux/internal/logger"
	"github.com/thushan/mcpmux/internal/mux"
	"github.com/thushan/mcpmux/internal/version"
	"github.com/thushan/mcpmux/pkg/format"
	"github.com/thushan/mcpmux/pkg/nerdstats"
	"github.com/thushan/mcpmux/pkg/profiler"
	"github.com/thushan/mcpmux/theme"
)

func main() {
	startTime := time.Now()
	vlog := log.New(log.Writer(), "", 0)
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.PrintVersionInfo(true, vlog)
		os.Exit(0)
	}
	version.PrintVersionInfo(false, vlog)

	lcfg := buildLoggerConfig()
	logInstance, cleanup, err := logger.New(lcfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()
	slog.SetDefault(logInstance)

	styledLogger := logger.NewStyledLogger(logInstance, theme.GetTheme(lcfg.Theme))

	preset := envOrDefault("MCPMUX_PRESET", "development")
	cfg, err := config.Load(preset, func() {
		styledLogger.Info("configuration file changed, reload required for most settings to take effect")
	})
	if err != nil {
		logger.FatalWithLogger(logInstance, "failed to load configuration", "error", err)
	}

	warnings, err := cfg.Validate()
	if err != nil {
		logger.FatalWithLogger(logInstance, "invalid configuration", "error", err)
	}
	for _, w := range warnings {
		styledLogger.Warn("configuration warning", "warning", w)
	}

	styledLogger.Info("initialising", "version", version.Version, "pid", os.Getpid(), "preset", preset)

	if envBoolOrDefault("MCPMUX_PROFILE", false) {
		profiler.InitialiseProfiler()
		styledLogger.Info("pprof profiler listening", "addr", "localhost:19841")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		styledLogger.Info("shutdown signal received", "signal", sig.String())
		cancel()
	}()

	m := mux.New(cfg.ToMuxConfig(), styledLogger)
	if err := m.Initialize(ctx, cfg.ServerConfigs()); err != nil {
		logger.FatalWithLogger(logInstance, "failed to initialise multiplexer", "error", err)
	}

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := m.Shutdown(shutdownCtx); err != nil {
		styledLogger.Error("error during shutdown", "error", err)
	}

	reportProcessStats(styledLogger, startTime)
	styledLogger.Info("mcpmux has shutdown")
}

func reportProcessStats(logger *logger.StyledLogger, startTime time.Time) {
	runtime.GC()

	stats := nerdstats.Snapshot(startTime)

	logger.Info("Process Memory Stats",
		"heap_alloc", format.Bytes(stats.HeapAlloc),
		"heap_sys", format.Bytes(stats.HeapSys),
		"heap_inuse", format.Bytes(stats.HeapInuse),
		"heap_released", format.Bytes(stats.HeapReleased),
		"stack_inuse", format.Bytes(stats.StackInuse),
		"total_alloc", format.Bytes(stats.TotalAlloc),
		"memory_pressure", stats.GetMemoryPressure(),
	)

	logger.Info("Process Allocation Stats",
		"total_mallocs", stats.Mallocs,
		"total_frees", stats.Frees,
		"net_objects", int64(stats.Mallocs)-int64(stats.Frees),
	)

	if stats.NumGC > 0 {
		logger.Info("Garbage Collection Stats",
			"num_gc_cycles", stats.NumGC,
			"last_gc", stats.LastGC.Format(time.RFC3339),
			"total_gc_time", format.Duration(stats.TotalGCTime),
			"gc_cpu_fraction", fmt.Sprintf("%.4f%%", stats.GCCPUFraction*100),
		)
	}

	logger.Info("Goroutine Stats",
		"num_goroutines", stats.NumGoroutines,
		"goroutine_health", stats.GetGoroutineHealthStatus(),
		"num_cgo_calls", stats.NumCgoCall,
	)

	logger.Info("Runtime Stats",
		"uptime", format.Duration(stats.Uptime),
		"go_version", stats.GoVersion,
		"num_cpu", stats.NumCPU,
		"gomaxprocs", stats.GOMAXPROCS,
	)

	logger.Info("Process Health Summary",
		"memory_pressure", stats.GetMemoryPressure(),
		"goroutine_status", stats.GetGoroutineHealthStatus(),
		"uptime", format.Duration(stats.Uptime),
		"avg_gc_pause", nerdstats.CalculateAverageGCPause(stats),
	)
}

// buildLoggerConfig creates logger config from environment variables with defaults
func buildLoggerConfig() *logger.Config {
	return &logger.Config{
		Level:      envOrDefault("MCPMUX_LOG_LEVEL", "info"),
		FileOutput: envBoolOrDefault("MCPMUX_FILE_OUTPUT", true),
		LogDir:     envOrDefault("MCPMUX_LOG_DIR", "./logs"),
		MaxSize:    envIntOrDefault("MCPMUX_MAX_SIZE", 100),
		MaxBackups: envIntOrDefault("MCPMUX_MAX_BACKUPS", 5),
		MaxAge:     envIntOrDefault("MCPMUX_MAX_AGE", 30),
		Theme:      envOrDefault("MCPMUX_THEME", "default"),
		PrettyLogs: envBoolOrDefault("MCPMUX_PRETTY_LOGS", true),
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBoolOrDefault(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
