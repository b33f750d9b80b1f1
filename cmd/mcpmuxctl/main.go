// Command mcpmuxctl boots a Multiplexer from the same config a running
// daemon would use, prints a one-shot status snapshot, and exits. A thin
// non-interactive stand-in for a proper CLI: no REPL, no subcommands.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/pterm/pterm"

	"github.com/thushan/mcpmux/internal/adapter/balancer"
	"github.com/thushan/mcpmux/internal/config"
	"github.com/thushan/mcpmux/internal/logger"
	"github.com/thushan/mcpmux/internal/mux"
	"github.com/thushan/mcpmux/internal/version"
	"github.com/thushan/mcpmux/theme"
)

func main() {
	vlog := log.New(log.Writer(), "", 0)
	version.PrintVersionInfo(false, vlog)

	lcfg := &logger.Config{
		Level:      envOrDefault("MCPMUX_LOG_LEVEL", "warn"),
		FileOutput: false,
		Theme:      envOrDefault("MCPMUX_THEME", "default"),
		PrettyLogs: true,
	}
	logInstance, cleanup, err := logger.New(lcfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcpmuxctl: failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()
	slog.SetDefault(logInstance)

	styledLogger := logger.NewStyledLogger(logInstance, theme.GetTheme(lcfg.Theme))

	preset := envOrDefault("MCPMUX_PRESET", "development")
	cfg, err := config.Load(preset, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcpmuxctl: failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	timeout := 10 * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	m := mux.New(cfg.ToMuxConfig(), styledLogger)
	if err := m.Initialize(ctx, cfg.ServerConfigs()); err != nil {
		fmt.Fprintf(os.Stderr, "mcpmuxctl: failed to initialise multiplexer: %v\n", err)
		os.Exit(1)
	}

	// a single settle window before the snapshot below. The health
	// monitor's first probe fires one health-check interval after
	// Initialize, so servers read as "initializing" unless the window is
	// at least that long.
	settle := envDurationOrDefault("MCPMUX_STATUS_SETTLE", 500*time.Millisecond)
	time.Sleep(settle)

	status := m.Status()
	printStatus(status)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := m.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "mcpmuxctl: error during shutdown: %v\n", err)
	}
}

func printStatus(status mux.Status) {
	pterm.DefaultHeader.WithFullWidth().Println("mcpmux status")

	fmt.Println()
	printServerTable(status.Servers)

	fmt.Println()
	printStrategyTable(status.Strategies)

	fmt.Println()
	pterm.Info.Printfln("queue depth: %d | initialised: %t", status.QueueSize, status.Initialized)
}

func printServerTable(servers []mux.ServerStatus) {
	tableData := [][]string{
		{"SERVER", "STATE", "CIRCUIT", "ACTIVE", "TOTAL", "SUCCESS RATE"},
	}
	for _, s := range servers {
		tableData = append(tableData, []string{
			s.ID,
			s.State.String(),
			s.Circuit.State.String(),
			fmt.Sprintf("%d", s.ActiveRequests),
			fmt.Sprintf("%d", s.TotalRequests),
			fmt.Sprintf("%.1f%%", s.SuccessRate*100),
		})
	}
	if len(servers) == 0 {
		pterm.Warning.Println("no servers registered")
		return
	}
	tableString, _ := pterm.DefaultTable.WithHasHeader().WithData(tableData).Srender()
	fmt.Print(tableString)
}

func printStrategyTable(strategies []balancer.Effectiveness) {
	tableData := [][]string{
		{"STRATEGY", "DECISIONS", "SUCCESS RATE", "EFFECTIVENESS", "TREND"},
	}
	for _, s := range strategies {
		tableData = append(tableData, []string{
			s.Strategy,
			fmt.Sprintf("%d", s.Decisions),
			fmt.Sprintf("%.1f%%", s.SuccessRate*100),
			fmt.Sprintf("%.2f", s.Effectiveness),
			string(s.Trend),
		})
	}
	if len(strategies) == 0 {
		pterm.Warning.Println("no strategy decisions recorded yet")
		return
	}
	tableString, _ := pterm.DefaultTable.WithHasHeader().WithData(tableData).Srender()
	fmt.Print(tableString)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDurationOrDefault(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
