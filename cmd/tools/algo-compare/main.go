// Command algo-compare runs every heart-rate algorithm against the same
// seeded scenario and reports how often each one locks, how far its estimate
// is from the target and what it costs per evaluation.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/banshee-data/pulse.lab/internal/config"
	"github.com/banshee-data/pulse.lab/internal/monitoring"
	"github.com/banshee-data/pulse.lab/internal/ppg"
)

// Config holds configuration for the algorithm comparison.
type Config struct {
	ConfigFile string
	OutputDir  string
	OutputJSON string
	Plots      bool
	Verbose    bool
	Duration   time.Duration
	Seed       int64
	Emitter    string
	Params     ppg.Params
}

func main() {
	cfg := parseFlags()
	monitoring.SetVerbose(cfg.Verbose)

	if cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
			log.Fatalf("Failed to create output directory: %v", err)
		}
	}

	simCfg := config.EmptySimConfig()
	if cfg.ConfigFile != "" {
		loaded, err := config.LoadSimConfig(cfg.ConfigFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		simCfg = loaded
	}

	scenario, err := newScenario(cfg, simCfg)
	if err != nil {
		log.Fatalf("Invalid scenario: %v", err)
	}

	result, err := runComparison(scenario)
	if err != nil {
		log.Fatalf("Comparison failed: %v", err)
	}
	printResults(result)

	if cfg.OutputJSON != "" {
		outputPath := cfg.OutputJSON
		if cfg.OutputDir != "" {
			outputPath = filepath.Join(cfg.OutputDir, cfg.OutputJSON)
		}
		if err := exportJSON(result, outputPath); err != nil {
			log.Printf("Warning: failed to export JSON: %v", err)
		} else {
			log.Printf("Results exported to: %s", outputPath)
		}
	}
}

func parseFlags() Config {
	cfg := Config{Params: ppg.DefaultParams()}

	flag.StringVar(&cfg.ConfigFile, "config", "", "Path to a JSON tuning file")
	flag.StringVar(&cfg.OutputDir, "output", "", "Output directory for results and plots")
	flag.StringVar(&cfg.OutputJSON, "json", "", "Output JSON filename (e.g., results.json)")
	flag.BoolVar(&cfg.Plots, "plots", false, "Write PNG waveform and estimate plots to -output")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Enable verbose logging")
	flag.DurationVar(&cfg.Duration, "duration", 60*time.Second, "Simulated run length per algorithm")
	flag.Int64Var(&cfg.Seed, "seed", 1, "Random seed shared by every run")
	flag.StringVar(&cfg.Emitter, "emitter", "red_ir", "Emitter: green_only, red_ir or multi")
	flag.IntVar(&cfg.Params.HeartRateBPM, "hr", cfg.Params.HeartRateBPM, "Target heart rate (bpm)")
	flag.IntVar(&cfg.Params.SpO2Target, "spo2", cfg.Params.SpO2Target, "Target SpO2 (%)")
	flag.Float64Var(&cfg.Params.NoiseLevel, "noise", cfg.Params.NoiseLevel, "Noise level (0..1)")
	flag.Float64Var(&cfg.Params.MotionArtifactLevel, "motion", cfg.Params.MotionArtifactLevel, "Motion artifact level (0..1)")
	flag.Float64Var(&cfg.Params.FilterCutoffHz, "cutoff", cfg.Params.FilterCutoffHz, "Filter cutoff (Hz)")

	flag.Parse()
	return cfg
}

func printResults(result *ComparisonResult) {
	fmt.Println("\n=== Algorithm Comparison Results ===")
	fmt.Printf("Emitter: %s\n", result.Emitter)
	fmt.Printf("Target: %d bpm, %d%% SpO2, noise %.2f, motion %.2f\n",
		result.Params.HeartRateBPM, result.Params.SpO2Target, result.Params.NoiseLevel, result.Params.MotionArtifactLevel)
	fmt.Printf("Simulated: %.1fs per algorithm, seed %d\n", result.SimulatedSecs, result.Seed)
	fmt.Printf("Processing Time: %dms\n", result.ProcessingTimeMs)

	fmt.Println("\n--- Per-Algorithm Statistics ---")
	for _, stats := range result.PerAlgorithm {
		fmt.Printf("\n%s (%s):\n", stats.Name, stats.Algorithm)
		fmt.Printf("  Lock ratio: %.1f%% (%d/%d ticks)\n", stats.LockRatio*100, stats.EstimateTicks, stats.Ticks)
		if stats.EstimateTicks > 0 {
			fmt.Printf("  Mean |error|: %.2f bpm (max %d)\n", stats.MeanAbsErrorBPM, stats.MaxAbsErrorBPM)
		}
		if stats.SpO2Ticks > 0 {
			fmt.Printf("  Mean SpO2 |error|: %.2f%%\n", stats.MeanAbsErrorSpO2)
		}
		fmt.Printf("  Avg Evaluation: %.2f µs\n", stats.AvgEvalUs)
		statuses := make([]string, 0, len(stats.Statuses))
		for status := range stats.Statuses {
			statuses = append(statuses, status)
		}
		sort.Strings(statuses)
		for _, status := range statuses {
			fmt.Printf("  %-12s %d\n", status+":", stats.Statuses[status])
		}
	}
	for _, p := range result.Plots {
		fmt.Printf("\nPlot: %s", p)
	}
	fmt.Println()
}

func exportJSON(result *ComparisonResult, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}
