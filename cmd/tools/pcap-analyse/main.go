//go:build pcap
// +build pcap

// Package main replays a Velodyne capture through the decoder and reports
// per-frame statistics: points per revolution, compact record sizes, range and
// azimuth coverage. Results are written as JSON, and optionally as PNG plots.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/banshee-data/velodyne.proxy/internal/config"
	"github.com/banshee-data/velodyne.proxy/internal/lidar"
	"github.com/banshee-data/velodyne.proxy/internal/lidar/calibration"
	"github.com/banshee-data/velodyne.proxy/internal/lidar/encode"
	"github.com/banshee-data/velodyne.proxy/internal/lidar/network"
	"github.com/banshee-data/velodyne.proxy/internal/lidar/output"
	"github.com/banshee-data/velodyne.proxy/internal/version"
)

// Config holds configuration for the analysis.
type Config struct {
	PCAPFile    string
	OutputDir   string
	ConfigFile  string
	Sensor      string
	Calibration string
	UDPPort     int
	MaxPackets  int
	Speed       float64
	ExportJSON  bool
	Plot        bool
	Quiet       bool
}

// AnalysisResult is the JSON document written for each run.
type AnalysisResult struct {
	Tool             string        `json:"tool"`
	PCAPFile         string        `json:"pcap_file"`
	Sensor           string        `json:"sensor"`
	RunID            string        `json:"run_id"`
	CaptureSecs      float64       `json:"capture_secs"`
	WallClockMs      int64         `json:"wall_clock_ms"`
	Packets          int           `json:"packets"`
	Malformed        uint64        `json:"malformed_packets"`
	Bytes            int64         `json:"bytes"`
	DenseOverflows   uint64        `json:"dense_overflows"`
	CompactOverflows uint64        `json:"compact_overflows"`
	Analysis         FrameAnalysis `json:"analysis"`
	HeapAllocBytes   uint64        `json:"heap_alloc_bytes"`
	NumGC            uint32        `json:"num_gc"`
	Frames           []FrameRecord `json:"frames,omitempty"`
}

func main() {
	cfg := parseFlags()

	if cfg.PCAPFile == "" {
		fmt.Fprintln(os.Stderr, "Error: PCAP file is required")
		flag.Usage()
		os.Exit(1)
	}
	if _, err := os.Stat(cfg.PCAPFile); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: PCAP file not found: %s\n", cfg.PCAPFile)
		os.Exit(1)
	}
	if cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
			log.Fatalf("Failed to create output directory: %v", err)
		}
	}
	if cfg.Quiet {
		log.SetOutput(io.Discard)
	}

	result, err := analysePCAP(cfg)
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}
	if !cfg.Quiet {
		printSummary(result)
	}
	if err := exportResults(cfg, result); err != nil {
		log.Fatalf("Export failed: %v", err)
	}
}

func parseFlags() Config {
	cfg := Config{}

	flag.StringVar(&cfg.PCAPFile, "pcap", "", "Path to PCAP file (required)")
	flag.StringVar(&cfg.OutputDir, "output", ".", "Output directory for results")
	flag.StringVar(&cfg.ConfigFile, "config", "", "JSON decoder config (defaults apply when empty)")
	flag.StringVar(&cfg.Sensor, "sensor", "", "Override the sensor model: vlp16 or hdl64")
	flag.StringVar(&cfg.Calibration, "calibration", "", "Velodyne db.xml calibration file")
	flag.IntVar(&cfg.UDPPort, "port", 2368, "UDP port carrying sensor packets")
	flag.IntVar(&cfg.MaxPackets, "max-packets", 0, "Stop after this many packets (0 = whole capture)")
	flag.Float64Var(&cfg.Speed, "speed", 0, "Replay speed relative to capture time (0 = as fast as possible)")
	flag.BoolVar(&cfg.ExportJSON, "json", true, "Export results to JSON")
	flag.BoolVar(&cfg.Plot, "plot", true, "Write PNG plots of per-frame statistics")
	flag.BoolVar(&cfg.Quiet, "quiet", false, "Suppress logging and the summary")

	flag.Parse()
	return cfg
}

// decoderConfig loads the optional config file and applies the command line
// sensor and calibration overrides.
func decoderConfig(cfg Config) (*config.DecoderConfig, error) {
	dc := config.EmptyDecoderConfig()
	if cfg.ConfigFile != "" {
		var err error
		if dc, err = config.LoadDecoderConfig(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}
	if cfg.Sensor != "" {
		dc.SensorModel = &cfg.Sensor
	}
	if cfg.Calibration != "" {
		dc.CalibrationFile = &cfg.Calibration
	}
	// The analyser reads points back from the dense buffer.
	enabled := true
	dc.EnableDense = &enabled
	return dc, dc.Validate()
}

func loadTable(dc *config.DecoderConfig) (*calibration.Table, error) {
	model := dc.GetSensorModel()
	path := dc.GetCalibrationFile()
	if path == "" {
		if model == calibration.ModelVLP16 {
			return calibration.LoadEmbeddedVLP16()
		}
		log.Printf("No calibration for %s: corrections default to zero", model)
		return calibration.Empty(model), nil
	}
	table, err := calibration.Load(path, model)
	if err != nil {
		log.Printf("Warning: %v", err)
	}
	return table, nil
}

func analysePCAP(cfg Config) (*AnalysisResult, error) {
	dc, err := decoderConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("decoder config: %w", err)
	}
	table, err := loadTable(dc)
	if err != nil {
		return nil, err
	}

	settings := dc.DecoderSettings()
	buffer, err := output.NewSharedBuffer("pcap-analyse", encode.DenseSize(settings.MaxPoints))
	if err != nil {
		return nil, err
	}
	recorder := newFrameRecorder(buffer)
	decoder, err := lidar.NewDecoder(settings, table, buffer, recorder)
	if err != nil {
		return nil, err
	}

	stats := network.NewPacketStats()
	stats.Frames = func() uint64 { return decoder.Stats().Frames }

	log.Printf("Analysing %s as %s (run %s)", cfg.PCAPFile, dc.GetSensorModel(), decoder.RunID())
	start := time.Now()
	summary, err := network.ReadPCAPFile(context.Background(), cfg.PCAPFile, cfg.UDPPort, decoder, stats,
		network.ReplayOptions{SpeedMultiplier: cfg.Speed, MaxPackets: cfg.MaxPackets})
	if err != nil {
		return nil, err
	}
	decoder.Flush()
	wall := time.Since(start)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	frames := recorder.Frames()
	st := decoder.Stats()
	return &AnalysisResult{
		Tool:             version.String(),
		PCAPFile:         cfg.PCAPFile,
		Sensor:           dc.GetSensorModel().String(),
		RunID:            st.RunID,
		CaptureSecs:      summary.CaptureDuration().Seconds(),
		WallClockMs:      wall.Milliseconds(),
		Packets:          summary.Packets,
		Malformed:        st.Malformed,
		Bytes:            summary.Bytes,
		DenseOverflows:   st.DenseOverflows,
		CompactOverflows: st.CompactOverflows,
		Analysis:         analyseFrames(frames, summary.CaptureDuration()),
		HeapAllocBytes:   mem.HeapAlloc,
		NumGC:            mem.NumGC,
		Frames:           frames,
	}, nil
}

func printSummary(r *AnalysisResult) {
	fmt.Println()
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("PCAP Analysis: %s\n", filepath.Base(r.PCAPFile))
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Sensor:            %s (run %s)\n", r.Sensor, r.RunID)
	fmt.Printf("Capture:           %.1fs, processed in %dms\n", r.CaptureSecs, r.WallClockMs)
	fmt.Printf("Packets:           %s (%d malformed)\n", network.FormatWithCommas(int64(r.Packets)), r.Malformed)
	fmt.Printf("Frames:            %d (%d empty), %.2f Hz\n", r.Analysis.Frames, r.Analysis.EmptyFrames, r.Analysis.FrameRateHz)
	fmt.Printf("Points/frame:      %s\n", r.Analysis.PointsPerFrame)
	fmt.Printf("Compact B/frame:   %s\n", r.Analysis.CompactBytes)
	fmt.Printf("Azimuth coverage:  %s\n", r.Analysis.AzimuthCoverage)
	fmt.Printf("Mean range (m):    %.2f\n", r.Analysis.MeanRange.Mean)
	if r.DenseOverflows > 0 || r.CompactOverflows > 0 {
		fmt.Printf("Overflows:         dense=%d compact=%d\n", r.DenseOverflows, r.CompactOverflows)
	}
	fmt.Println(strings.Repeat("=", 60))
}

func exportResults(cfg Config, r *AnalysisResult) error {
	base := strings.TrimSuffix(filepath.Base(cfg.PCAPFile), filepath.Ext(cfg.PCAPFile))

	if cfg.ExportJSON {
		path := filepath.Join(cfg.OutputDir, base+"_analysis.json")
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		log.Printf("Wrote %s", path)
	}

	if cfg.Plot && len(r.Frames) > 0 {
		paths, err := writePlots(cfg.OutputDir, base, r.Frames)
		if err != nil {
			return err
		}
		for _, p := range paths {
			log.Printf("Wrote %s", p)
		}
	}
	return nil
}
