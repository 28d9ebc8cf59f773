package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/velodyne.proxy/internal/config"
	"github.com/banshee-data/velodyne.proxy/internal/lidar"
	"github.com/banshee-data/velodyne.proxy/internal/lidar/network"
	"github.com/banshee-data/velodyne.proxy/internal/version"
)

var (
	configFile     = flag.String("config", "", "Path to a JSON decoder config (see config/decoder.defaults.json)")
	sensorModel    = flag.String("sensor", "", "Sensor model: vlp16 or hdl64")
	calibFile      = flag.String("calibration", "", "Velodyne db.xml calibration file (VLP-16 defaults to the embedded table)")
	udpAddress     = flag.String("udp-addr", "", "UDP listen address for sensor packets (default :2368)")
	rcvBuf         = flag.Int("rcvbuf", 0, "UDP receive buffer size in bytes (default 4MB)")
	forwardAddr    = flag.String("forward-addr", "", "Send compact records to this host:port")
	debugListen    = flag.String("debug-listen", "", "Debug HTTP listen address (default 127.0.0.1:8082)")
	maxPoints      = flag.Int("max-points", 0, "Maximum points per frame on each output path")
	intensityMode  = flag.String("intensity", "", "Compact intensity mode: none, combined or both")
	intensityBits  = flag.Int("intensity-bits", 0, "Intensity bits packed into combined compact words (1-8)")
	distanceEnc    = flag.String("distance", "", "Compact distance encoding: fine (2mm) or coarse (1cm)")
	enableDense    = flag.Bool("dense", true, "Write the dense point buffer")
	enableCompact  = flag.Bool("compact", true, "Produce compact records")
	logInterval    = flag.Duration("log-interval", 0, "Statistics logging interval (default 1m)")
	pcapFile       = flag.String("pcap", "", "Replay a capture file instead of listening (requires -tags=pcap)")
	pcapSpeed      = flag.Float64("pcap-speed", 0, "Replay speed relative to capture time; 0 replays as fast as possible")
	diagLog        = flag.Bool("diag", false, "Log malformed packets and other per-packet diagnostics")
	traceLog       = flag.Bool("trace", false, "Log every emitted frame")
	showVersion    = flag.Bool("version", false, "Print the version and exit")
	printConfig    = flag.Bool("print-config", false, "Print the effective configuration as JSON and exit")
)

// applyFlags overlays explicitly set flags onto cfg.
func applyFlags(fs *flag.FlagSet, cfg *config.DecoderConfig) {
	fs.Visit(func(f *flag.Flag) {
		v := f.Value.String()
		switch f.Name {
		case "sensor":
			cfg.SensorModel = &v
		case "calibration":
			cfg.CalibrationFile = &v
		case "udp-addr":
			cfg.UDPAddress = &v
		case "forward-addr":
			cfg.ForwardAddress = &v
		case "debug-listen":
			cfg.DebugAddress = &v
		case "intensity":
			cfg.IntensityMode = &v
		case "distance":
			cfg.DistanceEncoding = &v
		case "log-interval":
			cfg.LogInterval = &v
		case "rcvbuf", "max-points", "intensity-bits":
			n, err := strconv.Atoi(v)
			if err != nil {
				return
			}
			switch f.Name {
			case "rcvbuf":
				cfg.RcvBuf = &n
			case "max-points":
				cfg.MaxPointsPerFrame = &n
			default:
				cfg.IntensityBits = &n
			}
		case "dense", "compact":
			b, err := strconv.ParseBool(v)
			if err != nil {
				return
			}
			if f.Name == "dense" {
				cfg.EnableDense = &b
			} else {
				cfg.EnableCompact = &b
			}
		}
	})
}

// loadConfig reads the optional config file and applies flag overrides.
func loadConfig(fs *flag.FlagSet, path string) (*config.DecoderConfig, error) {
	cfg := config.EmptyDecoderConfig()
	if path != "" {
		var err error
		cfg, err = config.LoadDecoderConfig(path)
		if err != nil {
			return nil, err
		}
	}
	applyFlags(fs, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Main
func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig(flag.CommandLine, *configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *printConfig {
		out, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			log.Fatalf("Failed to encode configuration: %v", err)
		}
		fmt.Println(string(out))
		return
	}

	logs := lidar.LogWriters{Ops: os.Stderr}
	if *diagLog {
		logs.Diag = os.Stderr
	}
	if *traceLog {
		logs.Trace = os.Stderr
	}
	lidar.SetLogWriters(logs)

	log.Printf("Starting %s", version.String())
	p, err := newPipeline(cfg, log.Default())
	if err != nil {
		log.Fatalf("Failed to build decoder: %v", err)
	}
	defer p.Close()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	start := time.Now()

	if p.forwarder != nil {
		p.forwarder.Start(ctx)
	}

	if *pcapFile != "" {
		sum, err := network.ReadPCAPFile(ctx, *pcapFile, udpPort(cfg.GetUDPAddress()), p.decoder, p.stats,
			network.ReplayOptions{SpeedMultiplier: *pcapSpeed})
		if err != nil && err != context.Canceled {
			log.Fatalf("PCAP replay failed: %v", err)
		}
		p.decoder.Flush()
		log.Printf("Replayed %d packets covering %v of capture", sum.Packets, sum.CaptureDuration())
		p.logSummary(time.Since(start))
		stop()
		return
	}

	// UDP listener routine
	listener := network.NewUDPListener(network.UDPListenerConfig{
		Address:     cfg.GetUDPAddress(),
		RcvBuf:      cfg.GetRcvBuf(),
		LogInterval: cfg.GetLogInterval(),
		Stats:       p.stats,
		Decoder:     p.decoder,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := listener.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("UDP listener error: %v", err)
			stop()
		}
		log.Print("UDP listener routine terminated")
	}()

	// Debug HTTP server routine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"status": "ok", "service": "velodyne-proxy", "state": %q, "timestamp": "%s"}`,
				p.decoder.State(), time.Now().UTC().Format(time.RFC3339))
		})
		p.debugServer(version.String()).AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    cfg.GetDebugAddress(),
			Handler: mux,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("debug server failed: %v", err)
			}
		}()
		log.Printf("Debug pages at http://%s/debug/", cfg.GetDebugAddress())

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			server.Close()
		}
	}()

	wg.Wait()
	p.decoder.Flush()
	p.logSummary(time.Since(start))
	log.Printf("Graceful shutdown complete")
}

// udpPort extracts the port used to filter a capture, falling back to the
// Velodyne default.
func udpPort(addr string) int {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 2368
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return 2368
	}
	return n
}
