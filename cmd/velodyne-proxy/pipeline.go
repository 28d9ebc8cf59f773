package main

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/banshee-data/velodyne.proxy/internal/config"
	"github.com/banshee-data/velodyne.proxy/internal/lidar"
	"github.com/banshee-data/velodyne.proxy/internal/lidar/calibration"
	"github.com/banshee-data/velodyne.proxy/internal/lidar/encode"
	"github.com/banshee-data/velodyne.proxy/internal/lidar/monitor"
	"github.com/banshee-data/velodyne.proxy/internal/lidar/network"
	"github.com/banshee-data/velodyne.proxy/internal/lidar/output"
)

// DenseBufferName is the handle under which the dense point buffer is published.
const DenseBufferName = "velodyne-dense"

// pipeline is everything between the socket and the consumers.
type pipeline struct {
	cfg       *config.DecoderConfig
	table     *calibration.Table
	decoder   *lidar.Decoder
	buffer    *output.SharedBuffer
	history   *monitor.FrameHistory
	forwarder *network.CompactForwarder
	stats     *network.PacketStats
}

// loadCalibration returns a table for model. A missing or partial file is
// logged and decoding continues with zeroed corrections.
func loadCalibration(path string, model calibration.Model) (*calibration.Table, error) {
	if path == "" {
		if model == calibration.ModelVLP16 {
			log.Printf("Using embedded VLP-16 calibration")
			return calibration.LoadEmbeddedVLP16()
		}
		lidar.Opsf("no calibration file for %s: all corrections are zero", model)
		return calibration.Empty(model), nil
	}

	table, err := calibration.Load(path, model)
	if err != nil {
		if !errors.Is(err, calibration.ErrCalibrationMissing) {
			return nil, err
		}
		lidar.Opsf("calibration: %v", err)
		return table, nil
	}
	if err := table.Warn(); err != nil {
		lidar.Opsf("calibration %s: %v", path, err)
	}
	log.Printf("Loaded %s calibration from %s", model, path)
	return table, nil
}

// newPipeline builds the decoder and its outputs. The forwarder is dialled
// but not started.
func newPipeline(cfg *config.DecoderConfig, logger *log.Logger) (*pipeline, error) {
	model := cfg.GetSensorModel()
	table, err := loadCalibration(cfg.GetCalibrationFile(), model)
	if err != nil {
		return nil, err
	}

	settings := cfg.DecoderSettings()
	p := &pipeline{
		cfg:     cfg,
		table:   table,
		history: monitor.NewFrameHistory(600),
		stats:   network.NewPacketStats(),
	}

	if settings.Dense {
		p.buffer, err = output.NewSharedBuffer(DenseBufferName, encode.DenseSize(settings.MaxPoints))
		if err != nil {
			return nil, err
		}
	}

	pubs := output.Multi{p.history, output.NewLogPublisher(cfg.GetLogInterval(), logger)}
	if addr := cfg.GetForwardAddress(); addr != "" && settings.Compact {
		p.forwarder, err = network.NewCompactForwarder(addr, 1024, p.stats, cfg.GetLogInterval())
		if err != nil {
			return nil, fmt.Errorf("compact forwarder: %w", err)
		}
		pubs = append(pubs, p.forwarder)
	}

	p.decoder, err = lidar.NewDecoder(settings, table, p.buffer, pubs)
	if err != nil {
		if p.forwarder != nil {
			p.forwarder.Close()
		}
		return nil, err
	}
	p.stats.Frames = func() uint64 { return p.decoder.Stats().Frames }

	log.Printf("%s decoder run %s: max %d points/frame, dense=%v compact=%v (intensity %s, %d bits, %s distance)",
		model, p.decoder.RunID(), settings.MaxPoints, settings.Dense, settings.Compact,
		settings.IntensityMode, settings.IntensityBits, settings.DistanceEncoding)
	return p, nil
}

// debugServer returns the debug page state for this pipeline.
func (p *pipeline) debugServer(version string) *monitor.Server {
	return &monitor.Server{
		Decoder: p.decoder,
		History: p.history,
		Buffer:  p.buffer,
		Version: version,
	}
}

// logSummary reports the decoder counters once, e.g. at shutdown.
func (p *pipeline) logSummary(elapsed time.Duration) {
	st := p.decoder.Stats()
	log.Printf("Decoder run %s: %d packets (%d malformed), %d frames, %d dense, %d compact records in %v",
		st.RunID, st.Packets, st.Malformed, st.Frames, st.DenseFrames, st.CompactRecords, elapsed.Round(time.Millisecond))
	if st.DenseOverflows > 0 || st.CompactOverflows > 0 || st.OutputUnavailable > 0 {
		lidar.Opsf("frames truncated: dense=%d compact=%d; dense frames dropped on unavailable output: %d",
			st.DenseOverflows, st.CompactOverflows, st.OutputUnavailable)
	}
}

func (p *pipeline) Close() error {
	if p.forwarder != nil {
		return p.forwarder.Close()
	}
	return nil
}
