// Package monitor serves the proxy's debug pages: decoder counters, a
// frame-rate chart and a top-down view of the latest dense frame.
package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"

	"github.com/banshee-data/velodyne.proxy/internal/lidar"
	"github.com/banshee-data/velodyne.proxy/internal/lidar/encode"
	"github.com/banshee-data/velodyne.proxy/internal/lidar/geometry"
	"github.com/banshee-data/velodyne.proxy/internal/lidar/output"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"
)

// StatsSource is implemented by *lidar.Decoder.
type StatsSource interface {
	Stats() lidar.Stats
}

// Server holds the state the debug handlers read from. Any field may be nil;
// the matching page then reports that it is unavailable.
type Server struct {
	Decoder StatsSource
	History *FrameHistory
	Buffer  *output.SharedBuffer
	Version string
}

// AttachAdminRoutes registers the debug pages under /debug/ on mux.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	if s.Version != "" {
		debug.KV("Version", s.Version)
	}
	if s.Decoder != nil {
		debug.KVFunc("Decoder", func() any {
			st := s.Decoder.Stats()
			return fmt.Sprintf("%s run=%s packets=%d frames=%d malformed=%d", st.State, st.RunID, st.Packets, st.Frames, st.Malformed)
		})
	}

	debug.Handle("decoder-stats", "Decoder counters (JSON)", http.HandlerFunc(s.handleStats))
	debug.Handle("frames", "Points per frame", http.HandlerFunc(s.handleFrames))
	debug.Handle("scan", "Top-down view of the latest dense frame", http.HandlerFunc(s.handleScan))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode json response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.Decoder == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "no decoder")
		return
	}
	st := s.Decoder.Stats()
	resp := struct {
		lidar.Stats
		State  string // shadows the numeric State
		Recent []FrameSample `json:",omitempty"`
	}{Stats: st, State: st.State.String()}
	if s.History != nil {
		recent := s.History.Samples()
		if len(recent) > 10 {
			recent = recent[len(recent)-10:]
		}
		resp.Recent = recent
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "frame history disabled")
		return
	}
	samples := s.History.Samples()
	if len(samples) == 0 {
		writeJSONError(w, http.StatusNotFound, "no frames yet")
		return
	}

	xs := make([]string, len(samples))
	points := make([]opts.LineData, len(samples))
	compact := make([]opts.LineData, len(samples))
	for i, f := range samples {
		xs[i] = strconv.FormatUint(f.Seq, 10)
		points[i] = opts.LineData{Value: f.Points}
		compact[i] = opts.LineData{Value: f.CompactBytes / 2}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Velodyne frames", Width: "1000px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Points per frame", Subtitle: fmt.Sprintf("last %d frames", len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "seq"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "count"}),
	)
	line.SetXAxis(xs).
		AddSeries("dense points", points).
		AddSeries("compact words", compact)

	render(w, line)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if s.Buffer == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "dense output disabled")
		return
	}

	maxPoints := 8000
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			maxPoints = v
		}
	}

	var pts []geometry.Point
	if err := s.Buffer.Read(func(data []byte) {
		pts = encode.DecodeDense(data, make([]geometry.Point, 0, len(data)/encode.BYTES_PER_POINT))
	}); err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if len(pts) == 0 {
		writeJSONError(w, http.StatusNotFound, "no dense frame yet")
		return
	}

	stride := 1
	if len(pts) > maxPoints {
		stride = int(math.Ceil(float64(len(pts)) / float64(maxPoints)))
	}

	data := make([]opts.ScatterData, 0, len(pts)/stride+1)
	maxAbs := 0.0
	for i := 0; i < len(pts); i += stride {
		p := pts[i]
		maxAbs = math.Max(maxAbs, math.Max(math.Abs(float64(p.X)), math.Abs(float64(p.Y))))
		data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Y, p.Intensity}})
	}
	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Velodyne scan", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Latest dense frame", Subtitle: fmt.Sprintf("buffer=%s points=%d stride=%d", s.Buffer.Name(), len(pts), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        255,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#31688e", "#35b779", "#fde725"}},
		}),
	)
	scatter.AddSeries("points", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 2}))

	render(w, scatter)
}

type renderer interface {
	Render(w io.Writer) error
}

func render(w http.ResponseWriter, c renderer) {
	var buf bytes.Buffer
	if err := c.Render(&buf); err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
