package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/velodyne.proxy/internal/lidar"
	"github.com/banshee-data/velodyne.proxy/internal/lidar/calibration"
	"github.com/banshee-data/velodyne.proxy/internal/lidar/encode"
)

// DefaultConfigPath is the path to the canonical decoder defaults file.
const DefaultConfigPath = "config/decoder.defaults.json"

// DecoderConfig is the on-disk configuration of the proxy. Every field is
// optional; the Get* methods supply the default for anything left unset.
type DecoderConfig struct {
	// Sensor
	SensorModel     *string `json:"sensor_model,omitempty"`     // "vlp16" or "hdl64"
	CalibrationFile *string `json:"calibration_file,omitempty"` // db.xml style; empty uses the embedded VLP-16 table

	// Frame assembly and encoding
	MaxPointsPerFrame *int    `json:"max_points_per_frame,omitempty"`
	EnableDense       *bool   `json:"enable_dense,omitempty"`
	EnableCompact     *bool   `json:"enable_compact,omitempty"`
	IntensityMode     *string `json:"intensity_mode,omitempty"` // none, combined or both
	IntensityBits     *int    `json:"intensity_bits,omitempty"`
	DistanceEncoding  *string `json:"distance_encoding,omitempty"` // fine or coarse

	// Acquisition and output
	UDPAddress     *string `json:"udp_address,omitempty"`
	RcvBuf         *int    `json:"rcv_buf,omitempty"`
	LogInterval    *string `json:"log_interval,omitempty"` // duration string like "1m"
	ForwardAddress *string `json:"forward_address,omitempty"`
	DebugAddress   *string `json:"debug_address,omitempty"`
}

// Helper functions to create pointers
func ptrBool(v bool) *bool       { return &v }
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// EmptyDecoderConfig returns a DecoderConfig with all fields set to nil.
func EmptyDecoderConfig() *DecoderConfig {
	return &DecoderConfig{}
}

// LoadDecoderConfig loads a DecoderConfig from a JSON file. Fields omitted
// from the file keep their defaults, so partial configs are safe.
func LoadDecoderConfig(path string) (*DecoderConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyDecoderConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching upwards from the working directory. Panics if the file cannot
// be loaded, intended for test setup.
func MustLoadDefaultConfig() *DecoderConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/lidar/*/
	}
	for _, path := range candidates {
		if cfg, err := LoadDecoderConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *DecoderConfig) Validate() error {
	if c.SensorModel != nil {
		if _, err := calibration.ParseModel(*c.SensorModel); err != nil {
			return err
		}
	}
	if c.MaxPointsPerFrame != nil && *c.MaxPointsPerFrame <= 0 {
		return fmt.Errorf("max_points_per_frame must be positive, got %d", *c.MaxPointsPerFrame)
	}
	if c.IntensityMode != nil {
		if _, err := encode.ParseIntensityMode(*c.IntensityMode); err != nil {
			return err
		}
	}
	if c.IntensityBits != nil {
		if b := *c.IntensityBits; b < encode.MinIntensityBits || b > encode.MaxIntensityBits {
			return fmt.Errorf("intensity_bits must be between %d and %d, got %d", encode.MinIntensityBits, encode.MaxIntensityBits, b)
		}
	}
	if c.DistanceEncoding != nil {
		if _, err := encode.ParseDistanceEncoding(*c.DistanceEncoding); err != nil {
			return err
		}
	}
	if !c.GetEnableDense() && !c.GetEnableCompact() {
		return fmt.Errorf("at least one of enable_dense and enable_compact must be true")
	}
	if c.RcvBuf != nil && *c.RcvBuf < 0 {
		return fmt.Errorf("rcv_buf must be non-negative, got %d", *c.RcvBuf)
	}
	if c.LogInterval != nil && *c.LogInterval != "" {
		d, err := time.ParseDuration(*c.LogInterval)
		if err != nil {
			return fmt.Errorf("invalid log_interval '%s': %w", *c.LogInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("log_interval must be positive, got %s", d)
		}
	}
	for name, addr := range map[string]*string{"udp_address": c.UDPAddress, "forward_address": c.ForwardAddress, "debug_address": c.DebugAddress} {
		if addr == nil || *addr == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(*addr); err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *addr, err)
		}
	}
	return nil
}

// GetSensorModel returns the sensor model or the default (VLP-16).
func (c *DecoderConfig) GetSensorModel() calibration.Model {
	if c.SensorModel == nil {
		return calibration.ModelVLP16
	}
	m, err := calibration.ParseModel(*c.SensorModel)
	if err != nil {
		return calibration.ModelVLP16
	}
	return m
}

// GetCalibrationFile returns the calibration file path, empty when unset.
func (c *DecoderConfig) GetCalibrationFile() string {
	if c.CalibrationFile == nil {
		return ""
	}
	return *c.CalibrationFile
}

// GetMaxPointsPerFrame returns the per-frame capacity or the model default.
func (c *DecoderConfig) GetMaxPointsPerFrame() int {
	if c.MaxPointsPerFrame == nil {
		return lidar.DefaultConfig(c.GetSensorModel()).MaxPoints
	}
	return *c.MaxPointsPerFrame
}

// GetEnableDense returns enable_dense or the default (true).
func (c *DecoderConfig) GetEnableDense() bool {
	if c.EnableDense == nil {
		return true
	}
	return *c.EnableDense
}

// GetEnableCompact returns enable_compact or the default (true).
func (c *DecoderConfig) GetEnableCompact() bool {
	if c.EnableCompact == nil {
		return true
	}
	return *c.EnableCompact
}

// GetIntensityMode returns the intensity mode or the default (none).
func (c *DecoderConfig) GetIntensityMode() encode.IntensityMode {
	if c.IntensityMode == nil {
		return encode.IntensityNone
	}
	m, err := encode.ParseIntensityMode(*c.IntensityMode)
	if err != nil {
		return encode.IntensityNone
	}
	return m
}

// GetIntensityBits returns intensity_bits or the default (3).
func (c *DecoderConfig) GetIntensityBits() uint8 {
	if c.IntensityBits == nil {
		return 3
	}
	return uint8(*c.IntensityBits)
}

// GetDistanceEncoding returns the distance encoding or the default (coarse).
func (c *DecoderConfig) GetDistanceEncoding() encode.DistanceEncoding {
	if c.DistanceEncoding == nil {
		return encode.DistanceCoarse1cm
	}
	d, err := encode.ParseDistanceEncoding(*c.DistanceEncoding)
	if err != nil {
		return encode.DistanceCoarse1cm
	}
	return d
}

// GetUDPAddress returns the listen address or the default (":2368").
func (c *DecoderConfig) GetUDPAddress() string {
	if c.UDPAddress == nil || *c.UDPAddress == "" {
		return ":2368"
	}
	return *c.UDPAddress
}

// GetRcvBuf returns the socket receive buffer size or the default (4 MiB).
func (c *DecoderConfig) GetRcvBuf() int {
	if c.RcvBuf == nil {
		return 4 << 20
	}
	return *c.RcvBuf
}

// GetLogInterval parses and returns LogInterval as a time.Duration.
func (c *DecoderConfig) GetLogInterval() time.Duration {
	if c.LogInterval == nil || *c.LogInterval == "" {
		return time.Minute
	}
	d, err := time.ParseDuration(*c.LogInterval)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// GetForwardAddress returns the compact forward destination, empty when
// forwarding is disabled.
func (c *DecoderConfig) GetForwardAddress() string {
	if c.ForwardAddress == nil {
		return ""
	}
	return *c.ForwardAddress
}

// GetDebugAddress returns the debug HTTP listen address or the default.
func (c *DecoderConfig) GetDebugAddress() string {
	if c.DebugAddress == nil || *c.DebugAddress == "" {
		return "127.0.0.1:8082"
	}
	return *c.DebugAddress
}

// DecoderSettings converts the configuration into decoder settings.
func (c *DecoderConfig) DecoderSettings() lidar.Config {
	return lidar.Config{
		MaxPoints:        c.GetMaxPointsPerFrame(),
		Dense:            c.GetEnableDense(),
		Compact:          c.GetEnableCompact(),
		IntensityMode:    c.GetIntensityMode(),
		IntensityBits:    c.GetIntensityBits(),
		DistanceEncoding: c.GetDistanceEncoding(),
	}
}
