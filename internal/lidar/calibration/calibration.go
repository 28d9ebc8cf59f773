package calibration

import (
	"bufio"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

//go:embed sensor_configs/*.xml
var embeddedConfigs embed.FS

// ErrCalibrationMissing marks a calibration file or entry that could not be read.
// The table returned alongside it is still usable: absent corrections are zero.
var ErrCalibrationMissing = errors.New("calibration missing")

// Model selects which calibration shape a Table carries.
type Model int

const (
	ModelVLP16 Model = iota // 16 lasers, vertical correction only
	ModelHDL64              // 64 lasers, five correction arrays
)

// Channel counts per sensor model
const (
	CHANNELS_VLP16 = 16
	CHANNELS_HDL64 = 64
)

// Calibration tag names as they appear in a Velodyne db.xml file (without the
// trailing underscore the file format appends).
const (
	TagRotCorrection         = "rotCorrection"
	TagVertCorrection        = "vertCorrection"
	TagDistCorrection        = "distCorrection"
	TagVertOffsetCorrection  = "vertOffsetCorrection"
	TagHorizOffsetCorrection = "horizOffsetCorrection"
)

func (m Model) String() string {
	switch m {
	case ModelVLP16:
		return "vlp16"
	case ModelHDL64:
		return "hdl64"
	default:
		return fmt.Sprintf("model(%d)", int(m))
	}
}

// Channels returns the number of physical lasers for the model.
func (m Model) Channels() int {
	if m == ModelHDL64 {
		return CHANNELS_HDL64
	}
	return CHANNELS_VLP16
}

// ParseModel maps a configuration string onto a Model.
func ParseModel(s string) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vlp16", "vlp-16", "16":
		return ModelVLP16, nil
	case "hdl64", "hdl-64", "hdl-64e", "64":
		return ModelHDL64, nil
	default:
		return 0, fmt.Errorf("unknown sensor model %q (expected vlp16 or hdl64)", s)
	}
}

// VLP16Corrections holds the vertical angle (degrees) of each VLP-16 laser.
type VLP16Corrections struct {
	VertCorrection [CHANNELS_VLP16]float64
}

// HDL64Corrections holds the five per-laser HDL-64E corrections in file units:
// angles in degrees, distances and offsets in centimetres.
type HDL64Corrections struct {
	RotCorrection         [CHANNELS_HDL64]float64
	VertCorrection        [CHANNELS_HDL64]float64
	DistCorrection        [CHANNELS_HDL64]float64
	VertOffsetCorrection  [CHANNELS_HDL64]float64
	HorizOffsetCorrection [CHANNELS_HDL64]float64
}

// Table is an immutable per-channel calibration. Exactly one of the model
// specific correction sets is present, selected by Model.
type Table struct {
	Model Model

	vlp16 *VLP16Corrections
	hdl64 *HDL64Corrections

	// Missing lists "tag[channel]" entries that were absent or unparsable and
	// therefore default to zero.
	Missing []string
}

// NewVLP16Table wraps a VLP-16 correction set.
func NewVLP16Table(c VLP16Corrections) *Table {
	return &Table{Model: ModelVLP16, vlp16: &c}
}

// NewHDL64Table wraps an HDL-64E correction set.
func NewHDL64Table(c HDL64Corrections) *Table {
	return &Table{Model: ModelHDL64, hdl64: &c}
}

// Empty returns an all-zero table for the model.
func Empty(model Model) *Table {
	if model == ModelHDL64 {
		return NewHDL64Table(HDL64Corrections{})
	}
	return NewVLP16Table(VLP16Corrections{})
}

// VLP16 returns the VLP-16 corrections, or false if the table holds another model.
func (t *Table) VLP16() (VLP16Corrections, bool) {
	if t == nil || t.vlp16 == nil {
		return VLP16Corrections{}, false
	}
	return *t.vlp16, true
}

// HDL64 returns the HDL-64E corrections, or false if the table holds another model.
func (t *Table) HDL64() (HDL64Corrections, bool) {
	if t == nil || t.hdl64 == nil {
		return HDL64Corrections{}, false
	}
	return *t.hdl64, true
}

// Complete reports whether every consumed entry was present in the source.
func (t *Table) Complete() bool {
	return len(t.Missing) == 0
}

// tagPattern matches one <tag_>value</tag_> entry. Values are taken up to the
// next '<' the same way the sensor vendor tools read the file.
var tagPattern = regexp.MustCompile(`<([A-Za-z]+)_>([^<]*)<`)

// tagsFor lists the tags a model consumes, in table field order.
func tagsFor(model Model) []string {
	if model == ModelHDL64 {
		return []string{TagRotCorrection, TagVertCorrection, TagDistCorrection, TagVertOffsetCorrection, TagHorizOffsetCorrection}
	}
	return []string{TagVertCorrection}
}

// Parse reads a calibration text stream. Each consumed tag contributes one value
// per physical channel, assigned in file order. Entries beyond the channel count
// are ignored; absent or unparsable entries stay zero and are listed in Missing.
// Parse only fails when the reader itself fails.
func Parse(r io.Reader, model Model) (*Table, error) {
	channels := model.Channels()
	wanted := tagsFor(model)

	values := make(map[string][]float64, len(wanted))
	for _, tag := range wanted {
		values[tag] = make([]float64, 0, channels)
	}
	var missing []string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		for _, m := range tagPattern.FindAllStringSubmatch(scanner.Text(), -1) {
			vals, ok := values[m[1]]
			if !ok || len(vals) >= channels {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(m[2]), 64)
			if err != nil {
				missing = append(missing, fmt.Sprintf("%s[%d]", m[1], len(vals)))
				v = 0
			}
			values[m[1]] = append(vals, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read calibration: %w", err)
	}

	for _, tag := range wanted {
		for ch := len(values[tag]); ch < channels; ch++ {
			missing = append(missing, fmt.Sprintf("%s[%d]", tag, ch))
		}
	}

	var t *Table
	switch model {
	case ModelHDL64:
		var c HDL64Corrections
		copy(c.RotCorrection[:], values[TagRotCorrection])
		copy(c.VertCorrection[:], values[TagVertCorrection])
		copy(c.DistCorrection[:], values[TagDistCorrection])
		copy(c.VertOffsetCorrection[:], values[TagVertOffsetCorrection])
		copy(c.HorizOffsetCorrection[:], values[TagHorizOffsetCorrection])
		t = NewHDL64Table(c)
	default:
		var c VLP16Corrections
		copy(c.VertCorrection[:], values[TagVertCorrection])
		t = NewVLP16Table(c)
	}
	t.Missing = missing
	return t, nil
}

// Load reads a calibration file. When the file cannot be opened an all-zero table
// is returned together with an error wrapping ErrCalibrationMissing, so callers can
// log a warning and keep decoding with degraded geometry.
func Load(path string, model Model) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		t := Empty(model)
		for _, tag := range tagsFor(model) {
			t.Missing = append(t.Missing, tag+"[*]")
		}
		return t, fmt.Errorf("%w: %s: %v", ErrCalibrationMissing, path, err)
	}
	defer f.Close()

	t, err := Parse(f, model)
	if err != nil {
		return Empty(model), fmt.Errorf("%w: %s: %v", ErrCalibrationMissing, path, err)
	}
	return t, nil
}

// LoadEmbeddedVLP16 returns the nominal VLP-16 calibration shipped with the binary
// (lasers at -15° to +15° in 2° steps, interleaved by laser ID).
func LoadEmbeddedVLP16() (*Table, error) {
	f, err := embeddedConfigs.Open("sensor_configs/VLP-16.xml")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded calibration: %w", err)
	}
	defer f.Close()

	return Parse(f, ModelVLP16)
}

// Warn returns an error describing missing entries, or nil when the table is complete.
func (t *Table) Warn() error {
	if t.Complete() {
		return nil
	}
	shown := t.Missing
	if len(shown) > 8 {
		shown = shown[:8]
	}
	return fmt.Errorf("%w: %d entries default to zero (%s)", ErrCalibrationMissing, len(t.Missing), strings.Join(shown, ", "))
}
