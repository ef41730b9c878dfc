// Package config holds the build profiles of the pipeline. Profiles are
// compiled into the binary and selected once at startup.
package config

import (
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/inhies/go-bytesize"
	"gopkg.in/yaml.v2"

	"github.com/ayusman/framepipe/internal/memmap"
	"github.com/ayusman/framepipe/internal/quant"
)

// DefaultProfile is the profile used when none is named.
const DefaultProfile = "stm32h747i-disco"

//go:embed profiles/*.yaml
var profilesFS embed.FS

var (
	// ErrUnknownProfile is returned when no profile has the requested name.
	ErrUnknownProfile = errors.New("unknown profile")
	// ErrInvalid is returned by Validate for an inconsistent profile.
	ErrInvalid = errors.New("invalid profile")
)

// PixelPath selects how the capture is converted into the network input.
type PixelPath string

const (
	PathHardware PixelPath = "hardware"
	PathSoftware PixelPath = "software"
)

// ColorMode is the channel layout the network was trained on.
type ColorMode string

const (
	ColorRGB       ColorMode = "rgb"
	ColorBGR       ColorMode = "bgr"
	ColorGrayscale ColorMode = "grayscale"
)

// MirrorFlip is the sensor readout orientation.
type MirrorFlip string

const (
	OrientNormal     MirrorFlip = "none"
	OrientMirror     MirrorFlip = "mirror"
	OrientFlip       MirrorFlip = "flip"
	OrientMirrorFlip MirrorFlip = "mirror-flip"
)

// Size is a byte count written in profiles as "512KB" or as a plain number.
type Size uint32

// UnmarshalYAML accepts integers and human readable sizes.
func (s *Size) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var n uint64
	if err := unmarshal(&n); err == nil {
		*s = Size(n)
		return nil
	}
	var str string
	if err := unmarshal(&str); err != nil {
		return err
	}
	b, err := bytesize.Parse(str)
	if err != nil {
		return fmt.Errorf("size %q: %w", str, err)
	}
	*s = Size(b)
	return nil
}

func (s Size) String() string {
	return bytesize.New(float64(s)).String()
}

// Profile is the complete set of build-time constants.
type Profile struct {
	Name    string        `yaml:"name"`
	Camera  CameraConfig  `yaml:"camera"`
	Network NetworkConfig `yaml:"network"`
	Display DisplayConfig `yaml:"display"`
	Memory  MemoryConfig  `yaml:"memory"`
	Labels  LabelsConfig  `yaml:"labels"`
}

// CameraConfig describes the sensor output.
type CameraConfig struct {
	Width      int                `yaml:"width"`
	Height     int                `yaml:"height"`
	Format     memmap.PixelFormat `yaml:"format"`
	MirrorFlip MirrorFlip         `yaml:"mirror_flip"`
}

// NetworkConfig describes the model input and output tensors.
type NetworkConfig struct {
	Width     int              `yaml:"width"`
	Height    int              `yaml:"height"`
	ColorMode ColorMode        `yaml:"color_mode"`
	PixelPath PixelPath        `yaml:"pixel_path"`
	Normalize quant.Normalizer `yaml:"normalize"`
	Input     quant.Params     `yaml:"input"`
	Output    quant.Params     `yaml:"output"`
	Classes   int              `yaml:"classes"`
	// Threshold is the top score at which a result counts as confident.
	Threshold float32 `yaml:"threshold"`
}

// Channels returns the number of input channels for the color mode.
func (n NetworkConfig) Channels() int {
	if n.ColorMode == ColorGrayscale {
		return 1
	}
	return 3
}

// InputFormat returns the pixel format of the network input tensor.
func (n NetworkConfig) InputFormat() memmap.PixelFormat {
	if n.ColorMode == ColorGrayscale {
		return memmap.FormatGray8
	}
	return memmap.FormatRGB888
}

// DisplayConfig describes the panel.
type DisplayConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// BankConfig is one memory bank.
type BankConfig struct {
	Name string `yaml:"name"`
	Base uint32 `yaml:"base"`
	Size Size   `yaml:"size"`
}

// MemoryConfig is the memory layout and external cache policy.
type MemoryConfig struct {
	Internal        BankConfig       `yaml:"internal"`
	External        BankConfig       `yaml:"external"`
	DisplayBankSize Size             `yaml:"display_bank_size"`
	CacheMode       memmap.CacheMode `yaml:"cache_mode"`
	ActivationSize  Size             `yaml:"activation_size"`
}

// LabelsConfig is the class label table, inline or from a file.
type LabelsConfig struct {
	Names []string `yaml:"names"`
	File  string   `yaml:"file"`
	CRC   uint16   `yaml:"crc"`
}

// Names lists the embedded profile names.
func Names() []string {
	entries, err := profilesFS.ReadDir("profiles")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), path.Ext(e.Name())))
	}
	sort.Strings(names)
	return names
}

// Load returns the named embedded profile, validated.
func Load(name string) (*Profile, error) {
	if name == "" {
		name = DefaultProfile
	}
	data, err := profilesFS.ReadFile("profiles/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("%w: %q (have %s)", ErrUnknownProfile, name, strings.Join(Names(), ", "))
	}
	return Parse(data)
}

// Parse decodes and validates a profile document.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.UnmarshalStrict(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate rejects profiles that cannot produce a working pipeline.
func (p *Profile) Validate() error {
	var errs []error
	fail := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalid}, args...)...))
	}

	if p.Name == "" {
		fail("name is empty")
	}
	if p.Camera.Width <= 0 || p.Camera.Height <= 0 {
		fail("camera geometry %dx%d", p.Camera.Width, p.Camera.Height)
	}
	if p.Camera.Format != memmap.FormatRGB565 {
		fail("camera format %q, only rgb565 is supported", p.Camera.Format)
	}
	switch p.Camera.MirrorFlip {
	case OrientNormal, OrientMirror, OrientFlip, OrientMirrorFlip:
	default:
		fail("mirror_flip %q", p.Camera.MirrorFlip)
	}

	n := p.Network
	if n.Width <= 0 || n.Height <= 0 {
		fail("network geometry %dx%d", n.Width, n.Height)
	}
	if n.Width > p.Camera.Width || n.Height > p.Camera.Height {
		fail("network input %dx%d larger than capture %dx%d", n.Width, n.Height, p.Camera.Width, p.Camera.Height)
	}
	switch n.ColorMode {
	case ColorRGB, ColorBGR, ColorGrayscale:
	default:
		fail("color_mode %q", n.ColorMode)
	}
	switch n.PixelPath {
	case PathHardware, PathSoftware:
	default:
		fail("pixel_path %q", n.PixelPath)
	}
	if n.ColorMode == ColorGrayscale && n.PixelPath == PathHardware {
		fail("grayscale input requires the software pixel path")
	}
	if !(n.Normalize.Scale > 0) {
		fail("normalize scale %v", n.Normalize.Scale)
	}
	if err := n.Input.Validate(); err != nil {
		fail("input: %v", err)
	}
	if err := n.Output.Validate(); err != nil {
		fail("output: %v", err)
	}
	if n.Classes <= 0 {
		fail("classes %d", n.Classes)
	}
	if !(n.Threshold >= 0 && n.Threshold <= 1) {
		fail("threshold %v outside [0, 1]", n.Threshold)
	}

	if p.Display.Width <= 0 || p.Display.Height <= 0 {
		fail("display geometry %dx%d", p.Display.Width, p.Display.Height)
	}

	m := p.Memory
	if !m.CacheMode.Valid() {
		fail("cache_mode %q, want one of %v", m.CacheMode, memmap.CacheModes)
	}
	if m.Internal.Size == 0 || m.External.Size == 0 {
		fail("memory bank sizes must be set")
	}
	if m.ActivationSize == 0 {
		fail("activation_size must be set")
	}
	inputBytes := memmap.PaddedSize(n.Width * n.Height * n.Channels())
	if inputBytes > int(m.Internal.Size) {
		fail("network input %s does not fit %s", Size(inputBytes), m.Internal.Size)
	}
	fb := uint64(p.Display.Width) * uint64(p.Display.Height) * 4
	if m.DisplayBankSize == 0 || uint64(m.DisplayBankSize) < fb || 3*uint64(m.DisplayBankSize) > uint64(m.External.Size) {
		fail("display_bank_size %s for %s framebuffers in %s", m.DisplayBankSize, Size(fb), m.External.Size)
	}

	if len(p.Labels.Names) == 0 && p.Labels.File == "" {
		fail("labels: names or file required")
	}
	if len(p.Labels.Names) > 0 && len(p.Labels.Names) != n.Classes {
		fail("labels: %d names for %d classes", len(p.Labels.Names), n.Classes)
	}

	return errors.Join(errs...)
}

// Layout converts the profile into the memory layout request.
func (p *Profile) Layout() memmap.LayoutSpec {
	return memmap.LayoutSpec{
		Internal:        memmap.BankSpec{Name: p.Memory.Internal.Name, Base: memmap.Addr(p.Memory.Internal.Base), Size: uint32(p.Memory.Internal.Size)},
		External:        memmap.BankSpec{Name: p.Memory.External.Name, Base: memmap.Addr(p.Memory.External.Base), Size: uint32(p.Memory.External.Size)},
		DisplayBankSize: uint32(p.Memory.DisplayBankSize),
		CacheMode:       p.Memory.CacheMode,
		CaptureWidth:    p.Camera.Width,
		CaptureHeight:   p.Camera.Height,
		CaptureFormat:   p.Camera.Format,
		InputWidth:      p.Network.Width,
		InputHeight:     p.Network.Height,
		InputFormat:     p.Network.InputFormat(),
		InputElemSize:   1,
		OutputSize:      p.Network.Classes,
		ActivationSize:  int(p.Memory.ActivationSize),
		DisplayWidth:    p.Display.Width,
		DisplayHeight:   p.Display.Height,
		DisplayFormat:   memmap.FormatRGBA8888,
	}
}
