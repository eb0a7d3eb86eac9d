// Package config holds the explicit configuration passed to the renderer, encoder and window.
package config

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"

	"github.com/vkngwrapper/vkencoder/internal/logging"
	"github.com/vkngwrapper/vkencoder/internal/vkerr"
)

const (
	KhronosValidationLayer = "VK_LAYER_KHRONOS_validation"

	SwapchainExtension        = "VK_KHR_swapchain"
	VideoQueueExtension       = "VK_KHR_video_queue"
	Synchronization2Extension = "VK_KHR_synchronization2"
	VideoEncodeQueueExtension = "VK_KHR_video_encode_queue"
	VideoEncodeH264Extension  = "VK_KHR_video_encode_h264"
	DefaultEncoderBufferSize  = 10 * 1024 * 1024
	DefaultWindowWidth        = 800
	DefaultWindowHeight       = 600
	DefaultApplicationName    = "Vulkan Renderer and Encoder"
	DefaultShaderDir          = "shaders"
	DefaultOutputPath         = "output.vkenc"
	envPrefix                 = "VKENCODER_"
)

// Codec selects how the encoder stores captured frames.
type Codec string

const (
	CodecRaw Codec = "raw"
	CodecLZ4 Codec = "lz4"
)

// Renderer configures instance and device creation.
type Renderer struct {
	ApplicationName string

	// EnableDiagnostics turns on the validation layers and the debug messenger.
	EnableDiagnostics        bool
	RequiredValidationLayers []string
	// RequiredDeviceExtensions defaults to DefaultDeviceExtensions when nil.
	RequiredDeviceExtensions []string

	ShaderDir string
	// CaptureFrames adds transfer-src usage to swapchain images so the encoder can read them.
	CaptureFrames bool
	// DebugContext, when set, is echoed with every debug messenger line.
	DebugContext string
}

// DeviceExtensions returns the configured list or the mode default.
func (r Renderer) DeviceExtensions(presenting bool) []string {
	if r.RequiredDeviceExtensions != nil {
		return r.RequiredDeviceExtensions
	}
	return DefaultDeviceExtensions(presenting)
}

type Encoder struct {
	Enabled    bool
	OutputPath string
	Codec      Codec
	BufferSize int
}

type Window struct {
	Title  string
	Width  int
	Height int
}

type Config struct {
	LogLevel logging.Level
	Headless bool

	Window   Window
	Renderer Renderer
	Encoder  Encoder
}

// DefaultDeviceExtensions is the swapchain when presenting and the video encode set otherwise.
func DefaultDeviceExtensions(presenting bool) []string {
	if presenting {
		return []string{SwapchainExtension}
	}
	return []string{
		VideoQueueExtension,
		Synchronization2Extension,
		VideoEncodeQueueExtension,
		VideoEncodeH264Extension,
	}
}

// ModeName is what the entry point reports at startup.
func ModeName() string {
	if DebugBuild {
		return "debug"
	}
	return "release"
}

func Default() Config {
	logLevel := logging.Info
	if DebugBuild {
		logLevel = logging.Debug
	}

	return Config{
		LogLevel: logLevel,
		Window: Window{
			Title:  "Vulkan",
			Width:  DefaultWindowWidth,
			Height: DefaultWindowHeight,
		},
		Renderer: Renderer{
			ApplicationName:          DefaultApplicationName,
			EnableDiagnostics:        DebugBuild,
			RequiredValidationLayers: []string{KhronosValidationLayer},
			ShaderDir:                DefaultShaderDir,
		},
		Encoder: Encoder{
			OutputPath: DefaultOutputPath,
			Codec:      CodecRaw,
			BufferSize: DefaultEncoderBufferSize,
		},
	}
}

// Load starts from Default, loads the given .env files if any, then applies VKENCODER_*
// variables.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return Config{}, vkerr.IO(err, "load env files %v", envFiles)
		}
		envy.Reload()
	}

	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(envy.Get(envPrefix+key, ""))
	return v, v != ""
}

func lookupBool(key string, dst *bool) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "%s%s", envPrefix, key), vkerr.ErrConfiguration)
	}
	*dst = b
	return nil
}

func lookupInt(key string, dst *int) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "%s%s", envPrefix, key), vkerr.ErrConfiguration)
	}
	*dst = i
	return nil
}

func lookupList(key string, dst *[]string) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	*dst = SplitList(v)
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(v string) []string {
	list := []string{}
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			list = append(list, item)
		}
	}
	return list
}

func (c *Config) applyEnv() error {
	if v, ok := lookup("LOG_LEVEL"); ok {
		level, err := logging.ParseLevel(v)
		if err != nil {
			return errors.Mark(err, vkerr.ErrConfiguration)
		}
		c.LogLevel = level
	}

	for key, dst := range map[string]*bool{
		"HEADLESS":       &c.Headless,
		"DIAGNOSTICS":    &c.Renderer.EnableDiagnostics,
		"CAPTURE_FRAMES": &c.Renderer.CaptureFrames,
		"ENCODE":         &c.Encoder.Enabled,
	} {
		if err := lookupBool(key, dst); err != nil {
			return err
		}
	}

	for key, dst := range map[string]*int{
		"WIDTH":               &c.Window.Width,
		"HEIGHT":              &c.Window.Height,
		"ENCODER_BUFFER_SIZE": &c.Encoder.BufferSize,
	} {
		if err := lookupInt(key, dst); err != nil {
			return err
		}
	}

	lookupList("VALIDATION_LAYERS", &c.Renderer.RequiredValidationLayers)
	lookupList("DEVICE_EXTENSIONS", &c.Renderer.RequiredDeviceExtensions)

	if v, ok := lookup("SHADER_DIR"); ok {
		c.Renderer.ShaderDir = v
	}
	if v, ok := lookup("OUTPUT"); ok {
		c.Encoder.OutputPath = v
	}
	if v, ok := lookup("CODEC"); ok {
		c.Encoder.Codec = Codec(strings.ToLower(v))
	}
	if v, ok := lookup("DEBUG_CONTEXT"); ok {
		c.Renderer.DebugContext = v
	}
	return nil
}

// Validate rejects settings no component could honor.
func (c Config) Validate() error {
	if !c.Headless && (c.Window.Width <= 0 || c.Window.Height <= 0) {
		return vkerr.Configurationf("window size %dx%d must be positive", c.Window.Width, c.Window.Height)
	}
	if c.Encoder.Enabled {
		if c.Headless {
			return vkerr.Configurationf("encoding needs presented frames and cannot run headless")
		}
		if c.Encoder.OutputPath == "" {
			return vkerr.Configurationf("encoder output path is empty")
		}
		if c.Encoder.BufferSize <= 0 {
			return vkerr.Configurationf("encoder buffer size %d must be positive", c.Encoder.BufferSize)
		}
		switch c.Encoder.Codec {
		case CodecRaw, CodecLZ4:
		default:
			return vkerr.Configurationf("unknown encoder codec %q", c.Encoder.Codec)
		}
	}
	if c.Renderer.EnableDiagnostics && len(c.Renderer.RequiredValidationLayers) == 0 {
		return vkerr.Configurationf("diagnostics enabled without any validation layer")
	}
	return nil
}
