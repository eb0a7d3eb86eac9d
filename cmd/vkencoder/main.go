package main

import (
	"flag"
	"os"
	"runtime"

	"github.com/vkngwrapper/vkencoder/internal/config"
	"github.com/vkngwrapper/vkencoder/internal/encoder"
	"github.com/vkngwrapper/vkencoder/internal/logging"
	"github.com/vkngwrapper/vkencoder/internal/renderer"
	"github.com/vkngwrapper/vkencoder/internal/surface"
	"github.com/vkngwrapper/vkencoder/internal/vkerr"
	"github.com/vkngwrapper/vkencoder/internal/window"
)

var (
	envFile  = flag.String("env", "", "Load settings from this .env file before reading the environment")
	headless = flag.Bool("headless", false, "Initialise Vulkan without a window or swapchain")
	encode   = flag.Bool("encode", false, "Capture every presented frame into the output file")
	output   = flag.String("output", "", "Encoder output path")
	codec    = flag.String("codec", "", "Encoder codec: raw or lz4")
	logLevel = flag.String("log-level", "", "Minimum log level: verbose, debug, info, warn or error")
	shaders  = flag.String("shaders", "", "Directory holding vert.spv and frag.spv")
)

func init() {
	// SDL must stay on the main OS thread
	runtime.LockOSThread()
}

// loadConfig layers command line flags over the environment.
func loadConfig() (config.Config, error) {
	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}

	cfg, err := config.Load(envFiles...)
	if err != nil {
		return cfg, err
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["headless"] {
		cfg.Headless = *headless
	}
	if set["encode"] {
		cfg.Encoder.Enabled = *encode
	}
	if *output != "" {
		cfg.Encoder.OutputPath = *output
	}
	if *codec != "" {
		cfg.Encoder.Codec = config.Codec(*codec)
	}
	if *shaders != "" {
		cfg.Renderer.ShaderDir = *shaders
	}
	if *logLevel != "" {
		cfg.LogLevel, err = logging.ParseLevel(*logLevel)
		if err != nil {
			return cfg, vkerr.Configurationf("-log-level: %v", err)
		}
	}
	if cfg.Encoder.Enabled {
		cfg.Renderer.CaptureFrames = true
	}

	return cfg, cfg.Validate()
}

func run(cfg config.Config, log *logging.Logger) error {
	log.Infof("Mode: %s", config.ModeName())

	globalDriver, unload, err := window.LoadVulkan()
	if err != nil {
		return err
	}
	defer unload()

	var provider surface.Provider
	var win *window.Window
	if !cfg.Headless {
		win, err = window.Open(cfg.Window, log)
		if err != nil {
			return err
		}
		defer win.Close()
		provider = win
	}

	r, err := renderer.New(globalDriver, provider, cfg.Renderer, log)
	if err != nil {
		return err
	}
	defer r.Close()

	if cfg.Headless {
		log.Infof("Headless initialisation complete on %s", r.Device().Name)
		return nil
	}

	var enc *encoder.Encoder
	if cfg.Encoder.Enabled {
		enc, err = encoder.New(r.Device(), cfg.Encoder, log)
		if err != nil {
			return err
		}
		defer enc.Close()

		if err := r.SetCapturer(enc); err != nil {
			return err
		}
	}

	err = win.Run(func() error {
		if err := r.DrawFrame(); err != nil {
			return err
		}
		if enc == nil || !enc.Pending() {
			return nil
		}
		return enc.EncodeFrame()
	})
	if err != nil {
		return err
	}

	if err := r.WaitIdle(); err != nil {
		return err
	}
	if enc != nil {
		if _, err := enc.Finish(); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		logging.NewStd(logging.Info).Errorf("%+v", err)
		os.Exit(vkerr.ExitCode(err))
	}

	log := logging.NewStd(cfg.LogLevel)
	if err := run(cfg, log); err != nil {
		log.Errorf("%+v", err)
		os.Exit(vkerr.ExitCode(err))
	}
}
