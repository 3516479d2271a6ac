package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrChuw/scrcpy-manager/models"
)

// DefaultFileName is the mirroring configuration file looked up in the config directory.
const DefaultFileName = "config.yml"

// Config holds the typed option groups of the mirroring configuration file.
type Config struct {
	Port   int          `yaml:"port"`
	Window WindowConfig `yaml:"Window"`
	Device DeviceConfig `yaml:"Device"`
	Video  VideoConfig  `yaml:"Video"`
	Audio  AudioConfig  `yaml:"Audio"`
	Camera CameraConfig `yaml:"Camera"`
	Mouse  MouseConfig  `yaml:"Mouse"`
	App    AppConfig    `yaml:"App"`

	// Warnings lists values that were rejected or entries that were skipped.
	Warnings []string `yaml:"-"`
}

type DeviceConfig struct {
	StayAwake       bool `yaml:"stay_awake"`
	TurnScreenOff   bool `yaml:"turn_screen_off"`
	ShowTouches     bool `yaml:"show_touches"`
	PowerOffOnClose bool `yaml:"power_off_on_close"`
	PowerOnOnStart  bool `yaml:"power_on_on_start"`
}

type WindowConfig struct {
	Title              Value `yaml:"title"`
	Borderless         bool  `yaml:"borderless"`
	AlwaysOnTop        bool  `yaml:"always_on_top"`
	Fullscreen         bool  `yaml:"fullscreen"`
	DisableScreensaver bool  `yaml:"disable_screensaver"`
	Width              Value `yaml:"width"`
	Height             Value `yaml:"height"`
}

type VideoConfig struct {
	MaxSize         Value `yaml:"max_size"`
	Bitrate         Value `yaml:"bitrate"`
	FPS             Value `yaml:"fps"`
	PrintFPS        bool  `yaml:"print_fps"`
	Codec           Value `yaml:"codec"`
	Encoder         Value `yaml:"encoder"`
	LockOrientation Value `yaml:"lock_orientation"`
	Orientation     Value `yaml:"orientation"`
	Crop            Value `yaml:"crop"`
	DisplayID       Value `yaml:"display_id"`
	DisplayBuffer   Value `yaml:"display_buffer"`
	V4L2Buffer      Value `yaml:"v4l2_buffer"`
	NoPlayback      bool  `yaml:"no_playback"`
	NoVideo         bool  `yaml:"no_video"`
}

type AudioConfig struct {
	NoAudio    bool  `yaml:"no_audio"`
	Source     Value `yaml:"source"`
	Codec      Value `yaml:"codec"`
	Encoder    Value `yaml:"encoder"`
	Bitrate    Value `yaml:"bitrate"`
	Buffer     Value `yaml:"buffer"`
	NoPlayback bool  `yaml:"no_playback"`
}

type CameraConfig struct {
	AsVideoOutput bool  `yaml:"as_video_output"`
	VideoOutput   Value `yaml:"video_output"`
	Size          Value `yaml:"size"`
	FPS           Value `yaml:"fps"`
	V4L2Sink      Value `yaml:"v4l2_sink"`
}

type MouseConfig struct {
	NoMouseHover bool `yaml:"no_mouse_hover"`
}

// App is one app-scoped window: its alias and the package it launches.
type App struct {
	Alias   string
	Package string
}

type AppConfig struct {
	AppsToOpen []string `yaml:"apps_to_open"`

	// Apps is AppsToOpen parsed, in file order.
	Apps []App `yaml:"-"`
}

// Target returns the package configured for alias.
func (a AppConfig) Target(alias string) (string, bool) {
	for _, app := range a.Apps {
		if app.Alias == alias {
			return app.Package, true
		}
	}
	return "", false
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Port:   5555,
		Device: DeviceConfig{StayAwake: true},
		Audio:  AudioConfig{NoAudio: true},
	}
}

// Load reads the configuration file at path. A missing file yields the defaults
// and a warning; a malformed file is an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg := Default()
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("config file %s not found, using defaults", path))
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML configuration over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	cfg.parseApps()
	cfg.validate()
	return cfg, nil
}

func (c *Config) warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

func (c *Config) parseApps() {
	c.App.Apps = c.App.Apps[:0]
	seen := make(map[string]bool)
	for _, entry := range c.App.AppsToOpen {
		pkg, alias, ok := strings.Cut(entry, ":")
		pkg, alias = strings.TrimSpace(pkg), strings.TrimSpace(alias)
		switch {
		case !ok || pkg == "" || alias == "":
			c.warnf("App.apps_to_open: skipping %q (expected package:Alias)", entry)
			continue
		case strings.EqualFold(alias, models.MainAlias):
			c.warnf("App.apps_to_open: alias %q is reserved for the primary window", alias)
			continue
		case seen[strings.ToLower(alias)]:
			c.warnf("App.apps_to_open: duplicate alias %q, keeping the first entry", alias)
			continue
		}
		seen[strings.ToLower(alias)] = true
		c.App.Apps = append(c.App.Apps, App{Alias: alias, Package: pkg})
	}
}

// validate resolves every enumerated option once so invalid values surface as warnings.
func (c *Config) validate() {
	checks := []func() error{
		func() error { _, _, err := c.Video.BitrateSetting(); return err },
		func() error { _, _, err := c.Video.CodecSetting(); return err },
		func() error { _, _, err := c.Video.LockOrientationSetting(); return err },
		func() error { _, _, err := c.Video.OrientationSetting(); return err },
		func() error { _, _, err := c.Audio.SourceSetting(); return err },
		func() error { _, _, err := c.Audio.CodecSetting(); return err },
		func() error { _, _, err := c.Camera.SizeSetting(); return err },
	}
	for _, check := range checks {
		if err := check(); err != nil {
			c.Warnings = append(c.Warnings, err.Error())
		}
	}
}

func (v VideoConfig) BitrateSetting() (Bitrate, bool, error) {
	s, on, err := bitrates.resolve("Video.bitrate", v.Bitrate)
	return Bitrate(s), on, err
}

func (v VideoConfig) CodecSetting() (VideoCodec, bool, error) {
	s, on, err := videoCodecs.resolve("Video.codec", v.Codec)
	return VideoCodec(s), on, err
}

func (v VideoConfig) LockOrientationSetting() (Orientation, bool, error) {
	s, on, err := orientations.resolve("Video.lock_orientation", v.LockOrientation)
	return Orientation(s), on, err
}

func (v VideoConfig) OrientationSetting() (Orientation, bool, error) {
	s, on, err := orientations.resolve("Video.orientation", v.Orientation)
	return Orientation(s), on, err
}

func (a AudioConfig) SourceSetting() (AudioSource, bool, error) {
	s, on, err := audioSources.resolve("Audio.source", a.Source)
	return AudioSource(s), on, err
}

func (a AudioConfig) CodecSetting() (AudioCodec, bool, error) {
	s, on, err := audioCodecs.resolve("Audio.codec", a.Codec)
	return AudioCodec(s), on, err
}

func (c CameraConfig) SizeSetting() (CameraSize, bool, error) {
	s, on, err := cameraSizes.resolve("Camera.size", c.Size)
	return CameraSize(s), on, err
}
