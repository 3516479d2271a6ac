// Package scrcpy maps configuration to scrcpy command lines.
package scrcpy

import (
	"github.com/MrChuw/scrcpy-manager/config"
)

type argList []string

func (a *argList) flag(name string, on bool) {
	if on {
		*a = append(*a, name)
	}
}

func (a *argList) value(name string, v config.Value) {
	if v.Present() {
		*a = append(*a, name, v.String())
	}
}

func (a *argList) choice(name, value string, on bool) {
	if on && value != "" {
		*a = append(*a, name, value)
	}
}

// Args generates the flag list shared by every window. It is a pure function of cfg.
func Args(cfg *config.Config) []string {
	var args argList

	// Device
	args.flag("--stay-awake", cfg.Device.StayAwake)
	args.flag("--turn-screen-off", cfg.Device.TurnScreenOff)
	args.flag("--show-touches", cfg.Device.ShowTouches)
	args.flag("--power-off-on-close", cfg.Device.PowerOffOnClose)
	args.flag("--no-power-on", cfg.Device.PowerOnOnStart)

	// Window
	args.value("--window-title", cfg.Window.Title)
	args.flag("--window-borderless", cfg.Window.Borderless)
	args.flag("--always-on-top", cfg.Window.AlwaysOnTop)
	args.flag("--fullscreen", cfg.Window.Fullscreen)
	args.flag("--disable-screensaver", cfg.Window.DisableScreensaver)
	args.value("--window-height", cfg.Window.Height)
	args.value("--window-width", cfg.Window.Width)

	// Video
	video := cfg.Video
	args.value("--max-size", video.MaxSize)
	bitrate, on, _ := video.BitrateSetting()
	args.choice("--video-bit-rate", string(bitrate), on)
	args.value("--max-fps", video.FPS)
	args.flag("--print-fps", video.PrintFPS)
	codec, on, _ := video.CodecSetting()
	args.choice("--video-codec", string(codec), on)
	args.value("--video-encoder", video.Encoder)
	lock, on, _ := video.LockOrientationSetting()
	args.choice("--lock-video-orientation", string(lock), on)
	orientation, on, _ := video.OrientationSetting()
	args.choice("--orientation", string(orientation), on)
	args.value("--crop", video.Crop)
	args.value("--display-id", video.DisplayID)
	args.value("--display-buffer", video.DisplayBuffer)
	args.value("--v4l2-buffer", video.V4L2Buffer)
	args.flag("--no-playback", video.NoPlayback)
	args.flag("--no-video", video.NoVideo)

	// Audio: either disabled outright, or the full audio group.
	audio := cfg.Audio
	if audio.NoAudio {
		args.flag("--no-audio", true)
	} else {
		source, on, _ := audio.SourceSetting()
		args.choice("--audio-source", string(source), on)
		acodec, on, _ := audio.CodecSetting()
		args.choice("--audio-codec", string(acodec), on)
		args.value("--audio-encoder", audio.Encoder)
		args.value("--audio-bit-rate", audio.Bitrate)
		args.value("--audio-buffer", audio.Buffer)
		args.flag("--no-audio-playback", audio.NoPlayback)
	}

	// Camera flags only apply when the camera is the video source.
	camera := cfg.Camera
	if camera.AsVideoOutput {
		args.value("--video-source", camera.VideoOutput)
		size, on, _ := camera.SizeSetting()
		args.choice("--camera-size", string(size), on)
		args.value("--camera-fps", camera.FPS)
		args.value("--v4l2-sink", camera.V4L2Sink)
	}

	// Mouse
	args.flag("--no-mouse-hover", cfg.Mouse.NoMouseHover)

	return args
}
