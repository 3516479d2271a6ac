package config

import (
	"fmt"
	"strings"
)

type (
	VideoCodec  string
	AudioSource string
	AudioCodec  string
	Orientation string
	CameraSize  string
	Bitrate     string
)

// Documented defaults, used when a key is absent, null, or holds an invalid value.
const (
	DefaultVideoCodec  VideoCodec  = "h264"
	DefaultAudioSource AudioSource = "output"
	DefaultAudioCodec  AudioCodec  = "opus"
	DefaultOrientation Orientation = "0"
	DefaultCameraSize  CameraSize  = "1920x1080"
	DefaultBitrate     Bitrate     = "8M"
)

// InvalidValueError reports a config value outside its enumeration.
type InvalidValueError struct {
	Key   string
	Value string
	Used  string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("%s: invalid value %q, using default %q", e.Key, e.Value, e.Used)
}

// enum maps member names and wire values (both case-insensitive) to wire values.
type enum struct {
	def     string
	members map[string]string
}

func newEnum(def string, pairs ...string) enum {
	e := enum{def: def, members: map[string]string{"default": def}}
	for i := 0; i+1 < len(pairs); i += 2 {
		name, value := pairs[i], pairs[i+1]
		e.members[strings.ToLower(name)] = value
		e.members[strings.ToLower(value)] = value
	}
	return e
}

// resolve returns the wire value and whether the option is on. An invalid value
// resolves to the default and returns an InvalidValueError.
func (e enum) resolve(key string, v Value) (string, bool, error) {
	switch {
	case v.IsOff():
		return "", false, nil
	case !v.Present():
		return e.def, true, nil
	}
	if m, ok := e.members[strings.ToLower(strings.TrimSpace(v.raw))]; ok {
		return m, true, nil
	}
	return e.def, true, &InvalidValueError{Key: key, Value: v.raw, Used: e.def}
}

var videoCodecs = newEnum(string(DefaultVideoCodec),
	"H264", "h264",
	"H265", "h265",
	"AV1", "av1",
)

var audioSources = newEnum(string(DefaultAudioSource),
	"OUTPUT", "output",
	"PLAYBACK", "playback",
	"MIC", "mic",
	"MIC_UNPROCESSED", "mic-unprocessed",
	"MIC_CAMCORDER", "mic-camcorder",
	"MIC_VOICE_RECOGNITION", "mic-voice-recognition",
	"MIC_VOICE_COMMUNICATION", "mic-voice-communication",
	"VOICE_CALL", "voice-call",
	"VOICE_CALL_UPLINK", "voice-call-uplink",
	"VOICE_CALL_DOWNLINK", "voice-call-downlink",
	"VOICE_PERFORMANCE", "voice-performance",
)

var audioCodecs = newEnum(string(DefaultAudioCodec),
	"OPUS", "opus",
	"AAC", "aac",
	"FLAC", "flac",
	"RAW", "raw",
)

var orientations = newEnum(string(DefaultOrientation),
	"DEG_0", "0",
	"DEG_90", "90",
	"DEG_180", "180",
	"DEG_270", "270",
	"FLIP_0", "flip0",
	"FLIP_90", "flip90",
	"FLIP_180", "flip180",
	"FLIP_270", "flip270",
)

var cameraSizes = newEnum(string(DefaultCameraSize),
	"ULTRA_HD", "4032x3024",
	"ULTRA_HD_17_9", "4032x2268",
	"ULTRA_HD_WIDE", "4032x1816",
	"UHD_4K", "3840x2160",
	"HIGH_RES", "3648x2736",
	"R_3648x2052", "3648x2052",
	"R_3648x1640", "3648x1640",
	"R_3216x1808", "3216x1808",
	"R_3216x1448", "3216x1448",
	"SQUARE_3K", "3024x3024",
	"R_2944x2208", "2944x2208",
	"SQUARE_2K", "2736x2736",
	"FHD_PLUS", "2400x1080",
	"R_2208x2208", "2208x2208",
	"FULL_HD_TALL", "1920x1440",
	"FULL_HD", "1920x1080",
	"FULL_HD_ULTRAWIDE", "1920x864",
	"HD_TALL", "1440x1080",
	"HD", "1280x720",
	"SQUARE_HD", "1088x1088",
	"MEDIUM", "960x720",
	"SD_WIDE", "720x480",
	"SD", "640x480",
	"SD_ULTRAWIDE", "640x360",
	"LOW_1", "352x288",
	"LOW_2", "320x240",
	"LOW_3", "256x144",
	"LOWEST", "176x144",
)

func init() {
	// Every size is also addressable as R_<width>x<height>.
	values := make([]string, 0, len(cameraSizes.members))
	for _, v := range cameraSizes.members {
		values = append(values, v)
	}
	for _, v := range values {
		cameraSizes.members["r_"+v] = v
	}
}

var bitrates = newEnum(string(DefaultBitrate),
	"BR_64M", "64M",
	"BR_32M", "32M",
	"BR_16M", "16M",
	"BR_8M", "8M",
	"BR_4M", "4M",
	"BR_2M", "2M",
	"BR_1M", "1M",
	"BR_512K", "512K",
	"BR_256K", "256K",
	"BR_128K", "128K",
	"BR_64K", "64K",
	"BR_32K", "32K",
	"BR_16K", "16K",
	"BR_8K", "8K",
	"BR_4K", "4K",
	"BR_2K", "2K",
	"BR_1K", "1K",
)
