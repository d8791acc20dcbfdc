package relay

import (
	"time"

	config "github.com/MeloQi/EasyGoLib/utils"
)

// Config carries the supervision cadence and the ffmpeg invocation knobs.
type Config struct {
	MonitorInterval        time.Duration
	SourceCheckInterval    time.Duration
	SourceProbeTimeout     time.Duration
	GracePeriod            time.Duration
	RestartPause           time.Duration
	MaxConsecutiveFailures int
	FailingCooldown        time.Duration
	Backoff                Backoff

	PlaceholderEnabled bool

	FFmpegBinary     string
	FFmpegGlobalArgs string
	FFmpegLogDir     string
	VideoBitrate     string
	AudioBitrate     string
}

func DefaultConfig() Config {
	return Config{
		MonitorInterval:        5 * time.Second,
		SourceCheckInterval:    20 * time.Second,
		SourceProbeTimeout:     3 * time.Second,
		GracePeriod:            3 * time.Second,
		RestartPause:           3 * time.Second,
		MaxConsecutiveFailures: 3,
		FailingCooldown:        60 * time.Second,
		Backoff:                Backoff{Base: DefaultBackoffBase, Cap: DefaultBackoffCap},
		PlaceholderEnabled:     true,
		FFmpegBinary:           "ffmpeg",
		VideoBitrate:           "3500k",
		AudioBitrate:           "160k",
	}
}

// LoadConfig reads the [relay] section of the ini file, falling back to the
// defaults above for anything unset.
func LoadConfig() Config {
	sec := config.Conf().Section("relay")
	def := DefaultConfig()
	return Config{
		MonitorInterval:        time.Duration(sec.Key("monitor_interval_second").MustInt(5)) * time.Second,
		SourceCheckInterval:    time.Duration(sec.Key("source_check_interval_second").MustInt(20)) * time.Second,
		SourceProbeTimeout:     time.Duration(sec.Key("source_probe_timeout_second").MustInt(3)) * time.Second,
		GracePeriod:            time.Duration(sec.Key("grace_period_second").MustInt(3)) * time.Second,
		RestartPause:           time.Duration(sec.Key("restart_pause_second").MustInt(3)) * time.Second,
		MaxConsecutiveFailures: sec.Key("max_consecutive_failures").MustInt(3),
		FailingCooldown:        time.Duration(sec.Key("failing_cooldown_second").MustInt(60)) * time.Second,
		Backoff: Backoff{
			Base: time.Duration(sec.Key("backoff_base_second").MustInt(1)) * time.Second,
			Cap:  time.Duration(sec.Key("backoff_cap_second").MustInt(60)) * time.Second,
		},
		PlaceholderEnabled: sec.Key("placeholder_enabled").MustBool(true),
		FFmpegBinary:       sec.Key("ffmpeg_binary").MustString(def.FFmpegBinary),
		FFmpegGlobalArgs:   sec.Key("ffmpeg_general_options").MustString(""),
		FFmpegLogDir:       sec.Key("ffmpeg_log_dir").MustString(config.CWD()),
		VideoBitrate:       sec.Key("video_bitrate").MustString(def.VideoBitrate),
		AudioBitrate:       sec.Key("audio_bitrate").MustString(def.AudioBitrate),
	}
}
