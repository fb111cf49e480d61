package internal

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type Config struct {
	Host     string `env:"HOST,required=true"`
	Port     int    `env:"PORT,required=true"`
	LogLevel string `env:"LOG_LEVEL,required=true"`

	AuthSecret        string        `env:"AUTH_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`

	BadgerFilepath  string `env:"BADGER_FILEPATH,required=true"`
	HistoryPageSize *int   `env:"HISTORY_PAGE_SIZE"`

	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,required=true"`
	MaxPayloadBytes      int64         `env:"MAX_PAYLOAD_BYTES,required=true"`

	PresenceGracePeriod time.Duration `env:"PRESENCE_GRACE_PERIOD,required=true"`
	CallIdleTimeout     time.Duration `env:"CALL_IDLE_TIMEOUT,required=true"`
	CallSweepInterval   time.Duration `env:"CALL_SWEEP_INTERVAL,required=true"`

	TelemetryBufferSize int           `env:"TELEMETRY_BUFFER_SIZE,required=true"`
	MetricInterval      time.Duration `env:"METRIC_INTERVAL,required=true"`
	RestartInterval     time.Duration `env:"RESTART_INTERVAL,required=true"`
	RamThresholdBytes   uint64        `env:"RAM_THRESHOLD_BYTES,required=true"`

	CensoredWordsPath string `env:"CENSORED_WORDS_PATH"`
	CharReplacement   string `env:"CHARACTER_REPLACEMENT,required=true"`
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}

// ParseLogLevel maps the LOG_LEVEL variable to a slog level, defaulting
// to info on unknown values.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
