package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz int `yaml:"tick_rate_hz"`
	DayTicks   int `yaml:"day_ticks"`

	WhisperRadius float64 `yaml:"whisper_radius"`
	NormalRadius  float64 `yaml:"normal_radius"`

	MoveSpeed     float64 `yaml:"move_speed"` // units per tick
	MaxMessageLen int     `yaml:"max_message_len"`

	EventBufferSize int     `yaml:"event_buffer_size"`
	SubscriberQueue int     `yaml:"subscriber_queue"`
	GridCellSize    float64 `yaml:"grid_cell_size"`

	AwayAfterTicks   int `yaml:"away_after_ticks"`
	IdleTimeoutTicks int `yaml:"idle_timeout_ticks"`

	WeatherEveryTicks  int `yaml:"weather_every_ticks"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`
	ObjectDecayTicks   int `yaml:"object_decay_ticks"`

	RateLimits RateLimits `yaml:"rate_limits"`
}

// RateLimits configures one fixed window per action class.
type RateLimits struct {
	GeneralWindowTicks    int `yaml:"general_window_ticks"`
	GeneralMax            int `yaml:"general_max"`
	SpeechWindowTicks     int `yaml:"speech_window_ticks"`
	SpeechMax             int `yaml:"speech_max"`
	PerceptionWindowTicks int `yaml:"perception_window_ticks"`
	PerceptionMax         int `yaml:"perception_max"`
}

// Default returns the tuning used when no tuning.yaml is present. Values are
// sized for a 1 Hz world: windows of 60 ticks are one minute.
func Default() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         1,
		DayTicks:           1440,
		WhisperRadius:      2,
		NormalRadius:       10,
		MoveSpeed:          4,
		MaxMessageLen:      1024,
		EventBufferSize:    1000,
		SubscriberQueue:    64,
		GridCellSize:       8,
		AwayAfterTicks:     60,
		IdleTimeoutTicks:   120,
		WeatherEveryTicks:  600,
		SnapshotEveryTicks: 300,
		ObjectDecayTicks:   300,
		RateLimits: RateLimits{
			GeneralWindowTicks:    60,
			GeneralMax:            30,
			SpeechWindowTicks:     60,
			SpeechMax:             30,
			PerceptionWindowTicks: 60,
			PerceptionMax:         120,
		},
	}
}

func Load(path string) (Tuning, error) {
	t := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}
