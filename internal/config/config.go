// Package config loads bot configuration from YAML and CHESSBOT_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"chessbot/internal/core"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Engine    EngineConfig    `mapstructure:"engine"`
	Search    SearchConfig    `mapstructure:"search"`
	Validator ValidatorConfig `mapstructure:"validator"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Transport TransportConfig `mapstructure:"transport"`
	Storage   StorageConfig   `mapstructure:"storage"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type EngineConfig struct {
	Path             string        `mapstructure:"path" validate:"required"`
	MultiPV          int           `mapstructure:"multipv" validate:"min=1,max=10"`
	Contempt         int           `mapstructure:"contempt" validate:"min=-100,max=100"`
	MoveOverhead     int           `mapstructure:"move_overhead" validate:"min=0,max=5000"`
	WatchdogInterval time.Duration `mapstructure:"watchdog_interval" validate:"gt=0"`
	StallTimeout     time.Duration `mapstructure:"stall_timeout" validate:"gt=0"`
	InitTimeout      time.Duration `mapstructure:"init_timeout" validate:"gt=0"`
	InitRetryDelay   time.Duration `mapstructure:"init_retry_delay" validate:"gte=0"`
}

type SearchConfig struct {
	OpeningPlies int        `mapstructure:"opening_plies" validate:"min=0"`
	EndgamePly   int        `mapstructure:"endgame_ply" validate:"gtefield=OpeningPlies"`
	Depth        DepthTable `mapstructure:"depth"`
}

type DepthTable struct {
	Opening    int `mapstructure:"opening" validate:"min=1,max=60"`
	Middlegame int `mapstructure:"middlegame" validate:"min=1,max=60"`
	Endgame    int `mapstructure:"endgame" validate:"min=1,max=60"`
}

type ValidatorConfig struct {
	Imprecision float64 `mapstructure:"imprecision" validate:"min=0,max=1"`
	Seed        uint64  `mapstructure:"seed"`
}

type DeliveryConfig struct {
	AckDelay         time.Duration   `mapstructure:"ack_delay" validate:"gt=0"`
	SecondaryDelay   time.Duration   `mapstructure:"secondary_delay" validate:"gte=0"`
	Backoff          []time.Duration `mapstructure:"backoff" validate:"required,min=1"`
	MaxRetries       int             `mapstructure:"max_retries" validate:"min=0,max=50"`
	FailureThreshold int             `mapstructure:"failure_threshold" validate:"min=1"`
}

type TransportConfig struct {
	URL              string         `mapstructure:"url" validate:"required,url"`
	ReconnectDelay   time.Duration  `mapstructure:"reconnect_delay" validate:"gt=0"`
	WriteBuffer      int            `mapstructure:"write_buffer" validate:"min=1"`
	Aux              map[string]any `mapstructure:"aux"`
	BridgeURL        string         `mapstructure:"bridge_url" validate:"omitempty,url"`
	InteractionDelay time.Duration  `mapstructure:"interaction_delay" validate:"gte=0"`
}

type StorageConfig struct {
	Path string `mapstructure:"path"`
}

type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host" validate:"required_if=Enabled true"`
	Port    int    `mapstructure:"port" validate:"min=0,max=65535"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

var validate = validator.New()

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.path", "stockfish")
	v.SetDefault("engine.multipv", 3)
	v.SetDefault("engine.contempt", 0)
	v.SetDefault("engine.move_overhead", 30)
	v.SetDefault("engine.watchdog_interval", 2*time.Second)
	v.SetDefault("engine.stall_timeout", 10*time.Second)
	v.SetDefault("engine.init_timeout", 5*time.Second)
	v.SetDefault("engine.init_retry_delay", 2*time.Second)

	v.SetDefault("search.opening_plies", 20)
	v.SetDefault("search.endgame_ply", 60)
	v.SetDefault("search.depth.opening", 12)
	v.SetDefault("search.depth.middlegame", 16)
	v.SetDefault("search.depth.endgame", 20)

	v.SetDefault("validator.imprecision", 0.0)
	v.SetDefault("validator.seed", 0)

	v.SetDefault("delivery.ack_delay", time.Second)
	v.SetDefault("delivery.secondary_delay", 200*time.Millisecond)
	v.SetDefault("delivery.backoff", []string{"100ms", "300ms", "800ms", "2s", "5s"})
	v.SetDefault("delivery.max_retries", 5)
	v.SetDefault("delivery.failure_threshold", 3)

	v.SetDefault("transport.url", "ws://localhost:9663/socket")
	v.SetDefault("transport.reconnect_delay", 2*time.Second)
	v.SetDefault("transport.write_buffer", 16)
	v.SetDefault("transport.bridge_url", "http://localhost:9664")
	v.SetDefault("transport.interaction_delay", 150*time.Millisecond)

	v.SetDefault("storage.path", "")

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.host", "localhost")
	v.SetDefault("http.port", 8088)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load reads the config file at path (optional when empty or missing) and
// applies environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CHESSBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// DepthFor returns the configured search depth for a game phase
func (t DepthTable) DepthFor(phase core.Phase) int {
	switch phase {
	case core.PhaseOpening:
		return t.Opening
	case core.PhaseMiddlegame:
		return t.Middlegame
	default:
		return t.Endgame
	}
}
