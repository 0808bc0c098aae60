package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chandan989/StrideOn/server/game"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "STRIDEON_"

// Config is the server configuration. Values come from defaults, then the
// YAML file, then STRIDEON_* environment variables (a .env file is loaded
// first when present), then command line flags.
type Config struct {
	Addr      string        `yaml:"addr"`
	ClientDir string        `yaml:"client_dir"`
	DBPath    string        `yaml:"db_path"`
	PublicURL string        `yaml:"public_url"`
	Log       LogConfig     `yaml:"log"`
	Game      GameConfig    `yaml:"game"`
	Kafka     KafkaConfig   `yaml:"kafka"`
	Archive   ArchiveConfig `yaml:"archive"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// GameConfig mirrors game.Config in YAML-friendly types.
type GameConfig struct {
	TickInterval      time.Duration `yaml:"tick_interval"`
	ClockDivider      int           `yaml:"clock_divider"`
	TimeBudget        time.Duration `yaml:"time_budget"`
	MinSampleDistance float64       `yaml:"min_sample_distance_m"`
	MaxTrailPoints    int           `yaml:"max_trail_points"`
	MinTrailForLoop   int           `yaml:"min_trail_for_loop"`
	MinLoopSize       int           `yaml:"min_loop_size"`
	ClosureThreshold  float64       `yaml:"closure_threshold_m"`
	CaloriesPerMeter  float64       `yaml:"calories_per_meter"`
	CutPolicy         string        `yaml:"cut_policy"`
	BotCount          int           `yaml:"bot_count"`
	BotTurnJitter     float64       `yaml:"bot_turn_jitter_deg"`
	BotMinSpeed       float64       `yaml:"bot_min_speed_m"`
	BotMaxSpeed       float64       `yaml:"bot_max_speed_m"`
	SpawnRadiusDeg    float64       `yaml:"spawn_radius_deg"`
	BotColors         []string      `yaml:"bot_colors"`
	PlayerColor       string        `yaml:"player_color"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

type ArchiveConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// DefaultConfig returns a config that runs standalone with the reference tuning.
func DefaultConfig() Config {
	g := game.DefaultConfig()
	return Config{
		Addr:      ":8080",
		ClientDir: "../client",
		DBPath:    "strideon.db",
		Log:       LogConfig{Level: "info", Format: "text"},
		Game: GameConfig{
			TickInterval:      g.TickInterval,
			ClockDivider:      g.ClockDivider,
			TimeBudget:        g.TimeBudget,
			MinSampleDistance: g.MinSampleDistance,
			MaxTrailPoints:    g.MaxTrailPoints,
			MinTrailForLoop:   g.MinTrailForLoop,
			MinLoopSize:       g.MinLoopSize,
			ClosureThreshold:  g.ClosureThreshold,
			CaloriesPerMeter:  g.CaloriesPerMeter,
			CutPolicy:         g.CutPolicy.String(),
			BotCount:          g.BotCount,
			BotTurnJitter:     g.BotTurnJitter,
			BotMinSpeed:       g.BotMinSpeed,
			BotMaxSpeed:       g.BotMaxSpeed,
			SpawnRadiusDeg:    g.SpawnRadiusDeg,
			BotColors:         g.BotColors,
			PlayerColor:       g.PlayerColor,
		},
		Archive: ArchiveConfig{Bucket: "strideon-sessions"},
	}
}

// LoadConfig builds the configuration. A missing file or .env is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if _, err := cfg.Game.Build(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides fields from STRIDEON_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}
	str("ADDR", &c.Addr)
	str("CLIENT_DIR", &c.ClientDir)
	str("DB_PATH", &c.DBPath)
	str("PUBLIC_URL", &c.PublicURL)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("CUT_POLICY", &c.Game.CutPolicy)
	str("MINIO_ENDPOINT", &c.Archive.Endpoint)
	str("MINIO_ACCESS_KEY", &c.Archive.AccessKey)
	str("MINIO_SECRET_KEY", &c.Archive.SecretKey)
	str("MINIO_BUCKET", &c.Archive.Bucket)

	if v, ok := lookup(envPrefix + "KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.Kafka.Brokers = append(c.Kafka.Brokers, b)
			}
		}
	}
	if v, ok := lookup(envPrefix + "BOT_COUNT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sBOT_COUNT: %w", envPrefix, err)
		}
		c.Game.BotCount = n
	}
	if v, ok := lookup(envPrefix + "TIME_BUDGET"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sTIME_BUDGET: %w", envPrefix, err)
		}
		c.Game.TimeBudget = d
	}
	if v, ok := lookup(envPrefix + "MINIO_USE_SSL"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sMINIO_USE_SSL: %w", envPrefix, err)
		}
		c.Archive.UseSSL = b
	}
	return nil
}

// Build converts to the simulation config and validates it.
func (g GameConfig) Build() (game.Config, error) {
	policy, err := game.ParseCutPolicy(g.CutPolicy)
	if err != nil {
		return game.Config{}, err
	}
	cfg := game.Config{
		TickInterval:      g.TickInterval,
		ClockDivider:      g.ClockDivider,
		TimeBudget:        g.TimeBudget,
		MinSampleDistance: g.MinSampleDistance,
		MaxTrailPoints:    g.MaxTrailPoints,
		MinTrailForLoop:   g.MinTrailForLoop,
		MinLoopSize:       g.MinLoopSize,
		ClosureThreshold:  g.ClosureThreshold,
		CaloriesPerMeter:  g.CaloriesPerMeter,
		CutPolicy:         policy,
		BotCount:          g.BotCount,
		BotTurnJitter:     g.BotTurnJitter,
		BotMinSpeed:       g.BotMinSpeed,
		BotMaxSpeed:       g.BotMaxSpeed,
		SpawnRadiusDeg:    g.SpawnRadiusDeg,
		BotColors:         g.BotColors,
		PlayerColor:       g.PlayerColor,
	}
	return cfg, cfg.Validate()
}

// NewLogger builds the process logger.
func NewLogger(c LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
