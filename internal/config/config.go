package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type GameConfig struct {
	MaxNumber      int    `yaml:"max_number"`
	DefaultSession string `yaml:"default_session"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
	Mode string `yaml:"mode"` // persistent, ephemeral
}

type VoicePreference struct {
	Language string `yaml:"language"`
	Voice    string `yaml:"voice"`
}

type TTSConfig struct {
	Mode         string            `yaml:"mode"` // mock, exec
	Command      string            `yaml:"command"`
	Voices       []VoicePreference `yaml:"voices"`
	FallbackBeep bool              `yaml:"fallback_beep"`
	TimeoutMS    int               `yaml:"timeout_ms"`
}

type PlaybackConfig struct {
	Enabled bool   `yaml:"enabled"`
	Mode    string `yaml:"mode"` // mock, exec
	Command string `yaml:"command"`
}

type CallerConfig struct {
	Enabled     bool `yaml:"enabled"`
	MaxAttempts int  `yaml:"max_attempts"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Game        GameConfig      `yaml:"game"`
	Store       StoreConfig     `yaml:"store"`
	TTS         TTSConfig       `yaml:"tts"`
	Playback    PlaybackConfig  `yaml:"playback"`
	Caller      CallerConfig    `yaml:"caller"`
}

func Default() Config {
	return Config{
		RuntimeName: "tambolad",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Game: GameConfig{
			MaxNumber:      90,
			DefaultSession: "main-game",
		},
		Store: StoreConfig{
			Path: "./data/tambola.db",
			Mode: "persistent",
		},
		TTS: TTSConfig{
			Mode: "mock",
			Voices: []VoicePreference{
				{Language: "en-IN", Voice: "en-IN-Wavenet-C"},
				{Language: "en-IN"},
				{Language: "en-US"},
				{Language: "en-GB"},
			},
			FallbackBeep: false,
			TimeoutMS:    45000,
		},
		Playback: PlaybackConfig{
			Enabled: true,
			Mode:    "mock",
		},
		Caller: CallerConfig{
			Enabled:     true,
			MaxAttempts: 3,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "TAMBOLA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "TAMBOLA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "TAMBOLA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "TAMBOLA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "TAMBOLA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "TAMBOLA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "TAMBOLA_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "TAMBOLA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "TAMBOLA_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "TAMBOLA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "TAMBOLA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "TAMBOLA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "TAMBOLA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "TAMBOLA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "TAMBOLA_BUS_CONNECT_TIMEOUT_MS")
	overrideInt(&cfg.Game.MaxNumber, "TAMBOLA_GAME_MAX_NUMBER")
	overrideString(&cfg.Game.DefaultSession, "TAMBOLA_GAME_DEFAULT_SESSION")
	overrideString(&cfg.Store.Path, "TAMBOLA_STORE_PATH")
	overrideString(&cfg.Store.Mode, "TAMBOLA_STORE_MODE")
	overrideString(&cfg.TTS.Mode, "TAMBOLA_TTS_MODE")
	overrideString(&cfg.TTS.Command, "TAMBOLA_TTS_COMMAND")
	overrideBool(&cfg.TTS.FallbackBeep, "TAMBOLA_TTS_FALLBACK_BEEP")
	overrideInt(&cfg.TTS.TimeoutMS, "TAMBOLA_TTS_TIMEOUT_MS")
	overrideBool(&cfg.Playback.Enabled, "TAMBOLA_PLAYBACK_ENABLED")
	overrideString(&cfg.Playback.Mode, "TAMBOLA_PLAYBACK_MODE")
	overrideString(&cfg.Playback.Command, "TAMBOLA_PLAYBACK_COMMAND")
	overrideBool(&cfg.Caller.Enabled, "TAMBOLA_CALLER_ENABLED")
	overrideInt(&cfg.Caller.MaxAttempts, "TAMBOLA_CALLER_MAX_ATTEMPTS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Game.MaxNumber < 1 {
		return errors.New("game.max_number must be >= 1")
	}
	if cfg.Game.DefaultSession == "" {
		return errors.New("game.default_session must not be empty")
	}
	switch cfg.Store.Mode {
	case "persistent", "ephemeral":
		// ok
	default:
		return errors.New("store.mode must be one of persistent|ephemeral")
	}
	if cfg.Store.Mode == "persistent" && cfg.Store.Path == "" {
		return errors.New("store.path must not be empty when store.mode=persistent")
	}
	switch cfg.TTS.Mode {
	case "mock", "exec":
	default:
		return errors.New("tts.mode must be one of mock|exec")
	}
	if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when mode=exec")
	}
	if cfg.TTS.TimeoutMS <= 0 {
		return errors.New("tts.timeout_ms must be positive")
	}
	if cfg.Playback.Enabled {
		switch cfg.Playback.Mode {
		case "mock", "exec":
		default:
			return errors.New("playback.mode must be one of mock|exec")
		}
		if cfg.Playback.Mode == "exec" && cfg.Playback.Command == "" {
			return errors.New("playback.command must be set when mode=exec")
		}
	}
	if cfg.Caller.Enabled && cfg.Caller.MaxAttempts < 1 {
		return errors.New("caller.max_attempts must be >= 1")
	}
	return nil
}
