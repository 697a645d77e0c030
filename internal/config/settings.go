package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SessionConfig drives the session lifecycle manager.
type SessionConfig struct {
	SessionTimeout         time.Duration `mapstructure:"session_timeout"`
	InactivityTimeout      time.Duration `mapstructure:"inactivity_timeout"`
	HeartbeatTimeout       time.Duration `mapstructure:"heartbeat_timeout"`
	SweepInterval          time.Duration `mapstructure:"sweep_interval"`
	DeepValidationInterval time.Duration `mapstructure:"deep_validation_interval"`
	AutoCleanup            bool          `mapstructure:"auto_cleanup"`
	HeartbeatMonitoring    bool          `mapstructure:"heartbeat_monitoring"`
}

// GatewayConfig drives the per-connection handler.
type GatewayConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	WarnThreshold     time.Duration `mapstructure:"warn_threshold"`
	HeartbeatDebounce time.Duration `mapstructure:"heartbeat_debounce"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	MaxVoiceBytes     int           `mapstructure:"max_voice_bytes"`
	MaxFrameBytes     int64         `mapstructure:"max_frame_bytes"`
}

type PipelineConfig struct {
	MinSentenceChars int           `mapstructure:"min_sentence_chars"`
	MaxSentenceChars int           `mapstructure:"max_sentence_chars"`
	AudioChunkBytes  int           `mapstructure:"audio_chunk_bytes"`
	TurnTimeout      time.Duration `mapstructure:"turn_timeout"`
}

type AuthConfig struct {
	APIKeys     []string      `mapstructure:"api_keys"`
	JWTSecret   string        `mapstructure:"jwt_secret"`
	RedisKeySet string        `mapstructure:"redis_key_set"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
}

// DSN renders the mysql connection string; empty when no host is configured.
func (d DBConfig) DSN() string {
	if d.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.Username, d.Password, d.Host, d.Port, d.Name)
}

type VoiceConfig struct {
	WhisperURL string        `mapstructure:"whisper_url"`
	PiperURL   string        `mapstructure:"piper_url"`
	PiperVoice string        `mapstructure:"piper_voice"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type OpenAIConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type OllamaConfig struct {
	URLs  []string `mapstructure:"urls"`
	Model string   `mapstructure:"model"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type AnthropicConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int64  `mapstructure:"max_tokens"`
}

type LLMConfig struct {
	Provider       string          `mapstructure:"provider"`
	SystemPrompt   string          `mapstructure:"system_prompt"`
	RequestTimeout time.Duration   `mapstructure:"request_timeout"`
	EventBuffer    uint            `mapstructure:"event_buffer"`
	OpenAI         OpenAIConfig    `mapstructure:"openai"`
	Ollama         OllamaConfig    `mapstructure:"ollama"`
	Gemini         GeminiConfig    `mapstructure:"gemini"`
	Anthropic      AnthropicConfig `mapstructure:"anthropic"`
}

// EventsConfig selects where session lifecycle events go. Both sinks are
// optional.
type EventsConfig struct {
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
	StorePath     string `mapstructure:"store_path"`
	RetentionDays int    `mapstructure:"retention_days"`
	Buffer        int    `mapstructure:"buffer"`
}

type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	Stdout       bool   `mapstructure:"stdout"`
}

type Settings struct {
	Server    ServerConfig    `mapstructure:"server"`
	Session   SessionConfig   `mapstructure:"session"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Redis     RedisConfig     `mapstructure:"redis"`
	DB        DBConfig        `mapstructure:"database"`
	Voice     VoiceConfig     `mapstructure:"voice"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Events    EventsConfig    `mapstructure:"events"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Env       string          `mapstructure:"env"`
	Debug     bool            `mapstructure:"debug"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")
	v.SetDefault("debug", false)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", "5s")

	v.SetDefault("session.session_timeout", "30m")
	v.SetDefault("session.inactivity_timeout", "10m")
	v.SetDefault("session.heartbeat_timeout", "90s")
	v.SetDefault("session.sweep_interval", "30s")
	v.SetDefault("session.deep_validation_interval", "300s")
	v.SetDefault("session.auto_cleanup", true)
	v.SetDefault("session.heartbeat_monitoring", true)

	v.SetDefault("gateway.heartbeat_interval", "30s")
	v.SetDefault("gateway.warn_threshold", "2m")
	v.SetDefault("gateway.heartbeat_debounce", "1s")
	v.SetDefault("gateway.write_timeout", "10s")
	v.SetDefault("gateway.max_voice_bytes", 8<<20)
	v.SetDefault("gateway.max_frame_bytes", 12<<20)

	v.SetDefault("pipeline.min_sentence_chars", 10)
	v.SetDefault("pipeline.max_sentence_chars", 200)
	v.SetDefault("pipeline.audio_chunk_bytes", 4096)
	v.SetDefault("pipeline.turn_timeout", "2m")

	v.SetDefault("auth.api_keys", []string{})
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.redis_key_set", "gateway:api_keys")
	v.SetDefault("auth.token_ttl", "24h")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.username", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "xarvis")
	v.SetDefault("database.pool_size", 10)

	v.SetDefault("voice.whisper_url", "")
	v.SetDefault("voice.piper_url", "")
	v.SetDefault("voice.piper_voice", "")
	v.SetDefault("voice.timeout", "30s")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.system_prompt", "You are a helpful voice assistant. Keep answers short and conversational.")
	v.SetDefault("llm.request_timeout", "90s")
	v.SetDefault("llm.event_buffer", 32)
	v.SetDefault("llm.openai.api_key", "")
	v.SetDefault("llm.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.ollama.urls", []string{})
	v.SetDefault("llm.ollama.model", "llama3.1:8b-instruct")
	v.SetDefault("llm.gemini.api_key", "")
	v.SetDefault("llm.gemini.model", "gemini-2.5-flash-lite")
	v.SetDefault("llm.anthropic.api_key", "")
	v.SetDefault("llm.anthropic.model", "claude-3-5-haiku-latest")
	v.SetDefault("llm.anthropic.max_tokens", 1024)

	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.subject_prefix", "gateway.sessions")
	v.SetDefault("events.store_path", "")
	v.SetDefault("events.retention_days", 7)
	v.SetDefault("events.buffer", 256)

	v.SetDefault("telemetry.service_name", "xarvis-gateway")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.stdout", false)
}

// Load reads config_<env>.yaml from the working directory (optional) and
// applies XARVIS_ prefixed environment overrides on top of the defaults.
// A .env file next to the config seeds the environment first.
func Load() (*Settings, error) {
	return LoadFrom(".")
}

func LoadFrom(paths ...string) (*Settings, error) {
	s, _, err := load(paths)
	return s, err
}

// Watch loads like LoadFrom and then calls onChange with the re-decoded
// settings each time the config file is rewritten. Without a config file
// there is nothing to watch and onChange is never called.
func Watch(onChange func(*Settings, error), paths ...string) (*Settings, error) {
	s, v, err := load(paths)
	if err != nil {
		return nil, err
	}
	if v.ConfigFileUsed() == "" {
		return s, nil
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(decode(v))
	})
	v.WatchConfig()
	return s, nil
}

func load(paths []string) (*Settings, *viper.Viper, error) {
	for _, p := range paths {
		// a missing .env is normal
		_ = godotenv.Load(filepath.Join(p, ".env"))
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("XARVIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config_" + genEnv(v))
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	s, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	return s, v, nil
}

func decode(v *viper.Viper) (*Settings, error) {
	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Validate rejects tunables that would make the gateway misbehave.
func (s *Settings) Validate() error {
	if s.Session.SessionTimeout <= 0 {
		return fmt.Errorf("session.session_timeout must be positive")
	}
	if s.Session.SweepInterval <= 0 || s.Session.DeepValidationInterval <= 0 {
		return fmt.Errorf("session sweep intervals must be positive")
	}
	if s.Pipeline.MinSentenceChars <= 0 || s.Pipeline.MaxSentenceChars < s.Pipeline.MinSentenceChars {
		return fmt.Errorf("pipeline sentence bounds invalid: min=%d max=%d",
			s.Pipeline.MinSentenceChars, s.Pipeline.MaxSentenceChars)
	}
	if s.Gateway.MaxVoiceBytes <= 0 {
		return fmt.Errorf("gateway.max_voice_bytes must be positive")
	}
	return nil
}

func genEnv(v *viper.Viper) string {
	env := v.GetString("ENV")
	if env == "" {
		return "dev"
	}
	return env
}
