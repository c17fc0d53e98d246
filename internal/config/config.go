package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider identities used for routing and pricing lookups.
const (
	ProviderOpenAI     = "OpenAI"
	ProviderGoogle     = "Google"
	ProviderDeepgram   = "Deepgram"
	ProviderElevenLabs = "ElevenLabs"
	ProviderInternal   = "Internal"
)

// Default timeouts and limits.
const (
	DefaultProviderTimeout    = 120 * time.Second
	DefaultToolTimeout        = 10 * time.Minute
	DefaultSegmentConcurrency = 4
	DefaultSnippetSeconds     = 30
	DefaultShortFormSeconds   = 60
	DefaultPresignExpiry      = 15 * time.Minute
	DefaultLongRunningTimeout = 30 * time.Minute
)

// Config is constructed once at process start and passed down explicitly.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Routing    RoutingConfig    `yaml:"routing"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Google     GoogleConfig     `yaml:"google"`
	Deepgram   DeepgramConfig   `yaml:"deepgram"`
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`
}

// LogConfig selects the zap preset.
type LogConfig struct {
	Development bool `yaml:"development"`
}

// ServerConfig holds HTTP adapter settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StorageConfig selects and configures the object store backend.
type StorageConfig struct {
	Backend         string        `yaml:"backend"` // s3, minio, memory
	Region          string        `yaml:"region"`
	Bucket          string        `yaml:"bucket"`
	Endpoint        string        `yaml:"endpoint"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	UseSSL          bool          `yaml:"use_ssl"`
	PresignExpiry   time.Duration `yaml:"presign_expiry"`
}

// DatabaseConfig holds the relational store connection.
type DatabaseConfig struct {
	Driver  string `yaml:"driver"` // postgres, sqlite3
	DSN     string `yaml:"dsn"`
	Migrate bool   `yaml:"migrate"`
}

// RedisConfig holds the job queue connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PipelineConfig bounds the orchestrator's resource use.
type PipelineConfig struct {
	ScratchRoot        string        `yaml:"scratch_root"`
	FFmpegPath         string        `yaml:"ffmpeg_path"`
	FFprobePath        string        `yaml:"ffprobe_path"`
	SegmentConcurrency int           `yaml:"segment_concurrency"`
	ProviderTimeout    time.Duration `yaml:"provider_timeout"`
	ToolTimeout        time.Duration `yaml:"tool_timeout"`
	SnippetSeconds     int           `yaml:"snippet_seconds"`
}

// RoutingConfig names the provider used for each capability.
type RoutingConfig struct {
	PrimaryTranscriber   string `yaml:"primary_transcriber"`
	SecondaryTranscriber string `yaml:"secondary_transcriber"`
	PrimaryTranslator    string `yaml:"primary_translator"`
	SecondaryTranslator  string `yaml:"secondary_translator"`
	LanguageDetector     string `yaml:"language_detector"`
}

// OpenAIConfig configures Whisper transcription and chat translation.
type OpenAIConfig struct {
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
	TranscribeModel string `yaml:"transcribe_model"`
	TranslateModel  string `yaml:"translate_model"`
}

// GoogleConfig configures Speech-to-Text and Gemini translation.
type GoogleConfig struct {
	APIKey             string        `yaml:"api_key"`
	SpeechBaseURL      string        `yaml:"speech_base_url"`
	StagingBucket      string        `yaml:"staging_bucket"`
	Staging            StorageConfig `yaml:"staging"` // gcs (HMAC keys) or memory
	ShortFormSeconds   int           `yaml:"short_form_seconds"`
	LongRunningTimeout time.Duration `yaml:"long_running_timeout"`
	GeminiAPIKey       string        `yaml:"gemini_api_key"`
	GeminiModel        string        `yaml:"gemini_model"`
	GeminiBaseURL      string        `yaml:"gemini_base_url"`
}

// DeepgramConfig configures language detection.
type DeepgramConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// ElevenLabsConfig configures the ElevenLabs speech-to-text provider.
type ElevenLabsConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Default returns a configuration usable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 15 * time.Minute,
		},
		Storage: StorageConfig{
			Backend:       "s3",
			Region:        "us-east-1",
			PresignExpiry: DefaultPresignExpiry,
		},
		Database: DatabaseConfig{
			Driver: "postgres",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Pipeline: PipelineConfig{
			ScratchRoot:        filepath.Join(os.TempDir(), "voxmeter"),
			FFmpegPath:         "ffmpeg",
			FFprobePath:        "ffprobe",
			SegmentConcurrency: DefaultSegmentConcurrency,
			ProviderTimeout:    DefaultProviderTimeout,
			ToolTimeout:        DefaultToolTimeout,
			SnippetSeconds:     DefaultSnippetSeconds,
		},
		Routing: RoutingConfig{
			PrimaryTranscriber:   ProviderOpenAI,
			SecondaryTranscriber: ProviderGoogle,
			PrimaryTranslator:    ProviderOpenAI,
			SecondaryTranslator:  ProviderGoogle,
			LanguageDetector:     ProviderDeepgram,
		},
		OpenAI: OpenAIConfig{
			TranscribeModel: "whisper-1",
			TranslateModel:  "gpt-4",
		},
		Google: GoogleConfig{
			SpeechBaseURL:      "https://speech.googleapis.com/v1",
			ShortFormSeconds:   DefaultShortFormSeconds,
			LongRunningTimeout: DefaultLongRunningTimeout,
			GeminiModel:        "gemini-2.0-flash",
			Staging: StorageConfig{
				Backend:  "gcs",
				Endpoint: "storage.googleapis.com",
				Region:   "auto",
				UseSSL:   true,
			},
		},
		Deepgram: DeepgramConfig{
			BaseURL: "https://api.deepgram.com/v1",
		},
		ElevenLabs: ElevenLabsConfig{
			BaseURL: "https://api.elevenlabs.io/v1",
			Model:   "scribe_v1",
		},
	}
}

// Load builds the configuration: defaults, then the optional YAML file
// (with ${VAR} expansion), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	path = os.ExpandEnv(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	envString("OPENAI_API_KEY", &c.OpenAI.APIKey)
	envString("OPENAI_BASE_URL", &c.OpenAI.BaseURL)
	envString("GOOGLE_API_KEY", &c.Google.APIKey)
	envString("GCS_BUCKET_NAME", &c.Google.StagingBucket)
	envString("GCS_HMAC_ACCESS_KEY_ID", &c.Google.Staging.AccessKeyID)
	envString("GCS_HMAC_SECRET", &c.Google.Staging.SecretAccessKey)
	envString("GEMINI_API_KEY", &c.Google.GeminiAPIKey)
	envString("DEEPGRAM_API_KEY", &c.Deepgram.APIKey)
	envString("ELEVENLABS_API_KEY", &c.ElevenLabs.APIKey)

	envString("STORAGE_BACKEND", &c.Storage.Backend)
	envString("AWS_REGION", &c.Storage.Region)
	envString("AWS_S3_BUCKET", &c.Storage.Bucket)
	envString("AWS_ACCESS_KEY_ID", &c.Storage.AccessKeyID)
	envString("AWS_SECRET_ACCESS_KEY", &c.Storage.SecretAccessKey)
	envString("MINIO_ENDPOINT", &c.Storage.Endpoint)

	envString("DATABASE_DRIVER", &c.Database.Driver)
	envString("DATABASE_URL", &c.Database.DSN)
	envString("REDIS_ADDR", &c.Redis.Addr)
	envString("REDIS_PASSWORD", &c.Redis.Password)
	envString("SCRATCH_ROOT", &c.Pipeline.ScratchRoot)
	envString("FFMPEG_PATH", &c.Pipeline.FFmpegPath)
	envString("FFPROBE_PATH", &c.Pipeline.FFprobePath)
	envString("SERVER_ADDR", &c.Server.Addr)

	for _, fn := range []func() error{
		func() error { return envBool("MINIO_USE_SSL", &c.Storage.UseSSL) },
		func() error { return envBool("DATABASE_MIGRATE", &c.Database.Migrate) },
		func() error { return envBool("LOG_DEVELOPMENT", &c.Log.Development) },
		func() error { return envInt("REDIS_DB", &c.Redis.DB) },
		func() error { return envInt("SEGMENT_CONCURRENCY", &c.Pipeline.SegmentConcurrency) },
		func() error { return envDuration("PROVIDER_TIMEOUT", &c.Pipeline.ProviderTimeout) },
		func() error { return envDuration("TOOL_TIMEOUT", &c.Pipeline.ToolTimeout) },
	} {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the values the pipeline depends on.
func (c *Config) Validate() error {
	if err := ValidateTimeout(c.Pipeline.ProviderTimeout, "provider"); err != nil {
		return err
	}
	if err := ValidateTimeout(c.Pipeline.ToolTimeout, "tool"); err != nil {
		return err
	}
	if err := ValidateConcurrency(c.Pipeline.SegmentConcurrency, "segment"); err != nil {
		return err
	}
	if c.Pipeline.SnippetSeconds <= 0 {
		return fmt.Errorf("snippet seconds must be positive")
	}
	if c.Google.ShortFormSeconds <= 0 {
		return fmt.Errorf("google short form threshold must be positive")
	}
	switch c.Storage.Backend {
	case "s3", "minio", "memory":
	default:
		return fmt.Errorf("unsupported storage backend %q", c.Storage.Backend)
	}
	switch c.Google.Staging.Backend {
	case "gcs", "memory":
	default:
		return fmt.Errorf("unsupported google staging backend %q", c.Google.Staging.Backend)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Routing.PrimaryTranscriber == "" || c.Routing.PrimaryTranslator == "" || c.Routing.LanguageDetector == "" {
		return fmt.Errorf("primary providers must be configured")
	}
	return nil
}

// ValidateTimeout validates timeout duration
func ValidateTimeout(timeout time.Duration, name string) error {
	if timeout <= 0 {
		return fmt.Errorf("%s timeout must be positive", name)
	}
	if timeout > 60*time.Minute {
		return fmt.Errorf("%s timeout too large (max 60 minutes)", name)
	}
	return nil
}

// ValidateConcurrency validates concurrency setting
func ValidateConcurrency(concurrency int, name string) error {
	if concurrency <= 0 {
		return fmt.Errorf("%s concurrency must be positive", name)
	}
	if concurrency > 100 {
		return fmt.Errorf("%s concurrency too high (max 100)", name)
	}
	return nil
}
