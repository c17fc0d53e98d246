package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30, cfg.Pipeline.SnippetSeconds)
	assert.Equal(t, 60, cfg.Google.ShortFormSeconds)
	assert.Equal(t, ProviderOpenAI, cfg.Routing.PrimaryTranscriber)
	assert.Equal(t, ProviderDeepgram, cfg.Routing.LanguageDetector)
}

func TestLoadYAMLWithEnvExpansion(t *testing.T) {
	t.Setenv("TEST_BUCKET", "media-bucket")
	t.Setenv("OPENAI_API_KEY", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "voxmeter.yaml")
	content := `
storage:
  backend: memory
  bucket: ${TEST_BUCKET}
database:
  driver: sqlite3
  dsn: file::memory:
pipeline:
  segment_concurrency: 8
  provider_timeout: 45s
routing:
  secondary_transcriber: ElevenLabs
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "media-bucket", cfg.Storage.Bucket)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, 8, cfg.Pipeline.SegmentConcurrency)
	assert.Equal(t, 45*time.Second, cfg.Pipeline.ProviderTimeout)
	assert.Equal(t, ProviderElevenLabs, cfg.Routing.SecondaryTranscriber)
	// untouched keys keep their defaults
	assert.Equal(t, ProviderOpenAI, cfg.Routing.PrimaryTranscriber)
	assert.Equal(t, "ffmpeg", cfg.Pipeline.FFmpegPath)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "minio")
	t.Setenv("SEGMENT_CONCURRENCY", "2")
	t.Setenv("PROVIDER_TIMEOUT", "10s")
	t.Setenv("DEEPGRAM_API_KEY", "dg-key")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "minio", cfg.Storage.Backend)
	assert.Equal(t, 2, cfg.Pipeline.SegmentConcurrency)
	assert.Equal(t, 10*time.Second, cfg.Pipeline.ProviderTimeout)
	assert.Equal(t, "dg-key", cfg.Deepgram.APIKey)
}

func TestLoadGoogleStagingEnv(t *testing.T) {
	t.Setenv("GCS_BUCKET_NAME", "speech-staging")
	t.Setenv("GCS_HMAC_ACCESS_KEY_ID", "GOOG1EXAMPLE")
	t.Setenv("GCS_HMAC_SECRET", "hmac-secret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "speech-staging", cfg.Google.StagingBucket)
	assert.Equal(t, "gcs", cfg.Google.Staging.Backend)
	assert.Equal(t, "storage.googleapis.com", cfg.Google.Staging.Endpoint)
	assert.Equal(t, "GOOG1EXAMPLE", cfg.Google.Staging.AccessKeyID)
	assert.Equal(t, "hmac-secret", cfg.Google.Staging.SecretAccessKey)
	// the artifact store keeps its own backend
	assert.Equal(t, "s3", cfg.Storage.Backend)
}

func TestLoadRejectsMalformedEnv(t *testing.T) {
	t.Setenv("SEGMENT_CONCURRENCY", "many")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SEGMENT_CONCURRENCY")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name          string
		mutate        func(*Config)
		errorContains string
	}{
		{
			name:          "zero provider timeout",
			mutate:        func(c *Config) { c.Pipeline.ProviderTimeout = 0 },
			errorContains: "provider timeout must be positive",
		},
		{
			name:          "tool timeout too large",
			mutate:        func(c *Config) { c.Pipeline.ToolTimeout = 2 * time.Hour },
			errorContains: "tool timeout too large",
		},
		{
			name:          "concurrency too high",
			mutate:        func(c *Config) { c.Pipeline.SegmentConcurrency = 500 },
			errorContains: "segment concurrency too high",
		},
		{
			name:          "unknown storage backend",
			mutate:        func(c *Config) { c.Storage.Backend = "ftp" },
			errorContains: "unsupported storage backend",
		},
		{
			name:          "staging on the artifact backend",
			mutate:        func(c *Config) { c.Google.Staging.Backend = "s3" },
			errorContains: "unsupported google staging backend",
		},
		{
			name:          "unknown database driver",
			mutate:        func(c *Config) { c.Database.Driver = "mysql" },
			errorContains: "unsupported database driver",
		},
		{
			name:          "missing primary translator",
			mutate:        func(c *Config) { c.Routing.PrimaryTranslator = "" },
			errorContains: "primary providers",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errorContains)
		})
	}
}

func TestGetAPIKeys(t *testing.T) {
	testCases := []struct {
		name          string
		openaiKey     string
		googleKey     string
		expectError   bool
		errorContains string
	}{
		{
			name:      "valid keys",
			openaiKey: "sk-1234567890abcdef1234567890abcdef",
			googleKey: "AIzaTest-1234567890abcdef1234567890",
		},
		{
			name: "no keys",
		},
		{
			name:          "invalid OpenAI key format",
			openaiKey:     "invalid-key",
			expectError:   true,
			errorContains: "invalid OPENAI_API_KEY format",
		},
		{
			name:          "OpenAI key too short",
			openaiKey:     "sk-short",
			expectError:   true,
			errorContains: "too short",
		},
		{
			name:          "invalid Google key",
			googleKey:     "not-google",
			expectError:   true,
			errorContains: "invalid GOOGLE_API_KEY format",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("OPENAI_API_KEY", tc.openaiKey)
			t.Setenv("GOOGLE_API_KEY", tc.googleKey)
			t.Setenv("GEMINI_API_KEY", "")

			keys, err := GetAPIKeys()
			if tc.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errorContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.openaiKey, keys.OpenAI)
			assert.Equal(t, tc.googleKey, keys.Google)
		})
	}
}
