package deepgram

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxmeter/internal/app/api/provider"
	"voxmeter/internal/config"
)

func snippet(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "snippet.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF0000WAVE"), 0o644))
	return path
}

func TestDetectLanguage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/listen", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("detect_language"))
		assert.Equal(t, "Token dg-key", r.Header.Get("Authorization"))
		assert.Equal(t, "audio/wav", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "RIFF0000WAVE", string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"metadata": {"duration": 29.5},
			"results": {"channels": [{"detected_language": "es", "language_confidence": 0.91}]}
		}`))
	}))
	defer server.Close()

	d := NewDetector(config.DeepgramConfig{APIKey: "dg-key", BaseURL: server.URL + "/v1"}, server.Client())
	resp, err := d.DetectLanguage(context.Background(), &provider.DetectionRequest{AudioPath: snippet(t), DurationSeconds: 30})
	require.NoError(t, err)
	assert.Equal(t, "es", resp.Language)
	assert.Equal(t, 0.91, resp.Confidence)
	assert.Equal(t, 30.0, resp.Usage.AudioSeconds)
	assert.Equal(t, int64(12), resp.Usage.Bytes)
}

func TestDetectLanguageFallsBackToReportedDuration(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"metadata":{"duration":12.5},"results":{"channels":[{"detected_language":"en","language_confidence":0.5}]}}`))
	}))
	defer server.Close()

	d := NewDetector(config.DeepgramConfig{APIKey: "dg-key", BaseURL: server.URL}, nil)
	resp, err := d.DetectLanguage(context.Background(), &provider.DetectionRequest{AudioPath: snippet(t)})
	require.NoError(t, err)
	assert.Equal(t, 12.5, resp.Usage.AudioSeconds)
}

func TestDetectLanguageAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"err_code":"Bad Request","err_msg":"corrupt or unsupported data"}`))
	}))
	defer server.Close()

	d := NewDetector(config.DeepgramConfig{APIKey: "dg-key", BaseURL: server.URL}, nil)
	_, err := d.DetectLanguage(context.Background(), &provider.DetectionRequest{AudioPath: snippet(t)})
	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "invalid_request", perr.Code)
	assert.Equal(t, "corrupt or unsupported data (code: Bad Request)", perr.Message)
	assert.False(t, perr.Retryable)
}

func TestDetectLanguageNoChannels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":{"channels":[]}}`))
	}))
	defer server.Close()

	d := NewDetector(config.DeepgramConfig{APIKey: "dg-key", BaseURL: server.URL}, nil)
	_, err := d.DetectLanguage(context.Background(), &provider.DetectionRequest{AudioPath: snippet(t)})
	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "no_language", perr.Code)
}
