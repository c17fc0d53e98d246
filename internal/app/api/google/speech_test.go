package google

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"voxmeter/internal/app/api/provider"
	"voxmeter/internal/app/storage/objectstore"
	"voxmeter/internal/config"
)

var fastPolicy = provider.RetryPolicy{
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
	MaxElapsedTime:  2 * time.Second,
}

func wavFile(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "audio.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFFxxxxWAVEpcm"), 0o644))
	return path
}

func newSpeech(t *testing.T, server *httptest.Server, store objectstore.Store) *SpeechTranscriber {
	s := NewSpeechTranscriber(config.GoogleConfig{
		APIKey:        "g-key",
		SpeechBaseURL: server.URL + "/v1",
		StagingBucket: "staging-bucket",
	}, store, server.Client(), zaptest.NewLogger(t))
	s.Policy = fastPolicy
	s.PollPolicy = fastPolicy
	return s
}

func TestShortFormRecognize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/speech:recognize", r.URL.Path)
		assert.Equal(t, "g-key", r.URL.Query().Get("key"))

		var req recognizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "LINEAR16", req.Config.Encoding)
		assert.Equal(t, 16000, req.Config.SampleRateHertz)
		assert.Equal(t, "es-ES", req.Config.LanguageCode)
		content, err := base64.StdEncoding.DecodeString(req.Audio.Content)
		require.NoError(t, err)
		assert.Equal(t, "RIFFxxxxWAVEpcm", string(content))

		_, _ = w.Write([]byte(`{"results":[
			{"alternatives":[{"transcript":"hola","confidence":0.9}]},
			{"alternatives":[{"transcript":" mundo "}]}
		]}`))
	}))
	defer server.Close()

	s := newSpeech(t, server, objectstore.NewMemory())
	resp, err := s.Transcribe(context.Background(), &provider.TranscriptionRequest{
		AudioPath:       wavFile(t),
		DurationSeconds: 45,
		Language:        "es-ES",
	})
	require.NoError(t, err)
	assert.Equal(t, "hola\nmundo", resp.Text)
	assert.Equal(t, 45.0, resp.Usage.AudioSeconds)
}

func TestLongRunningRecognize(t *testing.T) {
	store := objectstore.NewMemory()
	var polls atomic.Int32
	var stagedURI string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/speech:longrunningrecognize":
			var req recognizeRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Empty(t, req.Audio.Content)
			stagedURI = req.Audio.URI
			// the staged blob exists while the operation runs
			assert.Len(t, store.Keys("staging-bucket"), 1)
			_, _ = w.Write([]byte(`{"name":"op-123"}`))
		case r.URL.Path == "/v1/operations/op-123":
			if polls.Add(1) < 3 {
				_, _ = w.Write([]byte(`{"name":"op-123","done":false}`))
				return
			}
			_, _ = w.Write([]byte(`{"name":"op-123","done":true,"response":{"results":[
				{"alternatives":[{"transcript":"first"}]},
				{"alternatives":[{"transcript":"second"}]}
			]}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	s := newSpeech(t, server, store)
	resp, err := s.Transcribe(context.Background(), &provider.TranscriptionRequest{
		AudioPath:       wavFile(t),
		DurationSeconds: 125,
	})
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond", resp.Text)
	assert.Equal(t, "en-US", resp.Language)
	assert.Equal(t, int32(3), polls.Load())
	assert.True(t, strings.HasPrefix(stagedURI, "gs://staging-bucket/staging/"), stagedURI)
	assert.Empty(t, store.Keys("staging-bucket"), "staged audio is deleted")
}

func TestLongRunningOperationError(t *testing.T) {
	store := objectstore.NewMemory()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/speech:longrunningrecognize" {
			_, _ = w.Write([]byte(`{"name":"op-9"}`))
			return
		}
		_, _ = w.Write([]byte(`{"name":"op-9","done":true,"error":{"code":3,"message":"bad encoding"}}`))
	}))
	defer server.Close()

	s := newSpeech(t, server, store)
	_, err := s.Transcribe(context.Background(), &provider.TranscriptionRequest{AudioPath: wavFile(t), DurationSeconds: 90})
	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "operation_failed", perr.Code)
	assert.Contains(t, perr.Message, "bad encoding")
	assert.Empty(t, store.Keys("staging-bucket"))
}

func TestLongRunningTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":"op-slow","done":false}`))
	}))
	defer server.Close()

	s := newSpeech(t, server, objectstore.NewMemory())
	s.PollPolicy.MaxElapsedTime = 20 * time.Millisecond

	_, err := s.Transcribe(context.Background(), &provider.TranscriptionRequest{AudioPath: wavFile(t), DurationSeconds: 600})
	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "operation_timeout", perr.Code)
	assert.Equal(t, "Google", perr.Provider)
}

func TestSpeechValidateConfiguration(t *testing.T) {
	s := NewSpeechTranscriber(config.GoogleConfig{APIKey: "k"}, nil, nil, nil)
	assert.Error(t, s.ValidateConfiguration())

	s = NewSpeechTranscriber(config.GoogleConfig{APIKey: "k", StagingBucket: "b"}, objectstore.NewMemory(), nil, nil)
	assert.NoError(t, s.ValidateConfiguration())
}
