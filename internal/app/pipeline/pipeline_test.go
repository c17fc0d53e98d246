package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"voxmeter/internal/app/api/provider"
	"voxmeter/internal/app/audio"
	"voxmeter/internal/app/errors"
	"voxmeter/internal/app/ledger"
	"voxmeter/internal/app/model"
	"voxmeter/internal/app/status"
	"voxmeter/internal/app/storage/objectstore"
	"voxmeter/internal/app/testutil"
	"voxmeter/internal/config"
)

const (
	bucket    = "media"
	audioKey  = "uploads/org-test/lecture.mp3"
	textKey   = "uploads/org-test/notes.txt"
	audioBody = "ID3-not-really-mp3"
)

// fakeRunner stands in for ffprobe/ffmpeg. The source probes as stereo
// mp3 of duration seconds, the converted file as canonical WAV, and
// segment_%05d.wav files with the durations in segments.
type fakeRunner struct {
	mu        sync.Mutex
	duration  float64
	segments  []float64
	ffmpegErr error
	calls     [][]string
}

func probeJSON(codec string, rate, channels int, seconds float64) []byte {
	return []byte(fmt.Sprintf(`{"streams":[{"codec_type":"audio","codec_name":%q,"sample_rate":"%d","channels":%d}],
		"format":{"format_name":"wav","duration":"%f"}}`, codec, rate, channels, seconds))
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()

	target := args[len(args)-1]
	base := filepath.Base(target)

	if name == "ffprobe" {
		var index int
		switch {
		case strings.HasPrefix(base, "segment_"):
			if _, err := fmt.Sscanf(base, "segment_%05d.wav", &index); err != nil || index >= len(f.segments) {
				return nil, fmt.Errorf("unexpected segment %s", base)
			}
			return probeJSON("pcm_s16le", 16000, 1, f.segments[index]), nil
		case strings.HasPrefix(base, "source"):
			return probeJSON("mp3", 44100, 2, f.duration), nil
		default:
			return probeJSON("pcm_s16le", 16000, 1, f.duration), nil
		}
	}

	if f.ffmpegErr != nil {
		return nil, f.ffmpegErr
	}
	if strings.Contains(target, "%05d") {
		for i := range f.segments {
			if err := os.WriteFile(fmt.Sprintf(target, i), []byte("RIFF0000WAVE"), 0o644); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}
	return nil, os.WriteFile(target, []byte("RIFF0000WAVE"), 0o644)
}

func (f *fakeRunner) ffmpegCalls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return lo.Filter(f.calls, func(c []string, _ int) bool { return c[0] == "ffmpeg" })
}

type testEnv struct {
	pipeline    *Pipeline
	repo        *testutil.MemoryStore
	blobs       *objectstore.Memory
	runner      *fakeRunner
	scratchRoot string

	primary             *testutil.MockTranscriber
	secondary           *testutil.MockTranscriber
	translator          *testutil.MockTranslator
	secondaryTranslator *testutil.MockTranslator
	detector            *testutil.MockDetector
}

type envOption func(cfg *config.Config, pricing *[]model.ServicePricing)

func withConfig(fn func(*config.Config)) envOption {
	return func(cfg *config.Config, _ *[]model.ServicePricing) { fn(cfg) }
}

func withPricing(rows ...model.ServicePricing) envOption {
	return func(_ *config.Config, pricing *[]model.ServicePricing) { *pricing = rows }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	ctx := context.Background()

	cfg := config.Default()
	cfg.Storage.Bucket = bucket
	cfg.Pipeline.ScratchRoot = filepath.Join(t.TempDir(), "scratch")
	pricing := testutil.StandardPricing()
	for _, opt := range opts {
		opt(cfg, &pricing)
	}

	env := &testEnv{
		repo:                testutil.NewMemoryStore(),
		blobs:               objectstore.NewMemory(),
		runner:              &fakeRunner{duration: 125, segments: []float64{60, 60, 5}},
		scratchRoot:         cfg.Pipeline.ScratchRoot,
		primary:             testutil.NewMockTranscriber(config.ProviderOpenAI),
		secondary:           testutil.NewMockTranscriber(config.ProviderGoogle),
		translator:          testutil.NewMockTranslator(config.ProviderOpenAI),
		secondaryTranslator: testutil.NewMockTranslator(config.ProviderGoogle),
		detector:            testutil.NewMockDetector(config.ProviderDeepgram),
	}

	registry := provider.NewRegistry()
	require.NoError(t, registry.RegisterTranscriber(env.primary))
	require.NoError(t, registry.RegisterTranscriber(env.secondary))
	require.NoError(t, registry.RegisterTranslator(env.translator))
	require.NoError(t, registry.RegisterTranslator(env.secondaryTranslator))
	require.NoError(t, registry.RegisterDetector(env.detector))

	env.repo.SeedPricing(pricing...)
	require.NoError(t, env.repo.CreateFile(ctx, &model.File{
		ID:                testutil.FileID,
		Name:              "lecture.mp3",
		StorageKey:        audioKey,
		OrganizationID:    testutil.OrgID,
		UserID:            testutil.UserID,
		Status:            model.StatusAvailable,
		TranscriptStatus:  model.StatusPending,
		TranslationStatus: model.StatusPending,
	}))
	_, err := env.blobs.Put(ctx, bucket, audioKey, strings.NewReader(audioBody), int64(len(audioBody)), "audio/mpeg")
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	env.pipeline = New(cfg,
		audio.NewTool(cfg.Pipeline, env.runner, logger),
		env.blobs,
		registry,
		ledger.New(env.repo, nil, logger),
		status.New(env.repo, logger),
		nil,
		logger)
	return env
}

func (e *testEnv) file(t *testing.T) *model.File {
	t.Helper()
	f, err := e.repo.GetFile(context.Background(), testutil.FileID)
	require.NoError(t, err)
	return f
}

func (e *testEnv) blob(t *testing.T, key string) []byte {
	t.Helper()
	body, err := e.blobs.Get(context.Background(), bucket, key)
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	return data
}

func (e *testEnv) assertScratchClean(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(e.scratchRoot)
	if os.IsNotExist(err) {
		return
	}
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch directories left behind")
}

func transcribeRequest() *Request {
	return &Request{
		BlobKey:        audioKey,
		FileID:         testutil.FileID,
		Language:       "en",
		SegmentSeconds: 60,
		OrganizationID: testutil.OrgID,
		UserID:         testutil.UserID,
	}
}

// segmentText answers with "<prefix>-<segment name>" billed by the
// segment's duration.
func segmentText(prefix string) testutil.TranscribeFunc {
	return func(req *provider.TranscriptionRequest) (*provider.TranscriptionResponse, error) {
		name := strings.TrimSuffix(filepath.Base(req.AudioPath), ".wav")
		return testutil.Transcript(prefix+"-"+name, req.DurationSeconds), nil
	}
}

func TestTranscribeSegmentsAndBillsEachCall(t *testing.T) {
	env := newTestEnv(t)
	env.primary.On("Transcribe", mock.Anything, mock.Anything).Return(segmentText("openai"))

	resp, err := env.pipeline.Transcribe(context.Background(), transcribeRequest())
	require.NoError(t, err)

	env.primary.AssertNumberOfCalls(t, "Transcribe", 3)
	assert.Equal(t, 3, resp.Segments)
	assert.Equal(t, "openai-segment_00000\nopenai-segment_00001\nopenai-segment_00002", resp.PrimaryResult.Text)
	assert.Equal(t, "OpenAI", resp.PrimaryResult.Provider)
	assert.Nil(t, resp.SecondaryResult)
	assert.InDelta(t, 125.0, resp.PrimaryResult.Usage.AudioSeconds, 1e-9)

	rows := env.repo.Usage()
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, model.ServiceTranscription, row.Service)
		assert.Equal(t, "OpenAI", row.Provider)
		assert.True(t, strings.HasPrefix(row.IdempotencyKey, testutil.OrgID+"/"+resp.OperationID+"/"))
		assert.Contains(t, row.IdempotencyKey, "/a0/transcribe/OpenAI/")
	}
	minutes := lo.SumBy(rows, func(u model.ServiceUsage) float64 { return u.AudioDurationMinutes })
	assert.InDelta(t, 125.0/60, minutes, 1e-9)

	// 60 s at 0.006/min rounds to 0.01; 5 s rounds to 0.
	costs := lo.Map(rows, func(u model.ServiceUsage, _ int) float64 { return u.Cost })
	assert.ElementsMatch(t, []float64{0.01, 0.01, 0}, costs)
	assert.InDelta(t, 0.02, resp.TotalCost, 1e-9)
	assert.Equal(t, "USD", resp.Currency)

	key := "transcriptions/org-test/lecture-openai-transcription.txt"
	assert.Equal(t, []string{"memory://media/" + key}, resp.ArtifactURLs)
	assert.Equal(t, resp.PrimaryResult.Text, string(env.blob(t, key)))

	f := env.file(t)
	assert.Equal(t, model.StatusAvailable, f.TranscriptStatus)
	assert.Equal(t, key, f.TranscriptionArtifactKey)
	env.assertScratchClean(t)
}

func TestTranscribeWithoutSegmentation(t *testing.T) {
	env := newTestEnv(t)
	env.primary.On("Transcribe", mock.Anything, mock.MatchedBy(func(req *provider.TranscriptionRequest) bool {
		return filepath.Base(req.AudioPath) == "canonical.wav" && req.DurationSeconds == 125 && req.Language == "en"
	})).Return(testutil.Transcript("whole file", 125), nil).Once()

	req := transcribeRequest()
	req.SegmentSeconds = 0
	resp, err := env.pipeline.Transcribe(context.Background(), req)
	require.NoError(t, err)

	env.primary.AssertExpectations(t)
	assert.Equal(t, "whole file", resp.PrimaryResult.Text)
	require.Len(t, env.repo.Usage(), 1)
	// 125 s at 0.006/min = 0.0125
	assert.Equal(t, 0.01, env.repo.Usage()[0].Cost)
	for _, call := range env.runner.ffmpegCalls() {
		assert.NotContains(t, call, "segment")
	}
	env.assertScratchClean(t)
}

func TestTranscribeSecondaryFailureKeepsPrimary(t *testing.T) {
	env := newTestEnv(t)
	env.primary.On("Transcribe", mock.Anything, mock.Anything).Return(segmentText("openai"))
	env.secondary.On("Transcribe", mock.Anything, mock.Anything).
		Return(nil, provider.NewError("Google", "server_error", "upstream unavailable"))

	req := transcribeRequest()
	req.DoubleModel = true
	resp, err := env.pipeline.Transcribe(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, resp.PrimaryResult)
	assert.Contains(t, resp.PrimaryResult.Text, "openai-segment_00000")
	require.NotNil(t, resp.SecondaryResult)
	assert.Equal(t, "Google", resp.SecondaryResult.Provider)
	assert.Contains(t, resp.SecondaryResult.Error, "upstream unavailable")
	assert.Empty(t, resp.SecondaryResult.Text)
	assert.Len(t, resp.ArtifactURLs, 1)

	assert.Equal(t, model.StatusAvailable, env.file(t).TranscriptStatus)
	for _, row := range env.repo.Usage() {
		assert.Equal(t, "OpenAI", row.Provider)
	}
	assert.Len(t, env.repo.Usage(), 3)
	env.assertScratchClean(t)
}

func TestTranscribeFanOut(t *testing.T) {
	env := newTestEnv(t)
	env.primary.On("Transcribe", mock.Anything, mock.Anything).Return(segmentText("openai"))
	env.secondary.On("Transcribe", mock.Anything, mock.Anything).Return(segmentText("google"))

	req := transcribeRequest()
	req.DoubleModel = true
	resp, err := env.pipeline.Transcribe(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, resp.SecondaryResult)
	assert.Empty(t, resp.SecondaryResult.Error)
	assert.Equal(t, "google-segment_00000\ngoogle-segment_00001\ngoogle-segment_00002", resp.SecondaryResult.Text)
	assert.ElementsMatch(t, []string{
		"memory://media/transcriptions/org-test/lecture-openai-transcription.txt",
		"memory://media/transcriptions/org-test/lecture-google-transcription.txt",
	}, resp.ArtifactURLs)

	rows := env.repo.Usage()
	assert.Len(t, rows, 6)
	byProvider := lo.CountValuesBy(rows, func(u model.ServiceUsage) string { return u.Provider })
	assert.Equal(t, map[string]int{"OpenAI": 3, "Google": 3}, byProvider)

	// Google: 60 s at 0.024/min rounds to 0.02, 5 s to 0.
	assert.InDelta(t, 0.02, resp.PrimaryResult.Cost, 1e-9)
	assert.InDelta(t, 0.04, resp.SecondaryResult.Cost, 1e-9)
	assert.InDelta(t, 0.06, resp.TotalCost, 1e-9)
}

func TestTranscribeMissingPricingAbortsBeforeCalls(t *testing.T) {
	env := newTestEnv(t, withPricing(testutil.GlobalPricing(model.ServiceTranslation, "", 0.00002, 0)))

	_, err := env.pipeline.Transcribe(context.Background(), transcribeRequest())
	require.Error(t, err)
	assert.Equal(t, errors.KindPricingNotFound, errors.KindOf(err))
	assert.True(t, errors.Is(err, errors.ErrPricingNotFound))

	env.primary.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything)
	assert.Empty(t, env.repo.Usage())
	assert.Empty(t, env.runner.calls, "nothing is downloaded or converted")
	assert.Equal(t, model.StatusFailed, env.file(t).TranscriptStatus)
	env.assertScratchClean(t)
}

func TestTranscribeMissingSecondaryPricingIsReportedInline(t *testing.T) {
	env := newTestEnv(t, withPricing(testutil.GlobalPricing(model.ServiceTranscription, "OpenAI", 0, 0.006)))
	env.primary.On("Transcribe", mock.Anything, mock.Anything).Return(segmentText("openai"))

	req := transcribeRequest()
	req.DoubleModel = true
	resp, err := env.pipeline.Transcribe(context.Background(), req)
	require.NoError(t, err)

	env.secondary.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything)
	assert.Equal(t, "Google", resp.SecondaryResult.Provider)
	assert.Contains(t, resp.SecondaryResult.Error, "active pricing not found")
	assert.Len(t, env.repo.Usage(), 3)
}

func TestTranscribePrimaryFailureKeepsExecutedRows(t *testing.T) {
	env := newTestEnv(t, withConfig(func(cfg *config.Config) { cfg.Pipeline.SegmentConcurrency = 1 }))
	env.primary.On("Transcribe", mock.Anything, mock.Anything).Return(testutil.TranscribeFunc(
		func(req *provider.TranscriptionRequest) (*provider.TranscriptionResponse, error) {
			if filepath.Base(req.AudioPath) == "segment_00001.wav" {
				return nil, provider.NewError("OpenAI", "invalid_request", "bad audio")
			}
			return testutil.Transcript("ok", req.DurationSeconds), nil
		}))

	_, err := env.pipeline.Transcribe(context.Background(), transcribeRequest())
	require.Error(t, err)
	assert.Equal(t, errors.KindProviderFailure, errors.KindOf(err))
	assert.Equal(t, "OpenAI", errors.ProviderOf(err))

	var perr *provider.Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "invalid_request", perr.Code)

	// segment 0 ran and stays billed; segment 2 never started
	env.primary.AssertNumberOfCalls(t, "Transcribe", 2)
	rows := env.repo.Usage()
	require.Len(t, rows, 1)
	assert.True(t, strings.HasSuffix(rows[0].IdempotencyKey, "/OpenAI/0"))

	assert.Equal(t, model.StatusFailed, env.file(t).TranscriptStatus)
	assert.Equal(t, []string{audioKey}, env.blobs.Keys(bucket), "no transcript uploaded")
	env.assertScratchClean(t)
}

func TestTranscribeConversionFailure(t *testing.T) {
	env := newTestEnv(t)
	env.runner.ffmpegErr = fmt.Errorf("exit status 1")

	_, err := env.pipeline.Transcribe(context.Background(), transcribeRequest())
	require.Error(t, err)
	assert.Equal(t, errors.KindConversionFailure, errors.KindOf(err))
	env.primary.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything)
	assert.Empty(t, env.repo.Usage())
	assert.Equal(t, model.StatusFailed, env.file(t).TranscriptStatus)
	env.assertScratchClean(t)
}

func TestTranscribeDownloadFailure(t *testing.T) {
	env := newTestEnv(t)
	req := transcribeRequest()
	req.BlobKey = "uploads/org-test/missing.mp3"

	_, err := env.pipeline.Transcribe(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, errors.KindDownloadFailure, errors.KindOf(err))
	assert.Equal(t, model.StatusFailed, env.file(t).TranscriptStatus)
	env.assertScratchClean(t)
}

func TestTranscribeFromFileURL(t *testing.T) {
	env := newTestEnv(t)
	env.primary.On("Transcribe", mock.Anything, mock.Anything).Return(segmentText("openai"))

	req := transcribeRequest()
	req.BlobKey = ""
	req.FileURL = "https://media.s3.us-east-1.amazonaws.com/" + audioKey
	resp, err := env.pipeline.Transcribe(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Segments)
}

func TestRequestValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"missing organization", func(r *Request) { r.OrganizationID = "" }},
		{"missing user", func(r *Request) { r.UserID = "" }},
		{"no source", func(r *Request) { r.BlobKey = "" }},
		{"malformed url", func(r *Request) { r.BlobKey, r.FileURL = "", "not a url" }},
		{"negative window", func(r *Request) { r.SegmentSeconds = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := transcribeRequest()
			tt.mutate(req)
			_, err := env.pipeline.Transcribe(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, errors.KindInvalidRequest, errors.KindOf(err))
		})
	}

	env.primary.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything)
	assert.Equal(t, model.StatusPending, env.file(t).TranscriptStatus, "invalid requests never touch status")
	env.assertScratchClean(t)
}

func TestTranscribeReplayOfSameAttemptDoesNotDoubleBill(t *testing.T) {
	env := newTestEnv(t)
	env.primary.On("Transcribe", mock.Anything, mock.Anything).Return(segmentText("openai"))

	req := transcribeRequest()
	req.OperationID = "op-retry"
	first, err := env.pipeline.Transcribe(context.Background(), req)
	require.NoError(t, err)
	second, err := env.pipeline.Transcribe(context.Background(), req)
	require.NoError(t, err)

	assert.Len(t, env.repo.Usage(), 3)
	assert.Equal(t, "op-retry", second.OperationID)
	assert.InDelta(t, first.TotalCost, second.TotalCost, 1e-9)
}

func TestTranscribeNextAttemptBillsAgain(t *testing.T) {
	env := newTestEnv(t)
	env.primary.On("Transcribe", mock.Anything, mock.Anything).Return(segmentText("openai"))

	req := transcribeRequest()
	req.OperationID = "op-retry"
	_, err := env.pipeline.Transcribe(context.Background(), req)
	require.NoError(t, err)
	req.Attempt = 1
	_, err = env.pipeline.Transcribe(context.Background(), req)
	require.NoError(t, err)

	env.primary.AssertNumberOfCalls(t, "Transcribe", 6)
	assert.Len(t, env.repo.Usage(), 6)
}

func TestReusedOperationIDBillsOtherWork(t *testing.T) {
	const otherKey = "uploads/org-other/other.mp3"

	tests := []struct {
		name   string
		mutate func(*Request)
		org    string
	}{
		{"other organization", func(r *Request) {
			r.OrganizationID, r.UserID, r.BlobKey, r.FileID = "org-other", "user-other", otherKey, ""
		}, "org-other"},
		{"other source", func(r *Request) { r.BlobKey, r.FileID = otherKey, "" }, testutil.OrgID},
		{"other window", func(r *Request) { r.SegmentSeconds = 30 }, testutil.OrgID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.primary.On("Transcribe", mock.Anything, mock.Anything).Return(segmentText("openai"))
			_, err := env.blobs.Put(context.Background(), bucket, otherKey, strings.NewReader(audioBody), int64(len(audioBody)), "audio/mpeg")
			require.NoError(t, err)

			req := transcribeRequest()
			req.OperationID = "op-shared"
			_, err = env.pipeline.Transcribe(context.Background(), req)
			require.NoError(t, err)

			other := transcribeRequest()
			other.OperationID = "op-shared"
			tt.mutate(other)
			resp, err := env.pipeline.Transcribe(context.Background(), other)
			require.NoError(t, err)

			env.primary.AssertNumberOfCalls(t, "Transcribe", 6)
			rows := env.repo.Usage()
			require.Len(t, rows, 6)
			billed := lo.Filter(rows, func(u model.ServiceUsage, i int) bool {
				return i >= 3 && u.OrganizationID == tt.org
			})
			assert.Len(t, billed, 3)
			assert.InDelta(t, 0.02, resp.TotalCost, 1e-9)
		})
	}
}

func TestTranscribeParentCancellationReachesProvider(t *testing.T) {
	// every segment call is in flight when the parent is cancelled
	env := newTestEnv(t, withConfig(func(c *config.Config) { c.Pipeline.SegmentConcurrency = 4 }))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var entered sync.Once
	started := make(chan struct{})
	env.primary.On("Transcribe", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		callCtx := args.Get(0).(context.Context)
		entered.Do(func() { close(started) })
		<-callCtx.Done()
	}).Return(nil, context.Canceled)

	go func() {
		<-started
		cancel()
	}()
	_, err := env.pipeline.Transcribe(ctx, transcribeRequest())
	require.Error(t, err)
	assert.Equal(t, errors.KindProviderFailure, errors.KindOf(err))
	assert.True(t, errors.Is(err, context.Canceled))

	assert.Empty(t, env.repo.Usage())
	assert.Equal(t, model.StatusFailed, env.file(t).TranscriptStatus)
	env.assertScratchClean(t)
}

func TestTranscribeProviderCallTimeout(t *testing.T) {
	env := newTestEnv(t, withConfig(func(c *config.Config) { c.Pipeline.ProviderTimeout = 50 * time.Millisecond }))

	var mu sync.Mutex
	var seen []error
	env.primary.On("Transcribe", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		callCtx := args.Get(0).(context.Context)
		<-callCtx.Done()
		mu.Lock()
		seen = append(seen, callCtx.Err())
		mu.Unlock()
	}).Return(nil, context.DeadlineExceeded)

	req := transcribeRequest()
	req.SegmentSeconds = 0
	_, err := env.pipeline.Transcribe(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, errors.KindProviderFailure, errors.KindOf(err))

	mu.Lock()
	require.Len(t, seen, 1)
	assert.ErrorIs(t, seen[0], context.DeadlineExceeded)
	mu.Unlock()
	assert.Equal(t, model.StatusFailed, env.file(t).TranscriptStatus)
	env.assertScratchClean(t)
}

func TestTranscribeUploadFailureKeepsBilledRows(t *testing.T) {
	env := newTestEnv(t)
	env.primary.On("Transcribe", mock.Anything, mock.Anything).Return(segmentText("openai"))
	env.blobs.FailPut = func(_, key string) error {
		if strings.HasPrefix(key, objectstore.PrefixTranscriptions+"/") {
			return fmt.Errorf("bucket unavailable")
		}
		return nil
	}

	_, err := env.pipeline.Transcribe(context.Background(), transcribeRequest())
	require.Error(t, err)
	assert.Equal(t, errors.KindUploadFailure, errors.KindOf(err))

	// the provider work happened, so its rows stay
	assert.Len(t, env.repo.Usage(), 3)
	assert.Equal(t, []string{audioKey}, env.blobs.Keys(bucket))
	assert.Equal(t, model.StatusFailed, env.file(t).TranscriptStatus)
	env.assertScratchClean(t)
}

func TestTranscribeLedgerFailure(t *testing.T) {
	env := newTestEnv(t)
	env.primary.On("Transcribe", mock.Anything, mock.Anything).Return(segmentText("openai"))
	env.repo.FailInsert = fmt.Errorf("disk full")

	_, err := env.pipeline.Transcribe(context.Background(), transcribeRequest())
	require.Error(t, err)
	assert.Equal(t, errors.KindPersistenceFailure, errors.KindOf(err))

	assert.Empty(t, env.repo.Usage())
	assert.Equal(t, []string{audioKey}, env.blobs.Keys(bucket), "no transcript uploaded")
	assert.Equal(t, model.StatusFailed, env.file(t).TranscriptStatus)
	env.assertScratchClean(t)
}

func TestConcurrentOperationsUseSeparateScratch(t *testing.T) {
	env := newTestEnv(t)
	env.primary.On("Transcribe", mock.Anything, mock.Anything).Return(segmentText("openai"))

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.pipeline.Transcribe(context.Background(), transcribeRequest())
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, env.repo.Usage(), 12)
	env.assertScratchClean(t)
}

type recordingProgress struct {
	mu       sync.Mutex
	totals   map[string]int
	advances map[string]int
}

func (p *recordingProgress) Start(_ string, providerName string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.totals[providerName] = total
}

func (p *recordingProgress) Advance(_ string, providerName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advances[providerName]++
}

func TestTranscribeReportsProgress(t *testing.T) {
	env := newTestEnv(t)
	env.primary.On("Transcribe", mock.Anything, mock.Anything).Return(segmentText("openai"))
	progress := &recordingProgress{totals: map[string]int{}, advances: map[string]int{}}
	env.pipeline.WithProgress(progress)

	_, err := env.pipeline.Transcribe(context.Background(), transcribeRequest())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"OpenAI": 3}, progress.totals)
	assert.Equal(t, map[string]int{"OpenAI": 3}, progress.advances)
}

func putText(t *testing.T, env *testEnv, key, text string) {
	t.Helper()
	_, err := env.blobs.Put(context.Background(), bucket, key, strings.NewReader(text), int64(len(text)), "text/plain")
	require.NoError(t, err)
}

func translateRequest() *Request {
	return &Request{
		BlobKey:        textKey,
		FileID:         testutil.FileID,
		Language:       "Spanish",
		TargetLanguage: "English",
		OrganizationID: testutil.OrgID,
		UserID:         testutil.UserID,
	}
}

func TestTranslateFanOut(t *testing.T) {
	env := newTestEnv(t)
	putText(t, env, textKey, "Hola mundo\n")
	matches := mock.MatchedBy(func(req *provider.TranslationRequest) bool {
		return req.Text == "Hola mundo" && req.SourceLanguage == "Spanish" && req.TargetLanguage == "English"
	})
	env.translator.On("Translate", mock.Anything, matches).Return(testutil.Translation("Hello world", 1000), nil).Once()
	env.secondaryTranslator.On("Translate", mock.Anything, matches).Return(testutil.Translation("Hello, world", 500), nil).Once()

	req := translateRequest()
	req.DoubleModel = true
	resp, err := env.pipeline.Translate(context.Background(), req)
	require.NoError(t, err)

	env.translator.AssertExpectations(t)
	env.secondaryTranslator.AssertExpectations(t)
	assert.Equal(t, "Hello world", resp.PrimaryResult.Text)
	assert.Equal(t, "Hello, world", resp.SecondaryResult.Text)
	assert.InDelta(t, 0.02, resp.PrimaryResult.Cost, 1e-9)
	assert.InDelta(t, 0.01, resp.SecondaryResult.Cost, 1e-9)
	assert.InDelta(t, 0.03, resp.TotalCost, 1e-9)

	rows := env.repo.Usage()
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, model.ServiceTranslation, row.Service)
		assert.Equal(t, int64(11), row.Bytes)
	}

	assert.Equal(t, "Hello world", string(env.blob(t, "translations/org-test/notes-openai-translation.txt")))
	assert.Equal(t, "Hello, world", string(env.blob(t, "translations/org-test/notes-google-translation.txt")))
	f := env.file(t)
	assert.Equal(t, model.StatusAvailable, f.TranslationStatus)
	assert.Equal(t, "translations/org-test/notes-openai-translation.txt", f.TranslationArtifactKey)
	env.assertScratchClean(t)
}

func TestTranslateSecondaryFailure(t *testing.T) {
	env := newTestEnv(t)
	putText(t, env, textKey, "Hola mundo")
	env.translator.On("Translate", mock.Anything, mock.Anything).Return(testutil.Translation("Hello world", 1000), nil)
	env.secondaryTranslator.On("Translate", mock.Anything, mock.Anything).
		Return(nil, provider.NewError("Google", "rate_limit_exceeded", "quota exhausted"))

	req := translateRequest()
	req.DoubleModel = true
	resp, err := env.pipeline.Translate(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, resp.SecondaryResult.Error, "quota exhausted")
	assert.Equal(t, model.StatusAvailable, env.file(t).TranslationStatus)
	assert.Len(t, env.repo.Usage(), 1)
}

func TestTranslateEmptySource(t *testing.T) {
	env := newTestEnv(t)
	putText(t, env, textKey, "  \n")

	_, err := env.pipeline.Translate(context.Background(), translateRequest())
	require.Error(t, err)
	assert.Equal(t, errors.KindInvalidRequest, errors.KindOf(err))
	env.translator.AssertNotCalled(t, "Translate", mock.Anything, mock.Anything)
	assert.Equal(t, model.StatusFailed, env.file(t).TranslationStatus)
	env.assertScratchClean(t)
}

func TestDetectLanguageUsesSnippet(t *testing.T) {
	env := newTestEnv(t)
	env.repo.SeedPricing(testutil.OrgPricing(testutil.OrgID, model.ServiceDetectLanguage, "Deepgram", 0, 0.1))
	env.detector.On("DetectLanguage", mock.Anything, mock.MatchedBy(func(req *provider.DetectionRequest) bool {
		return filepath.Base(req.AudioPath) == "snippet.wav" && req.DurationSeconds == 30
	})).Return(&provider.DetectionResponse{Language: "es", Confidence: 0.93}, nil).Once()

	req := transcribeRequest()
	req.SegmentSeconds = 0
	resp, err := env.pipeline.DetectLanguage(context.Background(), req)
	require.NoError(t, err)

	env.detector.AssertExpectations(t)
	assert.Equal(t, "es", resp.PrimaryResult.Language)
	assert.Equal(t, 0.93, resp.PrimaryResult.Confidence)
	// 30 s at the organization's 0.1/min
	assert.InDelta(t, 0.05, resp.TotalCost, 1e-9)

	rows := env.repo.Usage()
	require.Len(t, rows, 1)
	assert.Equal(t, model.ServiceDetectLanguage, rows[0].Service)
	assert.InDelta(t, 0.5, rows[0].AudioDurationMinutes, 1e-9)

	trimmed := lo.ContainsBy(env.runner.ffmpegCalls(), func(c []string) bool { return lo.Contains(c, "-t") })
	assert.True(t, trimmed, "long input is trimmed to the snippet window")
	assert.Equal(t, model.StatusPending, env.file(t).TranscriptStatus, "detection tracks no status")
	env.assertScratchClean(t)
}

func TestDetectLanguageShortAudioUsesWholeFile(t *testing.T) {
	env := newTestEnv(t)
	env.runner.duration = 12.5
	env.detector.On("DetectLanguage", mock.Anything, mock.MatchedBy(func(req *provider.DetectionRequest) bool {
		return req.DurationSeconds == 12.5
	})).Return(&provider.DetectionResponse{Language: "en", Confidence: 0.8}, nil).Once()

	resp, err := env.pipeline.DetectLanguage(context.Background(), transcribeRequest())
	require.NoError(t, err)
	assert.Equal(t, "en", resp.PrimaryResult.Language)

	trimmed := lo.ContainsBy(env.runner.ffmpegCalls(), func(c []string) bool { return lo.Contains(c, "-t") })
	assert.False(t, trimmed)
}

func TestDetectLanguageProviderFailure(t *testing.T) {
	env := newTestEnv(t)
	env.detector.On("DetectLanguage", mock.Anything, mock.Anything).
		Return(nil, provider.NewError("Deepgram", "no_language", "no language detected"))

	_, err := env.pipeline.DetectLanguage(context.Background(), transcribeRequest())
	require.Error(t, err)
	assert.Equal(t, errors.KindProviderFailure, errors.KindOf(err))
	assert.Equal(t, "Deepgram", errors.ProviderOf(err))
	assert.Empty(t, env.repo.Usage())
	env.assertScratchClean(t)
}

func TestConvertStoresCanonicalWav(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.pipeline.Convert(context.Background(), transcribeRequest())
	require.NoError(t, err)

	assert.Equal(t, []string{"memory://media/converted/org-test/lecture.wav"}, resp.ArtifactURLs)
	assert.Equal(t, "audio/wav", env.blobs.ContentType(bucket, "converted/org-test/lecture.wav"))
	assert.Equal(t, "RIFF0000WAVE", string(env.blob(t, "converted/org-test/lecture.wav")))

	rows := env.repo.Usage()
	require.Len(t, rows, 1)
	assert.Equal(t, model.ServiceAudioProcessing, rows[0].Service)
	assert.Equal(t, config.ProviderInternal, rows[0].Provider)
	assert.Equal(t, int64(12), rows[0].Bytes)
	assert.Equal(t, model.StatusAvailable, env.file(t).Status)
	env.assertScratchClean(t)
}

func TestSplitArchivesSegments(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.pipeline.Split(context.Background(), transcribeRequest())
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Segments)
	assert.Equal(t, []string{"memory://media/audio-splits/org-test/lecture.zip"}, resp.ArtifactURLs)

	data := env.blob(t, "audio-splits/org-test/lecture.zip")
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	names := lo.Map(zr.File, func(f *zip.File, _ int) string { return f.Name })
	assert.Equal(t, []string{"segment_00000.wav", "segment_00001.wav", "segment_00002.wav"}, names)

	rows := env.repo.Usage()
	require.Len(t, rows, 1)
	assert.Equal(t, int64(len(data)), rows[0].Bytes)
	env.assertScratchClean(t)
}

func TestSplitNoSegments(t *testing.T) {
	env := newTestEnv(t)
	env.runner.segments = nil

	_, err := env.pipeline.Split(context.Background(), transcribeRequest())
	require.Error(t, err)
	assert.Equal(t, errors.KindSegmentationFailure, errors.KindOf(err))
	assert.Equal(t, model.StatusFailed, env.file(t).Status)
	assert.Empty(t, env.repo.Usage())
	env.assertScratchClean(t)
}

func TestSplitRequiresWindow(t *testing.T) {
	env := newTestEnv(t)
	req := transcribeRequest()
	req.SegmentSeconds = 0

	_, err := env.pipeline.Split(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, errors.KindInvalidRequest, errors.KindOf(err))
}
