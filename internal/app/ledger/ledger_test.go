package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"voxmeter/internal/app/errors"
	"voxmeter/internal/app/model"
	"voxmeter/internal/app/testutil"
)

func newLedger(t *testing.T, rows ...model.ServicePricing) (*Ledger, *testutil.MemoryStore) {
	store := testutil.NewMemoryStore()
	store.SeedPricing(rows...)
	return New(store, nil, zaptest.NewLogger(t)), store
}

func TestRound2(t *testing.T) {
	testCases := []struct {
		in, want float64
	}{
		{0.126, 0.13},
		{-0.126, -0.13},
		{0.124, 0.12},
		{2.5, 2.5},
		{0, 0},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, Round2(tc.in), "Round2(%v)", tc.in)
	}
}

func TestCost(t *testing.T) {
	testCases := []struct {
		name    string
		pricing model.ServicePricing
		tokens  int
		seconds float64
		want    float64
	}{
		{
			name:    "tokens only",
			pricing: testutil.GlobalPricing(model.ServiceTranslation, "", 0.00002, 0),
			tokens:  1234,
			want:    0.02,
		},
		{
			name:    "minutes only",
			pricing: testutil.GlobalPricing(model.ServiceTranscription, "", 0, 0.024),
			seconds: 300,
			want:    0.12,
		},
		{
			name:    "tokens and minutes",
			pricing: testutil.GlobalPricing(model.ServiceTranscription, "", 0.001, 0.1),
			tokens:  500,
			seconds: 90,
			want:    0.65,
		},
		{
			// each term alone rounds to zero; the sum does not
			name:    "rounded once",
			pricing: testutil.GlobalPricing(model.ServiceTranscription, "", 0.001, 0.1),
			tokens:  4,
			seconds: 2.4,
			want:    0.01,
		},
		{
			name:    "zero usage",
			pricing: testutil.GlobalPricing(model.ServiceTranscription, "", 0.001, 0.1),
			want:    0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Cost(tc.pricing, tc.tokens, tc.seconds))
		})
	}
}

func TestQuotePrecedence(t *testing.T) {
	l, _ := newLedger(t,
		testutil.OrgPricing(testutil.OrgID, model.ServiceTranscription, "OpenAI", 0, 0.5),
		testutil.OrgPricing(testutil.OrgID, model.ServiceTranscription, "", 0, 0.4),
		testutil.GlobalPricing(model.ServiceTranscription, "OpenAI", 0, 0.3),
		testutil.GlobalPricing(model.ServiceTranscription, "", 0, 0.2),
	)
	ctx := context.Background()

	testCases := []struct {
		name     string
		org      string
		provider string
		want     float64
	}{
		{"organization and provider", testutil.OrgID, "OpenAI", 0.5},
		{"provider matched case-insensitively", testutil.OrgID, "openai", 0.5},
		{"organization any provider", testutil.OrgID, "Google", 0.4},
		{"organization without provider", testutil.OrgID, "", 0.4},
		{"global and provider", "org-other", "OpenAI", 0.3},
		{"global any provider", "org-other", "Google", 0.2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := l.Quote(ctx, tc.org, model.ServiceTranscription, tc.provider)
			require.NoError(t, err)
			assert.Equal(t, tc.want, p.PricePerMinute)
		})
	}
}

func TestQuoteIgnoresInactiveRows(t *testing.T) {
	inactive := testutil.GlobalPricing(model.ServiceTranslation, "", 0.5, 0)
	inactive.IsActive = false
	l, _ := newLedger(t, inactive)

	_, err := l.Quote(context.Background(), testutil.OrgID, model.ServiceTranslation, "OpenAI")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPricingNotFound))
}

func TestQuoteAmbiguous(t *testing.T) {
	l, _ := newLedger(t,
		testutil.GlobalPricing(model.ServiceTranslation, "", 0.00002, 0),
		testutil.GlobalPricing(model.ServiceTranslation, "", 0.00003, 0),
	)

	_, err := l.Quote(context.Background(), testutil.OrgID, model.ServiceTranslation, "OpenAI")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPricingAmbiguous))
	assert.Equal(t, errors.KindPricingNotFound, errors.KindOf(err))
}

func TestPriceAndLog(t *testing.T) {
	l, store := newLedger(t, testutil.StandardPricing()...)

	charge, err := l.PriceAndLog(context.Background(), Entry{
		IdempotencyKey: Key("op-1", "transcribe", "OpenAI", 0),
		OrganizationID: testutil.OrgID,
		UserID:         testutil.UserID,
		Service:        model.ServiceTranscription,
		Provider:       "OpenAI",
		AudioSeconds:   300,
		Metadata:       map[string]any{"file_id": testutil.FileID},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.03, charge.Cost)
	assert.Equal(t, "USD", charge.Currency)
	assert.False(t, charge.Duplicate)

	rows := store.Usage()
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, "op-1/transcribe/OpenAI/0", row.IdempotencyKey)
	assert.Equal(t, charge.UsageID, row.ID)
	assert.Equal(t, 5.0, row.AudioDurationMinutes)
	assert.Equal(t, model.UsageStatusSuccess, row.Status)

	var metadata map[string]string
	require.NoError(t, json.Unmarshal([]byte(row.RequestMetadata), &metadata))
	assert.Equal(t, testutil.FileID, metadata["file_id"])
}

func TestPriceAndLogMissingPricingWritesNothing(t *testing.T) {
	l, store := newLedger(t)

	_, err := l.PriceAndLog(context.Background(), Entry{
		IdempotencyKey: "op-1/translate/OpenAI/0",
		OrganizationID: testutil.OrgID,
		Service:        model.ServiceTranslation,
		Provider:       "OpenAI",
		Tokens:         100,
	})
	require.Error(t, err)
	assert.Equal(t, errors.KindPricingNotFound, errors.KindOf(err))
	assert.Empty(t, store.Usage())
}

func TestPriceAndLogRequiresKey(t *testing.T) {
	l, _ := newLedger(t, testutil.StandardPricing()...)

	_, err := l.PriceAndLog(context.Background(), Entry{Service: model.ServiceTranslation})
	require.Error(t, err)
	assert.Equal(t, errors.KindInvalidRequest, errors.KindOf(err))
}

func TestPriceAndLogPersistenceFailure(t *testing.T) {
	l, store := newLedger(t, testutil.StandardPricing()...)
	store.FailInsert = fmt.Errorf("disk full")

	_, err := l.PriceAndLog(context.Background(), Entry{
		IdempotencyKey: "op-1/translate/OpenAI/0",
		OrganizationID: testutil.OrgID,
		Service:        model.ServiceTranslation,
		Provider:       "OpenAI",
		Tokens:         100,
	})
	require.Error(t, err)
	assert.Equal(t, errors.KindPersistenceFailure, errors.KindOf(err))
}

func TestPriceAndLogDuplicateKey(t *testing.T) {
	l, store := newLedger(t, testutil.StandardPricing()...)
	entry := Entry{
		IdempotencyKey: "op-1/translate/OpenAI/0",
		OrganizationID: testutil.OrgID,
		Service:        model.ServiceTranslation,
		Provider:       "OpenAI",
		Tokens:         5000,
	}

	first, err := l.PriceAndLog(context.Background(), entry)
	require.NoError(t, err)

	// a retried attempt reports different usage but must not charge again
	entry.Tokens = 9000
	second, err := l.PriceAndLog(context.Background(), entry)
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.UsageID, second.UsageID)
	assert.Equal(t, first.Cost, second.Cost)
	assert.Len(t, store.Usage(), 1)
}

func TestScopeSeparatesTenantsAndAttempts(t *testing.T) {
	base := Scope("org-a", "op-1", "f00d", 0)
	assert.Equal(t, "org-a/op-1/f00d/a0", base)
	assert.Equal(t, "org-a/op-1/f00d/a0/transcribe/OpenAI/2", Key(base, "transcribe", "OpenAI", 2))

	assert.NotEqual(t, base, Scope("org-b", "op-1", "f00d", 0))
	assert.NotEqual(t, base, Scope("org-a", "op-1", "beef", 0))
	assert.NotEqual(t, base, Scope("org-a", "op-1", "f00d", 1))
}

func TestPriceAndLogRejectsKeyOfAnotherOwner(t *testing.T) {
	l, store := newLedger(t, testutil.StandardPricing()...)
	ctx := context.Background()
	entry := Entry{
		IdempotencyKey: "op-1/translate/OpenAI/0",
		OrganizationID: testutil.OrgID,
		UserID:         testutil.UserID,
		Service:        model.ServiceTranslation,
		Provider:       "OpenAI",
		Tokens:         5000,
	}
	_, err := l.PriceAndLog(ctx, entry)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Entry)
	}{
		{"organization", func(e *Entry) { e.OrganizationID = "org-other" }},
		{"user", func(e *Entry) { e.UserID = "user-other" }},
		{"service", func(e *Entry) { e.Service = model.ServiceTranscription }},
		{"provider", func(e *Entry) { e.Provider = "Google" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := entry
			tt.mutate(&other)
			_, err := l.PriceAndLog(ctx, other)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrKeyConflict))
			assert.Equal(t, errors.KindInvalidRequest, errors.KindOf(err))
		})
	}
	assert.Len(t, store.Usage(), 1)
}

func TestPriceAndLogConcurrent(t *testing.T) {
	l, store := newLedger(t, testutil.StandardPricing()...)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	charges := make([]*Charge, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// half the callers retry one shared attempt, half log their own
			key := Key("op-1", "transcribe", "OpenAI", i%2*i)
			charges[i], errs[i] = l.PriceAndLog(ctx, Entry{
				IdempotencyKey: key,
				OrganizationID: testutil.OrgID,
				Service:        model.ServiceTranscription,
				Provider:       "OpenAI",
				AudioSeconds:   60,
			})
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
	}
	// keys: index 0 for even workers, 1,3,...,15 for odd ones
	assert.Len(t, store.Usage(), 1+workers/2)

	shared := charges[0].UsageID
	for i := 0; i < workers; i += 2 {
		assert.Equal(t, shared, charges[i].UsageID)
	}
}

func TestPriceAndLogSQLite(t *testing.T) {
	store := testutil.SetupTestSQLite(t)
	ctx := context.Background()
	for _, p := range testutil.StandardPricing() {
		p := p
		require.NoError(t, store.CreatePricing(ctx, &p))
	}
	l := New(store, nil, zaptest.NewLogger(t))

	entry := Entry{
		IdempotencyKey: "op-9/detect/Deepgram/0",
		OrganizationID: testutil.OrgID,
		Service:        model.ServiceDetectLanguage,
		Provider:       "Deepgram",
		AudioSeconds:   30,
	}
	first, err := l.PriceAndLog(ctx, entry)
	require.NoError(t, err)
	assert.Equal(t, 0.0, first.Cost) // 0.5 min * 0.0043 rounds to zero

	second, err := l.PriceAndLog(ctx, entry)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.UsageID, second.UsageID)
}

func TestTotals(t *testing.T) {
	l, _ := newLedger(t, testutil.StandardPricing()...)
	ctx := context.Background()

	entries := []Entry{
		{Service: model.ServiceTranscription, Provider: "OpenAI", AudioSeconds: 600},
		{Service: model.ServiceTranscription, Provider: "OpenAI", AudioSeconds: 600},
		{Service: model.ServiceTranscription, Provider: "Google", AudioSeconds: 60},
		{Service: model.ServiceTranslation, Provider: "OpenAI", Tokens: 10000},
	}
	for i, e := range entries {
		e.IdempotencyKey = Key("op-totals", "step", e.Provider, i)
		e.OrganizationID = testutil.OrgID
		_, err := l.PriceAndLog(ctx, e)
		require.NoError(t, err)
	}

	now := time.Now()
	summary, err := l.Totals(ctx, testutil.OrgID, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)

	require.Len(t, summary.Lines, 3)
	assert.Equal(t, Line{
		Service: model.ServiceTranscription, Provider: "Google", Currency: "USD",
		Calls: 1, Minutes: 1, Cost: 0.02,
	}, summary.Lines[0])
	assert.Equal(t, Line{
		Service: model.ServiceTranscription, Provider: "OpenAI", Currency: "USD",
		Calls: 2, Minutes: 20, Cost: 0.12,
	}, summary.Lines[1])
	assert.Equal(t, Line{
		Service: model.ServiceTranslation, Provider: "OpenAI", Currency: "USD",
		Calls: 1, Tokens: 10000, Cost: 0.2,
	}, summary.Lines[2])
	assert.Equal(t, map[string]float64{"USD": 0.34}, summary.TotalCost)
	assert.Len(t, summary.Rows, 4)

	other, err := l.Totals(ctx, "org-other", now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, other.Lines)
	assert.Empty(t, other.TotalCost)
}

func TestSummarizeSeparatesCurrencies(t *testing.T) {
	rows := []model.ServiceUsage{
		{Service: model.ServiceTranslation, Provider: "Google", Currency: "EUR", Cost: 0.1},
		{Service: model.ServiceTranslation, Provider: "Google", Currency: "USD", Cost: 0.2},
		{Service: model.ServiceTranslation, Provider: "Google", Currency: "USD", Cost: 0.1},
	}
	s := Summarize(testutil.OrgID, time.Time{}, time.Time{}, rows)
	require.Len(t, s.Lines, 2)
	assert.Equal(t, "EUR", s.Lines[0].Currency)
	assert.Equal(t, 0.3, s.Lines[1].Cost)
	assert.Equal(t, 0.1, s.TotalCost["EUR"])
	assert.Equal(t, 0.3, s.TotalCost["USD"])
}
