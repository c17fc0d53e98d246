// Package pipeline orchestrates download, conversion, segmentation,
// provider calls, billing and artifact persistence for each operation.
package pipeline

import (
	"context"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"voxmeter/internal/app/api/provider"
	"voxmeter/internal/app/audio"
	"voxmeter/internal/app/errors"
	"voxmeter/internal/app/ledger"
	"voxmeter/internal/app/metrics"
	"voxmeter/internal/app/model"
	"voxmeter/internal/app/scratch"
	"voxmeter/internal/app/status"
	"voxmeter/internal/app/storage/objectstore"
	"voxmeter/internal/config"
)

// State is a step of the per-operation state machine.
type State string

const (
	StateReceived      State = "received"
	StateDownloaded    State = "downloaded"
	StateConverted     State = "converted"
	StateSegmented     State = "segmented"
	StateProviderCalls State = "provider_calls"
	StateAggregated    State = "aggregated"
	StatePersisted     State = "persisted"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
)

// Pipeline runs operations. It holds no per-operation state, so one value
// serves any number of concurrent operations.
type Pipeline struct {
	cfg       config.PipelineConfig
	routing   config.RoutingConfig
	bucket    string
	tool      *audio.Tool
	store     objectstore.Store
	providers *provider.Registry
	ledger    *ledger.Ledger
	status    *status.Tracker
	metrics   *metrics.Metrics
	logger    *zap.Logger
	progress  Progress
}

// New creates a Pipeline. Artifacts are written to cfg.Storage.Bucket.
func New(
	cfg *config.Config,
	tool *audio.Tool,
	store objectstore.Store,
	providers *provider.Registry,
	l *ledger.Ledger,
	tracker *status.Tracker,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	pc := cfg.Pipeline
	if pc.SegmentConcurrency <= 0 {
		pc.SegmentConcurrency = config.DefaultSegmentConcurrency
	}
	if pc.ProviderTimeout <= 0 {
		pc.ProviderTimeout = config.DefaultProviderTimeout
	}
	if pc.SnippetSeconds <= 0 {
		pc.SnippetSeconds = config.DefaultSnippetSeconds
	}
	if pc.ScratchRoot == "" {
		pc.ScratchRoot = os.TempDir()
	}
	return &Pipeline{
		cfg:       pc,
		routing:   cfg.Routing,
		bucket:    cfg.Storage.Bucket,
		tool:      tool,
		store:     store,
		providers: providers,
		ledger:    l,
		status:    tracker,
		metrics:   m,
		logger:    logger.Named("pipeline"),
		progress:  noProgress{},
	}
}

// WithProgress reports segment progress to progress.
func (p *Pipeline) WithProgress(progress Progress) *Pipeline {
	if progress != nil {
		p.progress = progress
	}
	return p
}

type billed struct {
	provider string
	charge   *ledger.Charge
}

// run is the state of one operation instance. Everything it creates on
// disk lives in its arena.
type run struct {
	id      string
	scope   string
	op      Operation
	req     *Request
	field   model.StatusField
	arena   *scratch.Arena
	logger  *zap.Logger
	started time.Time

	// key is the object key of the source once resolved.
	key string

	mu      sync.Mutex
	charges []billed
}

func (r *run) transition(s State) {
	r.logger.Info("operation state", zap.String("state", string(s)))
}

func (r *run) addCharge(providerName string, c *ledger.Charge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.charges = append(r.charges, billed{provider: providerName, charge: c})
}

// cost sums the charges of providerName, or of every provider when empty.
func (r *run) cost(providerName string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := lo.SumBy(r.charges, func(b billed) float64 {
		if providerName != "" && b.provider != providerName {
			return 0
		}
		return b.charge.Cost
	})
	return ledger.Round2(sum)
}

// currency is the currency of the operation's charges. Charges of one
// operation resolve against one organization's price list, so a mix is
// logged rather than converted.
func (r *run) currency() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	currencies := lo.Uniq(lo.Map(r.charges, func(b billed, _ int) string { return b.charge.Currency }))
	if len(currencies) > 1 {
		r.logger.Warn("operation billed in more than one currency", zap.Strings("currencies", currencies))
	}
	if len(currencies) == 0 {
		return ""
	}
	return currencies[0]
}

// begin validates req, allocates the scratch arena and marks field pending.
func (p *Pipeline) begin(ctx context.Context, op Operation, req *Request, field model.StatusField) (*run, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}

	id := req.OperationID
	if id == "" {
		id = uuid.NewString()
	}
	arena, err := scratch.New(p.cfg.ScratchRoot, p.logger)
	if err != nil {
		return nil, errors.WrapKind(errors.KindDownloadFailure, err, "failed to allocate scratch space")
	}

	r := &run{
		id:    id,
		scope: ledger.Scope(req.OrganizationID, id, req.Fingerprint(), req.Attempt),
		op:    op,
		req:   req,
		field: field,
		arena: arena,
		logger: p.logger.With(
			zap.String("operation_id", id),
			zap.String("operation", string(op)),
			zap.String("file_id", req.FileID),
			zap.String("org_id", req.OrganizationID)),
		started: time.Now(),
	}
	r.transition(StateReceived)

	if field != "" {
		if err := p.status.MarkStatus(ctx, req.FileID, field, model.StatusPending); err != nil {
			arena.Release()
			return nil, err
		}
	}
	return r, nil
}

// finish releases the arena on every exit path. On failure it marks the
// tracked field failed; ledger rows already written are kept.
func (p *Pipeline) finish(ctx context.Context, r *run, errp *error) {
	r.arena.Release()

	err := *errp
	p.metrics.ObserveOperation(string(r.op), r.started, err)
	if err == nil {
		r.logger.Info("operation state",
			zap.String("state", string(StateCompleted)),
			zap.Duration("elapsed", time.Since(r.started)),
			zap.Float64("total_cost", r.cost("")))
		return
	}

	r.logger.Error("operation state",
		zap.String("state", string(StateFailed)),
		zap.String("kind", string(errors.KindOf(err))),
		zap.String("provider", errors.ProviderOf(err)),
		zap.Error(err))
	if r.field != "" {
		p.status.Fail(context.WithoutCancel(ctx), r.req.FileID, r.field)
	}
}

// source resolves the bucket and key of the request's blob.
func (p *Pipeline) source(req *Request) (string, string, error) {
	if req.BlobKey != "" {
		return p.bucket, strings.TrimPrefix(req.BlobKey, "/"), nil
	}
	bucket, key, err := objectstore.ParseURL(req.FileURL)
	if err != nil {
		return "", "", errors.WrapKind(errors.KindInvalidRequest, err, "invalid file URL")
	}
	return bucket, key, nil
}

// download copies the source blob into the arena.
func (p *Pipeline) download(ctx context.Context, r *run) (string, error) {
	bucket, key, err := p.source(r.req)
	if err != nil {
		return "", err
	}
	r.key = key

	ctx, cancel := context.WithTimeout(ctx, p.cfg.ProviderTimeout)
	defer cancel()

	dst := r.arena.Path("source" + strings.ToLower(path.Ext(key)))
	n, err := objectstore.Download(ctx, p.store, bucket, key, dst)
	if err != nil {
		return "", err
	}
	r.logger.Debug("source downloaded", zap.String("bucket", bucket), zap.String("key", key), zap.Int64("bytes", n))
	r.transition(StateDownloaded)
	return dst, nil
}

// canonical validates input as audio and converts it to mono 16 kHz WAV.
func (p *Pipeline) canonical(ctx context.Context, r *run, input string) (string, *audio.ProbeResult, error) {
	probe, err := p.tool.Probe(ctx, input)
	if err != nil {
		return "", nil, err
	}
	out, err := p.tool.Convert(ctx, input, r.arena.Path("canonical.wav"))
	if err != nil {
		return "", nil, err
	}
	r.logger.Debug("audio converted",
		zap.Float64("duration_seconds", probe.DurationSeconds),
		zap.String("codec", probe.Codec),
		zap.String("container", probe.ContainerFormat))
	r.transition(StateConverted)
	return out, probe, nil
}

// quote fails before any provider call when pricing does not resolve.
func (p *Pipeline) quote(ctx context.Context, r *run, service, providerName string) error {
	pricing, err := p.ledger.Quote(ctx, r.req.OrganizationID, service, providerName)
	if err != nil {
		return err
	}
	r.logger.Debug("pricing resolved",
		zap.String("service", service),
		zap.String("provider", providerName),
		zap.Int64("pricing_id", pricing.ID))
	return nil
}

// bill appends the ledger row of one executed call. It ignores cancellation
// of ctx: the provider has already done the work.
func (p *Pipeline) bill(ctx context.Context, r *run, service, providerName string, index int, usage provider.Usage, metadata map[string]any) (*ledger.Charge, error) {
	meta := map[string]any{
		"operation":   string(r.op),
		"operationId": r.id,
		"attempt":     r.req.Attempt,
	}
	if r.req.FileID != "" {
		meta["fileId"] = r.req.FileID
	}
	for k, v := range metadata {
		meta[k] = v
	}

	charge, err := p.ledger.PriceAndLog(context.WithoutCancel(ctx), ledger.Entry{
		IdempotencyKey: ledger.Key(r.scope, string(r.op), providerName, index),
		OrganizationID: r.req.OrganizationID,
		UserID:         r.req.UserID,
		Service:        service,
		Provider:       providerName,
		Tokens:         usage.Tokens,
		AudioSeconds:   usage.AudioSeconds,
		Bytes:          usage.Bytes,
		Metadata:       meta,
	})
	if err != nil {
		return nil, err
	}
	r.addCharge(providerName, charge)
	return charge, nil
}

// callTimeout is the per-call deadline for adapter.
func (p *Pipeline) callTimeout(adapter provider.Provider) time.Duration {
	timeout := p.cfg.ProviderTimeout
	if lr, ok := adapter.(provider.LongRunner); ok && lr.MaxCallDuration() > timeout {
		timeout = lr.MaxCallDuration()
	}
	return timeout
}

// putText stores text under key in the artifact bucket.
func (p *Pipeline) putText(ctx context.Context, key, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ProviderTimeout)
	defer cancel()
	url, err := p.store.Put(ctx, p.bucket, key, strings.NewReader(text), int64(len(text)), "text/plain; charset=utf-8")
	if err != nil {
		return "", errors.WrapKind(errors.KindUploadFailure, err, "failed to upload "+key)
	}
	return url, nil
}

// putFile stores the local file under key in the artifact bucket.
func (p *Pipeline) putFile(ctx context.Context, key, localPath, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ProviderTimeout)
	defer cancel()
	return objectstore.UploadFile(ctx, p.store, p.bucket, key, localPath, contentType)
}

// result summarizes a provider's outcome with the cost billed to it.
func (r *run) result(providerName string) *ProviderResult {
	return &ProviderResult{Provider: providerName, Cost: r.cost(providerName)}
}

// failedResult reports a best-effort provider that did not succeed.
func (r *run) failedResult(providerName string, err error) *ProviderResult {
	res := r.result(providerName)
	res.Error = err.Error()
	return res
}

func (r *run) response(message string) *Response {
	return &Response{
		Message:      message,
		OperationID:  r.id,
		TotalCost:    r.cost(""),
		Currency:     r.currency(),
		ArtifactURLs: []string{},
	}
}

// Run dispatches req to the entry point named by op.
func (p *Pipeline) Run(ctx context.Context, op Operation, req *Request) (*Response, error) {
	switch op {
	case OpConvert:
		return p.Convert(ctx, req)
	case OpSplit:
		return p.Split(ctx, req)
	case OpTranscribe:
		return p.Transcribe(ctx, req)
	case OpTranslate:
		return p.Translate(ctx, req)
	case OpDetectLanguage:
		return p.DetectLanguage(ctx, req)
	}
	return nil, errors.InvalidField("operation", string(op)+" is not supported")
}
