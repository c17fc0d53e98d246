package pipeline

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"voxmeter/internal/app/api/provider"
	"voxmeter/internal/app/audio"
	"voxmeter/internal/app/errors"
	"voxmeter/internal/app/model"
)

// DetectLanguage identifies the spoken language from the first
// SnippetSeconds of the source. Shorter sources are sent whole.
func (p *Pipeline) DetectLanguage(ctx context.Context, req *Request) (resp *Response, err error) {
	r, err := p.begin(ctx, OpDetectLanguage, req, "")
	if err != nil {
		return nil, err
	}
	defer p.finish(ctx, r, &err)

	detector, err := p.providers.Detector(p.routing.LanguageDetector)
	if err != nil {
		return nil, errors.Provider(p.routing.LanguageDetector, err)
	}
	name := detector.Info().Name
	if err := p.quote(ctx, r, model.ServiceDetectLanguage, name); err != nil {
		return nil, err
	}

	source, err := p.download(ctx, r)
	if err != nil {
		return nil, err
	}
	wav, probe, err := p.canonical(ctx, r, source)
	if err != nil {
		return nil, err
	}
	snippet, err := p.tool.Snippet(ctx, wav, r.arena.Path("snippet.wav"), p.cfg.SnippetSeconds)
	if err != nil {
		return nil, err
	}
	if err := audio.CheckWavHeader(snippet); err != nil {
		return nil, err
	}
	seconds := math.Min(probe.DurationSeconds, float64(p.cfg.SnippetSeconds))
	r.transition(StateSegmented)

	r.transition(StateProviderCalls)
	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout(detector))
	defer cancel()
	started := time.Now()
	detected, err := detector.DetectLanguage(callCtx, &provider.DetectionRequest{
		AudioPath:       snippet,
		DurationSeconds: seconds,
	})
	p.metrics.ObserveProviderCall(name, string(provider.CapabilityDetectLanguage), started, err)
	if err != nil {
		return nil, errors.Provider(name, err)
	}

	usage := detected.Usage
	if usage.AudioSeconds == 0 {
		usage.AudioSeconds = seconds
	}
	if _, err := p.bill(ctx, r, model.ServiceDetectLanguage, name, 0, usage, map[string]any{
		"language":   detected.Language,
		"confidence": detected.Confidence,
	}); err != nil {
		return nil, err
	}
	r.transition(StateAggregated)
	r.logger.Info("language detected",
		zap.String("provider", name),
		zap.String("language", detected.Language),
		zap.Float64("confidence", detected.Confidence))

	resp = r.response("Language detected successfully")
	result := r.result(name)
	result.Language = detected.Language
	result.Confidence = detected.Confidence
	result.Usage = usage
	resp.PrimaryResult = result
	return resp, nil
}
