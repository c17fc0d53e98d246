package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"voxmeter/internal/app/api/provider"
	"voxmeter/internal/app/audio"
	"voxmeter/internal/app/errors"
	"voxmeter/internal/app/model"
	"voxmeter/internal/app/storage/objectstore"
)

// segment is one audio file handed to a transcriber.
type segment struct {
	path    string
	seconds float64
}

type transcript struct {
	provider string
	text     string
	language string
	usage    provider.Usage
}

// Transcribe converts the source, optionally segments it, and transcribes
// it with the primary transcriber. With DoubleModel the secondary
// transcriber runs concurrently on the same segments; its failure is
// reported in SecondaryResult and never fails the operation.
func (p *Pipeline) Transcribe(ctx context.Context, req *Request) (resp *Response, err error) {
	r, err := p.begin(ctx, OpTranscribe, req, model.FieldTranscript)
	if err != nil {
		return nil, err
	}
	defer p.finish(ctx, r, &err)

	primary, err := p.providers.Transcriber(p.routing.PrimaryTranscriber)
	if err != nil {
		return nil, errors.Provider(p.routing.PrimaryTranscriber, err)
	}
	primaryName := primary.Info().Name
	if err := p.quote(ctx, r, model.ServiceTranscription, primaryName); err != nil {
		return nil, err
	}

	var (
		secondary     provider.Transcriber
		secondaryName string
		secondaryErr  error
	)
	if req.DoubleModel {
		secondaryName = p.routing.SecondaryTranscriber
		secondary, secondaryErr = p.secondaryTranscriber(primaryName)
		if secondary != nil {
			secondaryName = secondary.Info().Name
			if qerr := p.quote(ctx, r, model.ServiceTranscription, secondaryName); qerr != nil {
				secondary, secondaryErr = nil, qerr
			}
		}
		if secondaryErr != nil {
			r.logger.Warn("secondary transcriber skipped", zap.String("provider", secondaryName), zap.Error(secondaryErr))
		}
	}

	source, err := p.download(ctx, r)
	if err != nil {
		return nil, err
	}
	wav, probe, err := p.canonical(ctx, r, source)
	if err != nil {
		return nil, err
	}
	segments, err := p.segments(ctx, r, wav, probe.DurationSeconds)
	if err != nil {
		return nil, err
	}

	r.transition(StateProviderCalls)
	var primaryOut, secondaryOut *transcript
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := p.transcribeSegments(gctx, r, primary, segments)
		if err != nil {
			return err
		}
		primaryOut = out
		return nil
	})
	if secondary != nil {
		g.Go(func() error {
			out, err := p.transcribeSegments(gctx, r, secondary, segments)
			if err != nil {
				secondaryErr = err
				r.logger.Warn("secondary transcriber failed", zap.String("provider", secondaryName), zap.Error(err))
				return nil
			}
			secondaryOut = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	r.transition(StateAggregated)

	primaryKey := objectstore.TranscriptionKey(r.req.OrganizationID, r.key, primaryName)
	primaryURL, err := p.putText(ctx, primaryKey, primaryOut.text)
	if err != nil {
		return nil, err
	}
	urls := []string{primaryURL}

	var secondaryURL string
	if secondaryOut != nil {
		secondaryURL, err = p.putText(ctx, objectstore.TranscriptionKey(r.req.OrganizationID, r.key, secondaryName), secondaryOut.text)
		if err != nil {
			r.logger.Warn("secondary transcript upload failed", zap.String("provider", secondaryName), zap.Error(err))
			secondaryOut, secondaryErr = nil, err
		} else {
			urls = append(urls, secondaryURL)
		}
	}
	r.transition(StatePersisted)

	if err := p.status.MarkResult(ctx, req.FileID, model.FieldTranscript, primaryKey); err != nil {
		return nil, err
	}

	resp = r.response("Transcription completed successfully")
	resp.Segments = len(segments)
	resp.ArtifactURLs = urls
	resp.PrimaryResult = primaryOut.result(r, primaryURL)
	if req.DoubleModel {
		if secondaryOut != nil {
			resp.SecondaryResult = secondaryOut.result(r, secondaryURL)
		} else {
			resp.SecondaryResult = r.failedResult(secondaryName, secondaryErr)
		}
	}
	return resp, nil
}

func (t *transcript) result(r *run, url string) *ProviderResult {
	res := r.result(t.provider)
	res.Text = t.text
	res.Language = t.language
	res.Usage = t.usage
	res.ArtifactURL = url
	return res
}

// secondaryTranscriber resolves the fan-out transcriber. It must differ from
// the primary so the two never share ledger keys.
func (p *Pipeline) secondaryTranscriber(primaryName string) (provider.Transcriber, error) {
	name := p.routing.SecondaryTranscriber
	if name == "" {
		return nil, errors.InvalidField("doubleModel", "no secondary transcriber is configured")
	}
	t, err := p.providers.Transcriber(name)
	if err != nil {
		return nil, errors.Provider(name, err)
	}
	if strings.EqualFold(t.Info().Name, primaryName) {
		return nil, errors.InvalidField("doubleModel", "secondary transcriber is the primary transcriber")
	}
	return t, nil
}

// segments cuts wav into request-sized windows, or returns it whole when no
// window was requested.
func (p *Pipeline) segments(ctx context.Context, r *run, wav string, duration float64) ([]segment, error) {
	window := r.req.SegmentSeconds
	if window <= 0 {
		return []segment{{path: wav, seconds: duration}}, nil
	}

	paths, err := p.tool.Segment(ctx, wav, r.arena.Path("segments"), window)
	if err != nil {
		return nil, err
	}
	out := make([]segment, len(paths))
	for i, path := range paths {
		probe, err := p.tool.Probe(ctx, path)
		if err != nil {
			return nil, errors.WrapKind(errors.KindSegmentationFailure, err, fmt.Sprintf("failed to probe segment %d", i))
		}
		out[i] = segment{path: path, seconds: probe.DurationSeconds}
	}
	r.logger.Info("audio segmented",
		zap.Int("segments", len(out)),
		zap.Int("expected", audio.ExpectedSegments(duration, window)),
		zap.Int("window_seconds", window))
	r.transition(StateSegmented)
	return out, nil
}

// transcribeSegments runs t over every segment with bounded concurrency and
// joins the texts in segment order. Each successful call is billed as soon
// as it returns, so a later failure keeps the rows of calls that ran.
func (p *Pipeline) transcribeSegments(ctx context.Context, r *run, t provider.Transcriber, segments []segment) (*transcript, error) {
	name := t.Info().Name
	results := make([]*provider.TranscriptionResponse, len(segments))
	p.progress.Start(r.id, name, len(segments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.SegmentConcurrency)
	for i, seg := range segments {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			resp, err := p.transcribeOne(gctx, r, t, seg)
			if err != nil {
				return err
			}

			usage := resp.Usage
			if usage.AudioSeconds == 0 {
				usage.AudioSeconds = seg.seconds
			}
			_, err = p.bill(ctx, r, model.ServiceTranscription, name, i, usage, map[string]any{
				"segment":  i,
				"segments": len(segments),
				"model":    resp.ModelUsed,
			})
			if err != nil {
				return err
			}
			resp.Usage = usage
			results[i] = resp
			p.progress.Advance(r.id, name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &transcript{provider: name}
	texts := make([]string, len(results))
	for i, resp := range results {
		texts[i] = strings.TrimSpace(resp.Text)
		out.usage.Add(resp.Usage)
		if out.language == "" {
			out.language = resp.Language
		}
	}
	out.text = strings.Join(texts, "\n")
	return out, nil
}

func (p *Pipeline) transcribeOne(ctx context.Context, r *run, t provider.Transcriber, seg segment) (*provider.TranscriptionResponse, error) {
	name := t.Info().Name
	ctx, cancel := context.WithTimeout(ctx, p.callTimeout(t))
	defer cancel()

	started := time.Now()
	resp, err := t.Transcribe(ctx, &provider.TranscriptionRequest{
		AudioPath:       seg.path,
		DurationSeconds: seg.seconds,
		Language:        r.req.Language,
	})
	p.metrics.ObserveProviderCall(name, string(provider.CapabilityTranscribe), started, err)
	if err != nil {
		return nil, errors.Provider(name, err)
	}
	r.logger.Debug("segment transcribed",
		zap.String("provider", name),
		zap.String("segment", seg.path),
		zap.Duration("elapsed", time.Since(started)))
	return resp, nil
}
