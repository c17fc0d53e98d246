package pipeline

import (
	"context"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"voxmeter/internal/app/api/provider"
	"voxmeter/internal/app/errors"
	"voxmeter/internal/app/model"
	"voxmeter/internal/app/storage/objectstore"
)

type translation struct {
	provider string
	text     string
	usage    provider.Usage
}

func (t *translation) result(r *run, url string) *ProviderResult {
	res := r.result(t.provider)
	res.Text = t.text
	res.Usage = t.usage
	res.ArtifactURL = url
	return res
}

// Translate translates a stored text artifact into req.TargetLanguage with
// the primary translator and, with DoubleModel, the secondary one. The
// fan-out policy is the same as Transcribe's.
func (p *Pipeline) Translate(ctx context.Context, req *Request) (resp *Response, err error) {
	r, err := p.begin(ctx, OpTranslate, req, model.FieldTranslation)
	if err != nil {
		return nil, err
	}
	defer p.finish(ctx, r, &err)

	primary, err := p.providers.Translator(p.routing.PrimaryTranslator)
	if err != nil {
		return nil, errors.Provider(p.routing.PrimaryTranslator, err)
	}
	primaryName := primary.Info().Name
	if err := p.quote(ctx, r, model.ServiceTranslation, primaryName); err != nil {
		return nil, err
	}

	var (
		secondary     provider.Translator
		secondaryName string
		secondaryErr  error
	)
	if req.DoubleModel {
		secondaryName = p.routing.SecondaryTranslator
		secondary, secondaryErr = p.secondaryTranslator(primaryName)
		if secondary != nil {
			secondaryName = secondary.Info().Name
			if qerr := p.quote(ctx, r, model.ServiceTranslation, secondaryName); qerr != nil {
				secondary, secondaryErr = nil, qerr
			}
		}
		if secondaryErr != nil {
			r.logger.Warn("secondary translator skipped", zap.String("provider", secondaryName), zap.Error(secondaryErr))
		}
	}

	source, err := p.download(ctx, r)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(source)
	if err != nil {
		return nil, errors.WrapKind(errors.KindDownloadFailure, err, "failed to read source text")
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, errors.InvalidField("source", "text artifact is empty")
	}
	bytes := int64(len(raw))

	r.transition(StateProviderCalls)
	var primaryOut, secondaryOut *translation
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := p.translateOne(gctx, r, primary, text, bytes)
		if err != nil {
			return err
		}
		primaryOut = out
		return nil
	})
	if secondary != nil {
		g.Go(func() error {
			out, err := p.translateOne(gctx, r, secondary, text, bytes)
			if err != nil {
				secondaryErr = err
				r.logger.Warn("secondary translator failed", zap.String("provider", secondaryName), zap.Error(err))
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

	primaryKey := objectstore.TranslationKey(r.req.OrganizationID, r.key, primaryName)
	primaryURL, err := p.putText(ctx, primaryKey, primaryOut.text)
	if err != nil {
		return nil, err
	}
	urls := []string{primaryURL}

	var secondaryURL string
	if secondaryOut != nil {
		secondaryURL, err = p.putText(ctx, objectstore.TranslationKey(r.req.OrganizationID, r.key, secondaryName), secondaryOut.text)
		if err != nil {
			r.logger.Warn("secondary translation upload failed", zap.String("provider", secondaryName), zap.Error(err))
			secondaryOut, secondaryErr = nil, err
		} else {
			urls = append(urls, secondaryURL)
		}
	}
	r.transition(StatePersisted)

	if err := p.status.MarkResult(ctx, req.FileID, model.FieldTranslation, primaryKey); err != nil {
		return nil, err
	}

	resp = r.response("Translation successful")
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

func (p *Pipeline) secondaryTranslator(primaryName string) (provider.Translator, error) {
	name := p.routing.SecondaryTranslator
	if name == "" {
		return nil, errors.InvalidField("doubleModel", "no secondary translator is configured")
	}
	t, err := p.providers.Translator(name)
	if err != nil {
		return nil, errors.Provider(name, err)
	}
	if strings.EqualFold(t.Info().Name, primaryName) {
		return nil, errors.InvalidField("doubleModel", "secondary translator is the primary translator")
	}
	return t, nil
}

// translateOne calls t once and bills the tokens it reports.
func (p *Pipeline) translateOne(ctx context.Context, r *run, t provider.Translator, text string, bytes int64) (*translation, error) {
	name := t.Info().Name
	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout(t))
	defer cancel()

	started := time.Now()
	resp, err := t.Translate(callCtx, &provider.TranslationRequest{
		Text:           text,
		SourceLanguage: r.req.Language,
		TargetLanguage: r.req.TargetLanguage,
	})
	p.metrics.ObserveProviderCall(name, string(provider.CapabilityTranslate), started, err)
	if err != nil {
		return nil, errors.Provider(name, err)
	}

	usage := resp.Usage
	if usage.Bytes == 0 {
		usage.Bytes = bytes
	}
	if _, err := p.bill(ctx, r, model.ServiceTranslation, name, 0, usage, map[string]any{
		"model":          resp.ModelUsed,
		"targetLanguage": r.req.TargetLanguage,
	}); err != nil {
		return nil, err
	}
	r.logger.Debug("text translated",
		zap.String("provider", name),
		zap.Int("tokens", usage.Tokens),
		zap.Duration("elapsed", time.Since(started)))
	return &translation{provider: name, text: strings.TrimSpace(resp.Text), usage: usage}, nil
}
