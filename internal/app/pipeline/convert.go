package pipeline

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"voxmeter/internal/app/api/provider"
	"voxmeter/internal/app/audio"
	"voxmeter/internal/app/errors"
	"voxmeter/internal/app/model"
	"voxmeter/internal/app/scratch"
	"voxmeter/internal/app/storage/objectstore"
	"voxmeter/internal/config"
)

// Convert normalizes the source to canonical WAV and stores it under
// converted/<base>.wav.
func (p *Pipeline) Convert(ctx context.Context, req *Request) (resp *Response, err error) {
	r, err := p.begin(ctx, OpConvert, req, model.FieldFile)
	if err != nil {
		return nil, err
	}
	defer p.finish(ctx, r, &err)

	if err := p.quote(ctx, r, model.ServiceAudioProcessing, config.ProviderInternal); err != nil {
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
	size, err := scratch.FileSize(wav)
	if err != nil {
		return nil, errors.WrapKind(errors.KindConversionFailure, err, "converted file is missing")
	}
	usage, err := p.billInternal(ctx, r, probe, size, map[string]any{"codec": probe.Codec})
	if err != nil {
		return nil, err
	}

	url, err := p.putFile(ctx, objectstore.ConvertedKey(r.req.OrganizationID, r.key), wav, "audio/wav")
	if err != nil {
		return nil, err
	}
	r.transition(StatePersisted)

	if err := p.status.MarkStatus(ctx, req.FileID, model.FieldFile, model.StatusAvailable); err != nil {
		return nil, err
	}

	resp = r.response("Audio converted successfully")
	resp.PrimaryResult = r.result(config.ProviderInternal)
	resp.PrimaryResult.ArtifactURL = url
	resp.PrimaryResult.Usage = usage
	resp.ArtifactURLs = []string{url}
	return resp, nil
}

// Split converts the source, cuts it into SegmentSeconds windows and stores
// the segments as one zip archive under audio-splits/<base>.zip.
func (p *Pipeline) Split(ctx context.Context, req *Request) (resp *Response, err error) {
	if req != nil && req.SegmentSeconds <= 0 {
		return nil, errors.InvalidField("segmentSeconds", "must be positive to split")
	}
	r, err := p.begin(ctx, OpSplit, req, model.FieldFile)
	if err != nil {
		return nil, err
	}
	defer p.finish(ctx, r, &err)

	if err := p.quote(ctx, r, model.ServiceAudioProcessing, config.ProviderInternal); err != nil {
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
	segments, err := p.tool.Segment(ctx, wav, r.arena.Path("segments"), req.SegmentSeconds)
	if err != nil {
		return nil, err
	}
	r.logger.Info("audio segmented",
		zap.Int("segments", len(segments)),
		zap.Int("expected", audio.ExpectedSegments(probe.DurationSeconds, req.SegmentSeconds)))
	r.transition(StateSegmented)

	archive := r.arena.Path(objectstore.BaseName(r.key) + ".zip")
	size, err := zipFiles(archive, segments)
	if err != nil {
		return nil, errors.WrapKind(errors.KindSegmentationFailure, err, "failed to archive segments")
	}
	r.transition(StateAggregated)

	usage, err := p.billInternal(ctx, r, probe, size, map[string]any{
		"segments":       len(segments),
		"segmentSeconds": req.SegmentSeconds,
	})
	if err != nil {
		return nil, err
	}

	url, err := p.putFile(ctx, objectstore.SplitArchiveKey(r.req.OrganizationID, r.key), archive, "application/zip")
	if err != nil {
		return nil, err
	}
	r.transition(StatePersisted)

	if err := p.status.MarkStatus(ctx, req.FileID, model.FieldFile, model.StatusAvailable); err != nil {
		return nil, err
	}

	resp = r.response("Audio split successfully")
	resp.Segments = len(segments)
	resp.PrimaryResult = r.result(config.ProviderInternal)
	resp.PrimaryResult.ArtifactURL = url
	resp.PrimaryResult.Usage = usage
	resp.ArtifactURLs = []string{url}
	return resp, nil
}

// billInternal bills work done by the audio tool itself.
func (p *Pipeline) billInternal(ctx context.Context, r *run, probe *audio.ProbeResult, bytes int64, metadata map[string]any) (provider.Usage, error) {
	usage := provider.Usage{AudioSeconds: probe.DurationSeconds, Bytes: bytes}
	_, err := p.bill(ctx, r, model.ServiceAudioProcessing, config.ProviderInternal, 0, usage, metadata)
	return usage, err
}

// zipFiles writes files into a new archive at dst, flat and in the given
// order, and returns the archive size.
func zipFiles(dst string, files []string) (int64, error) {
	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, file := range files {
		if err := addToZip(zw, file); err != nil {
			return 0, err
		}
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("failed to finish archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("failed to close archive: %w", err)
	}
	return scratch.FileSize(dst)
}

func addToZip(zw *zip.Writer, file string) error {
	in, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer in.Close()

	w, err := zw.Create(filepath.Base(file))
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", file, err)
	}
	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("failed to write %s: %w", file, err)
	}
	return nil
}
