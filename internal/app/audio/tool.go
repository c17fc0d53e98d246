// Package audio normalizes media through ffprobe/ffmpeg: probing, conversion
// to canonical WAV, language-detection snippets and fixed-window segmentation.
package audio

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"voxmeter/internal/app/errors"
	"voxmeter/internal/config"
)

const segmentPattern = "segment_%05d.wav"

// Tool wraps ffprobe and ffmpeg.
type Tool struct {
	runner  Runner
	ffmpeg  string
	ffprobe string
	timeout time.Duration
	logger  *zap.Logger
}

// NewTool creates a Tool from the pipeline configuration.
func NewTool(cfg config.PipelineConfig, runner Runner, logger *zap.Logger) *Tool {
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ffmpeg, ffprobe := cfg.FFmpegPath, cfg.FFprobePath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	timeout := cfg.ToolTimeout
	if timeout <= 0 {
		timeout = config.DefaultToolTimeout
	}
	return &Tool{
		runner:  runner,
		ffmpeg:  ffmpeg,
		ffprobe: ffprobe,
		timeout: timeout,
		logger:  logger.Named("audio"),
	}
}

func (t *Tool) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.runner.Run(ctx, name, args...)
}

// Probe returns duration, codec and container of path. Input without an
// audio stream is a conversion failure.
func (t *Tool) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	output, err := t.run(ctx, t.ffprobe,
		"-v", "quiet", "-print_format", "json", "-show_streams", "-show_format", path)
	if err != nil {
		return nil, errors.WrapKind(errors.KindConversionFailure, err, "probe failed")
	}

	result, err := parseProbe(output)
	if err != nil {
		return nil, errors.WrapKind(errors.KindConversionFailure, err, "invalid audio input")
	}
	return result, nil
}

// IsCanonical reports whether path is already mono 16kHz PCM.
func (t *Tool) IsCanonical(ctx context.Context, path string) (bool, error) {
	result, err := t.Probe(ctx, path)
	if err != nil {
		return false, err
	}
	return result.IsCanonical(), nil
}

// Convert normalizes input to mono 16kHz PCM WAV at output. When input is
// already canonical the tool is not invoked and input is returned unchanged.
func (t *Tool) Convert(ctx context.Context, input, output string) (string, error) {
	canonical, err := t.IsCanonical(ctx, input)
	if err != nil {
		return "", err
	}
	if canonical {
		t.logger.Debug("input already canonical, skipping conversion", zap.String("path", input))
		return input, nil
	}

	t.logger.Debug("converting to canonical wav", zap.String("input", input), zap.String("output", output))
	_, err = t.run(ctx, t.ffmpeg,
		"-y", "-i", input, "-vn",
		"-acodec", CanonicalCodec,
		"-ar", strconv.Itoa(CanonicalSampleRate),
		"-ac", strconv.Itoa(CanonicalChannels),
		output)
	if err != nil {
		return "", errors.WrapKind(errors.KindConversionFailure, err, "conversion failed")
	}
	return output, nil
}

// Snippet writes the first seconds of input to output as canonical WAV.
// Inputs no longer than the window are copied whole.
func (t *Tool) Snippet(ctx context.Context, input, output string, seconds int) (string, error) {
	probe, err := t.Probe(ctx, input)
	if err != nil {
		return "", err
	}

	if probe.DurationSeconds <= float64(seconds) {
		if err := copyFile(input, output); err != nil {
			return "", errors.WrapKind(errors.KindConversionFailure, err, "snippet copy failed")
		}
		return output, nil
	}

	_, err = t.run(ctx, t.ffmpeg,
		"-y", "-i", input,
		"-t", strconv.Itoa(seconds),
		"-ac", strconv.Itoa(CanonicalChannels),
		"-ar", strconv.Itoa(CanonicalSampleRate),
		output)
	if err != nil {
		return "", errors.WrapKind(errors.KindConversionFailure, err, "snippet extraction failed")
	}
	return output, nil
}

// Segment cuts input into fixed windows of segmentSeconds inside dir and
// returns the segment paths in lexical order, which is playback order.
func (t *Tool) Segment(ctx context.Context, input, dir string, segmentSeconds int) ([]string, error) {
	if segmentSeconds <= 0 {
		return nil, errors.NewKind(errors.KindSegmentationFailure, "segment window must be positive")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapKind(errors.KindSegmentationFailure, err, "failed to create segment directory")
	}

	_, err := t.run(ctx, t.ffmpeg,
		"-i", input,
		"-f", "segment",
		"-segment_time", strconv.Itoa(segmentSeconds),
		"-c", "copy",
		filepath.Join(dir, segmentPattern))
	if err != nil {
		return nil, errors.WrapKind(errors.KindSegmentationFailure, err, "segmentation failed")
	}

	segments, err := filepath.Glob(filepath.Join(dir, "segment_*.wav"))
	if err != nil {
		return nil, errors.WrapKind(errors.KindSegmentationFailure, err, "failed to list segments")
	}
	if len(segments) == 0 {
		return nil, errors.ErrNoSegments
	}
	sort.Strings(segments)

	t.logger.Debug("segmented audio", zap.String("input", input), zap.Int("segments", len(segments)))
	return segments, nil
}

// ExpectedSegments is ceil(duration/window).
func ExpectedSegments(durationSeconds float64, windowSeconds int) int {
	if windowSeconds <= 0 || durationSeconds <= 0 {
		return 0
	}
	return int(math.Ceil(durationSeconds / float64(windowSeconds)))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy: %w", err)
	}
	return out.Close()
}
