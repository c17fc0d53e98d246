package audio

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Canonical format every provider receives.
const (
	CanonicalCodec      = "pcm_s16le"
	CanonicalSampleRate = 16000
	CanonicalChannels   = 1
)

// ProbeResult describes the first audio stream of a media file.
type ProbeResult struct {
	DurationSeconds float64
	Codec           string
	ContainerFormat string
	SampleRate      int
	Channels        int
}

// IsCanonical reports whether the stream is already mono 16kHz PCM.
func (p *ProbeResult) IsCanonical() bool {
	return p.Codec == CanonicalCodec &&
		p.SampleRate == CanonicalSampleRate &&
		p.Channels == CanonicalChannels
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
		Duration   string `json:"duration"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
}

func parseProbe(output []byte) (*ProbeResult, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(output, &out); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	for _, stream := range out.Streams {
		if stream.CodecType != "audio" {
			continue
		}

		result := &ProbeResult{
			Codec:           stream.CodecName,
			ContainerFormat: out.Format.FormatName,
			Channels:        stream.Channels,
		}
		if stream.SampleRate != "" {
			rate, err := strconv.Atoi(stream.SampleRate)
			if err != nil {
				return nil, fmt.Errorf("invalid sample rate %q: %w", stream.SampleRate, err)
			}
			result.SampleRate = rate
		}

		duration := out.Format.Duration
		if duration == "" || duration == "N/A" {
			duration = stream.Duration
		}
		if duration != "" && duration != "N/A" {
			seconds, err := strconv.ParseFloat(strings.TrimSpace(duration), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid duration %q: %w", duration, err)
			}
			result.DurationSeconds = seconds
		}
		return result, nil
	}

	return nil, fmt.Errorf("no audio stream found")
}
