package objectstore

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"
)

// Key prefixes for derived artifacts.
const (
	PrefixUploads        = "uploads"
	PrefixConverted      = "converted"
	PrefixSplits         = "audio-splits"
	PrefixTranscriptions = "transcriptions"
	PrefixTranslations   = "translations"
	PrefixStaging        = "staging"
)

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lowercases s and collapses every non-alphanumeric run to "-".
func Slug(s string) string {
	return strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// BaseName strips directories and the extension from key.
func BaseName(key string) string {
	base := path.Base(key)
	return strings.TrimSuffix(base, path.Ext(base))
}

// UploadKey is uploads/<org>/<unix-ms>_<slug><ext>.
func UploadKey(orgID, filename string, now time.Time) string {
	ext := strings.ToLower(path.Ext(filename))
	name := Slug(strings.TrimSuffix(path.Base(filename), path.Ext(filename)))
	if name == "" {
		name = "file"
	}
	return path.Join(PrefixUploads, orgID, fmt.Sprintf("%d_%s%s", now.UnixMilli(), name, ext))
}

// ConvertedKey is converted/<org>/<base>.wav.
func ConvertedKey(orgID, sourceKey string) string {
	return path.Join(PrefixConverted, orgID, BaseName(sourceKey)+".wav")
}

// SplitArchiveKey is audio-splits/<org>/<base>.zip.
func SplitArchiveKey(orgID, sourceKey string) string {
	return path.Join(PrefixSplits, orgID, BaseName(sourceKey)+".zip")
}

// TranscriptionKey is transcriptions/<org>/<base>-<provider>-transcription.txt.
func TranscriptionKey(orgID, sourceKey, providerName string) string {
	return path.Join(PrefixTranscriptions, orgID,
		fmt.Sprintf("%s-%s-transcription.txt", BaseName(sourceKey), strings.ToLower(providerName)))
}

// TranslationKey is translations/<org>/<base>-<provider>-translation.txt.
func TranslationKey(orgID, sourceKey, providerName string) string {
	return path.Join(PrefixTranslations, orgID,
		fmt.Sprintf("%s-%s-translation.txt", BaseName(sourceKey), strings.ToLower(providerName)))
}

// DerivedKeys lists every artifact the pipeline can derive from sourceKey
// for orgID, one transcript and translation per provider name.
func DerivedKeys(orgID, sourceKey string, providerNames []string) []string {
	keys := []string{ConvertedKey(orgID, sourceKey), SplitArchiveKey(orgID, sourceKey)}
	for _, name := range providerNames {
		keys = append(keys,
			TranscriptionKey(orgID, sourceKey, name),
			TranslationKey(orgID, sourceKey, name))
	}
	return keys
}

// StagingKey names a temporary blob handed to a long-running provider job.
func StagingKey(operationID, filename string) string {
	return path.Join(PrefixStaging, operationID, path.Base(filename))
}

// ParseURL extracts bucket and key from s3://bucket/key, a virtual-hosted
// https://bucket.s3.region.amazonaws.com/key URL, or a path-style
// http(s)://host/bucket/key URL.
func ParseURL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid object URL: %w", err)
	}
	p := strings.TrimPrefix(u.Path, "/")

	switch {
	case u.Scheme == "s3":
		bucket, key = u.Host, p
	case u.Scheme == "http" || u.Scheme == "https":
		if host := u.Hostname(); strings.Contains(host, ".s3.") {
			bucket, key = host[:strings.Index(host, ".s3.")], p
		} else {
			parts := strings.SplitN(p, "/", 2)
			if len(parts) == 2 {
				bucket, key = parts[0], parts[1]
			}
		}
	default:
		return "", "", fmt.Errorf("unsupported object URL scheme %q", u.Scheme)
	}

	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("object URL %q has no bucket or key", raw)
	}
	return bucket, key, nil
}
