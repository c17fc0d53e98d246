package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"voxmeter/internal/app/api/provider"
	"voxmeter/internal/app/errors"
)

// Operation names an orchestrator entry point.
type Operation string

const (
	OpConvert        Operation = "convert"
	OpSplit          Operation = "split"
	OpTranscribe     Operation = "transcribe"
	OpTranslate      Operation = "translate"
	OpDetectLanguage Operation = "detect_language"
)

// Operations lists every entry point in a stable order.
var Operations = []Operation{OpConvert, OpSplit, OpTranscribe, OpTranslate, OpDetectLanguage}

// Request references a stored blob and the tenant the work is billed to.
//
// Either FileURL or BlobKey locates the source; BlobKey is relative to the
// configured bucket. OperationID and Attempt are assigned by trusted
// callers only (the job queue and the CLI); the HTTP adapter clears them.
// Replaying the same attempt of the same request does not write its ledger
// rows twice.
type Request struct {
	OperationID    string `json:"operationId,omitempty" validate:"omitempty,max=64"`
	Attempt        int    `json:"attempt,omitempty" validate:"gte=0"`
	FileURL        string `json:"fileUrl,omitempty" validate:"omitempty,url"`
	BlobKey        string `json:"blobKey,omitempty" validate:"required_without=FileURL"`
	FileID         string `json:"fileId,omitempty" validate:"omitempty,max=64"`
	Language       string `json:"language,omitempty" validate:"omitempty,max=16"`
	TargetLanguage string `json:"targetLanguage,omitempty" validate:"omitempty,max=32"`
	DoubleModel    bool   `json:"doubleModel,omitempty"`
	SegmentSeconds int    `json:"segmentSeconds,omitempty" validate:"gte=0,lte=3600"`
	OrganizationID string `json:"organizationId" validate:"required,max=64"`
	UserID         string `json:"userId" validate:"required,max=64"`
}

// Fingerprint identifies the work req asks for. Ledger keys include it so
// an operation id reused for other work cannot match earlier rows.
func (req *Request) Fingerprint() string {
	h := sha256.New()
	for _, part := range []string{
		req.OrganizationID, req.UserID, req.FileID, req.BlobKey, req.FileURL,
		req.Language, req.TargetLanguage,
		strconv.FormatBool(req.DoubleModel), strconv.Itoa(req.SegmentSeconds),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// ProviderResult is the outcome of one provider within an operation. Error
// is set only for a failed secondary provider.
type ProviderResult struct {
	Provider    string         `json:"provider"`
	Text        string         `json:"text,omitempty"`
	Language    string         `json:"language,omitempty"`
	Confidence  float64        `json:"confidence,omitempty"`
	ArtifactURL string         `json:"artifactUrl,omitempty"`
	Usage       provider.Usage `json:"usage"`
	Cost        float64        `json:"cost"`
	Error       string         `json:"error,omitempty"`
}

// Response aggregates an operation.
type Response struct {
	Message         string          `json:"message"`
	OperationID     string          `json:"operationId"`
	PrimaryResult   *ProviderResult `json:"primaryResult,omitempty"`
	SecondaryResult *ProviderResult `json:"secondaryResult,omitempty"`
	Segments        int             `json:"segments,omitempty"`
	TotalCost       float64         `json:"totalCost"`
	Currency        string          `json:"currency,omitempty"`
	ArtifactURLs    []string        `json:"artifactUrls"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks req against its field rules.
func Validate(req *Request) error {
	if req == nil {
		return errors.RequiredField("request")
	}
	if err := validate.Struct(req); err != nil {
		return errors.WrapKind(errors.KindInvalidRequest, err, "invalid request")
	}
	return nil
}

// ParseOperation maps a name to its Operation. Dashes are accepted in place
// of underscores so route segments parse too.
func ParseOperation(name string) (Operation, error) {
	op := Operation(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_"))
	if !slices.Contains(Operations, op) {
		return "", errors.InvalidField("operation", fmt.Sprintf("unknown operation %q", name))
	}
	return op, nil
}
