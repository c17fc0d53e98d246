package dto

import (
	"time"

	"voxmeter/internal/app/pipeline"
)

// JobAcceptedResponse is returned when an operation is queued instead of
// run inline.
type JobAcceptedResponse struct {
	JobID       string             `json:"jobId"`
	OperationID string             `json:"operationId"`
	Operation   pipeline.Operation `json:"operation"`
	Status      string             `json:"status"`
	QueuedAt    time.Time          `json:"queuedAt"`
}
