package model

import (
	"fmt"
	"time"
)

// Status is the three-state lifecycle of an artifact field.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAvailable Status = "available"
	StatusFailed    Status = "failed"
)

// StatusField selects which independent status of a File is updated.
type StatusField string

const (
	FieldFile        StatusField = "file"
	FieldTranscript  StatusField = "transcript"
	FieldTranslation StatusField = "translation"
)

// Valid reports whether f names a known field.
func (f StatusField) Valid() bool {
	switch f {
	case FieldFile, FieldTranscript, FieldTranslation:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAvailable, StatusFailed:
		return true
	}
	return false
}

// File is an uploaded artifact with independent file, transcript and
// translation states.
type File struct {
	ID                       string    `json:"id" db:"id"`
	Name                     string    `json:"name" db:"name"`
	StorageKey               string    `json:"storageKey" db:"storage_key"`
	OrganizationID           string    `json:"organizationId" db:"organization_id"`
	UserID                   string    `json:"userId" db:"user_id"`
	Status                   Status    `json:"status" db:"status"`
	TranscriptStatus         Status    `json:"transcriptStatus" db:"transcript_status"`
	TranscriptionArtifactKey string    `json:"transcriptionArtifactKey,omitempty" db:"transcription_artifact_key"`
	TranslationStatus        Status    `json:"translationStatus" db:"translation_status"`
	TranslationArtifactKey   string    `json:"translationArtifactKey,omitempty" db:"translation_artifact_key"`
	CreatedAt                time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt                time.Time `json:"updatedAt" db:"updated_at"`
}

// StatusColumn returns the column holding field's status.
func StatusColumn(field StatusField) (string, error) {
	switch field {
	case FieldFile:
		return "status", nil
	case FieldTranscript:
		return "transcript_status", nil
	case FieldTranslation:
		return "translation_status", nil
	}
	return "", fmt.Errorf("unknown status field %q", field)
}

// ArtifactColumn returns the column holding field's artifact key.
func ArtifactColumn(field StatusField) (string, error) {
	switch field {
	case FieldTranscript:
		return "transcription_artifact_key", nil
	case FieldTranslation:
		return "translation_artifact_key", nil
	}
	return "", fmt.Errorf("status field %q has no artifact", field)
}

// TableName returns the table name for File
func (File) TableName() string {
	return "files"
}
