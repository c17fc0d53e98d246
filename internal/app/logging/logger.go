package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field keys shared by every pipeline log line.
const (
	FieldOperationID = "operation_id"
	FieldFileID      = "file_id"
	FieldOrgID       = "org_id"
	FieldProvider    = "provider"
	FieldStage       = "stage"
)

// New creates a new zap logger with appropriate configuration
func New(development bool) (*zap.Logger, error) {
	var config zap.Config

	if development {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	return config.Build()
}

// MustNew creates a new logger and panics if it fails
func MustNew(development bool) *zap.Logger {
	logger, err := New(development)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	return logger
}

// Operation returns a child logger tagged with the identifiers of one pipeline run.
func Operation(base *zap.Logger, operationID, fileID, orgID string) *zap.Logger {
	return base.With(
		zap.String(FieldOperationID, operationID),
		zap.String(FieldFileID, fileID),
		zap.String(FieldOrgID, orgID),
	)
}
