package apperrors

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrKGNotFound       = errors.New("knowledge graph not found")
	ErrKGNotReady       = errors.New("knowledge graph is not ready")
	ErrConnection       = errors.New("connection failed")
	ErrEmbeddingMissing = errors.New("embedding not available")
)
