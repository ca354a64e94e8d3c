package models

import (
	"github.com/google/uuid"
)

// EntityType distinguishes the kinds of graph nodes that carry embeddings.
type EntityType string

const (
	EntityTypeTable  EntityType = "table"
	EntityTypeColumn EntityType = "column"
)

// Embedding is a stored vector for one graph entity, kept in the durable
// store so the in-process vector index can be rebuilt without re-calling
// the embedding model.
type Embedding struct {
	KGID       uuid.UUID  `json:"kg_id"`
	EntityType EntityType `json:"entity_type"`
	EntityID   uuid.UUID  `json:"entity_id"`
	Content    string     `json:"content"`
	Vector     []float32  `json:"-"`
	ModelID    string     `json:"model_id"`
	Dim        int        `json:"dim"`
}
