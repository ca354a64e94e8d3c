// Package models defines the domain types shared across repositories and
// services.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// KGStatus represents the lifecycle state of a knowledge graph.
type KGStatus string

const (
	KGStatusBuilding KGStatus = "building"
	KGStatusReady    KGStatus = "ready"
	KGStatusError    KGStatus = "error"
)

// KnowledgeGraph is the persistent metadata record for one source database.
type KnowledgeGraph struct {
	ID                uuid.UUID `json:"kg_id"`
	SourceFingerprint string    `json:"source_fingerprint"`
	Status            KGStatus  `json:"status"`
	Version           int       `json:"version"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	LastUpdated       time.Time `json:"last_updated"`
}

// Fingerprint computes the deterministic identity of a source database from
// its network coordinates. The same database always maps to the same
// knowledge graph regardless of credentials.
func Fingerprint(host string, port int, database string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d/%s", host, port, database)))
	return hex.EncodeToString(sum[:])
}
