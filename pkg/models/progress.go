package models

// ProgressPhase names the build phases reported during KG construction.
type ProgressPhase string

const (
	PhaseDiscovery     ProgressPhase = "discovery"
	PhaseProfiling     ProgressPhase = "profiling"
	PhaseEnrichment    ProgressPhase = "enrichment"
	PhaseRelationships ProgressPhase = "relationships"
	PhaseEmbedding     ProgressPhase = "embedding"
	PhasePersist       ProgressPhase = "persist"
	PhaseIndexing      ProgressPhase = "indexing"
)

// ProgressUpdate is a point-in-time report of build progress.
type ProgressUpdate struct {
	Phase     ProgressPhase `json:"phase"`
	Message   string        `json:"message"`
	Completed int           `json:"completed"`
	Total     int           `json:"total"`
}

// ProgressFunc receives build progress updates. Implementations must not
// block; slow consumers get updates dropped.
type ProgressFunc func(ProgressUpdate)
