package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kgraph-ai/kgraph-engine/pkg/llm"
	"github.com/kgraph-ai/kgraph-engine/pkg/models"
	"github.com/kgraph-ai/kgraph-engine/pkg/prompts"
	"github.com/kgraph-ai/kgraph-engine/pkg/vectorindex"
)

// fallbackTableCount bounds the vector-only fallback when the model
// selects nothing usable.
const fallbackTableCount = 3

// SchemaSelector is the first pipeline stage. It retrieves candidate
// tables by embedding similarity, asks the LLM to pick and refine, and
// assembles the focused schema slice the SQL generator works from.
type SchemaSelector struct {
	manager *KGManager
	index   *vectorindex.Index
	chat    llm.Client
	embed   llm.Client
	lessons *ErrorSummaryService
	topK    int
	logger  *zap.Logger
}

// NewSchemaSelector creates a SchemaSelector. topK is the per-entity-type
// vector search depth.
func NewSchemaSelector(
	manager *KGManager,
	index *vectorindex.Index,
	chat llm.Client,
	embed llm.Client,
	lessons *ErrorSummaryService,
	topK int,
	logger *zap.Logger,
) *SchemaSelector {
	if topK <= 0 {
		topK = 10
	}
	return &SchemaSelector{
		manager: manager,
		index:   index,
		chat:    chat,
		embed:   embed,
		lessons: lessons,
		topK:    topK,
		logger:  logger.Named("schema-selector"),
	}
}

// Run selects tables for the question on the state. A nil outcome means
// the pipeline continues to SQL generation; a non-nil outcome is terminal
// (the question needs clarification).
func (s *SchemaSelector) Run(ctx context.Context, state *models.AgentState) (*models.QueryOutcome, error) {
	loaded, err := s.manager.Load(ctx, state.KGID)
	if err != nil {
		return nil, err
	}

	candidates, err := s.retrieveCandidates(ctx, state, loaded)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no schema candidates for question")
	}

	question := state.UserQuestion
	if state.Clarifications != "" {
		question = question + "\n\nClarifications from the user: " + state.Clarifications
	}
	if state.Guidance != "" {
		question = question + "\n\nGuidance from a previous failed attempt: " + state.Guidance
	}

	schemaLessons := ""
	if summary, err := s.lessons.Lessons(ctx, state.KGID); err == nil {
		schemaLessons = summary.SchemaLessons
	} else {
		s.logger.Warn("schema lessons unavailable", zap.Error(err))
	}

	resp, err := s.chat.GenerateResponse(ctx,
		prompts.BuildSelectionPrompt(question, candidates, schemaLessons),
		prompts.SelectionSystemMessage, 0)
	if err != nil {
		return nil, fmt.Errorf("table selection: %w", err)
	}
	selection, err := llm.ParseJSONResponse[prompts.SelectionResponse](resp)
	if err != nil {
		return nil, fmt.Errorf("parse table selection: %w", err)
	}

	if selection.NeedsClarification {
		prompt := selection.ClarificationPrompt
		if prompt == "" {
			prompt = "The question is ambiguous. Can you be more specific?"
		}
		return &models.QueryOutcome{
			Kind:                models.OutcomeNeedsClarification,
			Question:            state.UserQuestion,
			Attempts:            state.RetryCount + 1,
			ClarificationPrompt: prompt,
			Suggestions:         selection.Suggestions,
		}, nil
	}

	var warnings []string
	selected := make(map[string]string) // qualified name -> reason
	for _, t := range selection.Tables {
		if _, ok := loaded.TablesByName[t.QualifiedName]; !ok {
			warnings = append(warnings, fmt.Sprintf("model selected unknown table %q, ignored", t.QualifiedName))
			continue
		}
		selected[t.QualifiedName] = t.Reason
	}

	// A selection of nothing usable falls back to the strongest vector hits
	// rather than aborting the run.
	if len(selected) == 0 {
		warnings = append(warnings, "model selection unusable, falling back to vector search results")
		for i, c := range candidates {
			if i >= fallbackTableCount {
				break
			}
			selected[c.QualifiedName] = "top vector search hit"
		}
	}

	bridged := bridgeDisconnected(loaded, selected)
	for _, name := range bridged {
		selected[name] = "bridging table joining the selected tables"
	}
	enriched := enrichReferenced(loaded, selected)
	for _, name := range enriched {
		selected[name] = "referenced by a foreign key of a selected table"
	}
	if len(selected) > 1 && !isConnected(loaded, selected) {
		warnings = append(warnings, "selected tables have no join path between them")
	}

	state.RefinedQuestion = strings.TrimSpace(selection.RefinedQuestion)
	if state.RefinedQuestion == "" {
		state.RefinedQuestion = state.UserQuestion
	}
	state.TableContexts = buildTableContexts(loaded, selected)
	state.SchemaWarnings = warnings
	state.RouteTo = models.RouteSQLGenerator

	s.logger.Debug("tables selected",
		zap.String("kg_id", state.KGID.String()),
		zap.Strings("tables", state.SelectedTableNames()),
		zap.Int("bridged", len(bridged)),
		zap.Int("enriched", len(enriched)))

	return nil, nil
}

// retrieveCandidates searches tables and columns separately and folds
// column hits into their parent table's candidacy. On a rerouted retry
// the refined question from the earlier pass drives the search.
func (s *SchemaSelector) retrieveCandidates(ctx context.Context, state *models.AgentState, loaded *LoadedKG) ([]prompts.CandidateTable, error) {
	question := state.UserQuestion
	if state.RefinedQuestion != "" {
		question = state.RefinedQuestion
	}
	vec, err := s.embed.CreateEmbedding(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	tableHits, err := s.index.Search(ctx, state.KGID, vec, s.topK, map[string]string{"entity_type": string(models.EntityTypeTable)})
	if err != nil {
		return nil, fmt.Errorf("search tables: %w", err)
	}
	columnHits, err := s.index.Search(ctx, state.KGID, vec, s.topK, map[string]string{"entity_type": string(models.EntityTypeColumn)})
	if err != nil {
		return nil, fmt.Errorf("search columns: %w", err)
	}

	byName := make(map[string]*prompts.CandidateTable)
	for _, hit := range tableHits {
		qn := hit.Metadata["qualified_name"]
		t, ok := loaded.TablesByName[qn]
		if !ok {
			continue
		}
		byName[qn] = &prompts.CandidateTable{
			QualifiedName: qn,
			Description:   t.Description,
			Domain:        t.BusinessDomain,
			Similarity:    hit.Similarity,
		}
	}

	for _, hit := range columnHits {
		colQN := hit.Metadata["qualified_name"]
		colName := hit.Metadata["column_name"]
		tableQN := strings.TrimSuffix(colQN, "."+colName)
		t, ok := loaded.TablesByName[tableQN]
		if !ok {
			continue
		}
		c, ok := byName[tableQN]
		if !ok {
			c = &prompts.CandidateTable{
				QualifiedName: tableQN,
				Description:   t.Description,
				Domain:        t.BusinessDomain,
				Similarity:    hit.Similarity,
			}
			byName[tableQN] = c
		}
		if hit.Similarity > c.Similarity {
			c.Similarity = hit.Similarity
		}
		c.MatchedColumns = append(c.MatchedColumns, colName)
	}

	candidates := make([]prompts.CandidateTable, 0, len(byName))
	for _, c := range byName {
		candidates = append(candidates, *c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
	return candidates, nil
}

// bridgeDisconnected collects the intermediate tables on the shortest
// relationship path between every pair of selected tables, so the
// generator always sees a joinable set.
func bridgeDisconnected(loaded *LoadedKG, selected map[string]string) []string {
	if len(selected) < 2 || isConnected(loaded, selected) {
		return nil
	}

	adjacency := adjacencyByTable(loaded)
	names := make([]string, 0, len(selected))
	for name := range selected {
		names = append(names, name)
	}
	sort.Strings(names)

	bridges := make(map[string]bool)
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			for _, hop := range shortestPath(adjacency, names[i], names[j]) {
				if _, already := selected[hop]; !already {
					bridges[hop] = true
				}
			}
		}
	}

	out := make([]string, 0, len(bridges))
	for name := range bridges {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// shortestPath runs BFS over the relationship graph and returns the
// tables strictly between from and to, or nil when no path exists.
func shortestPath(adjacency map[string][]string, from, to string) []string {
	if from == to {
		return nil
	}

	parent := map[string]string{from: from}
	frontier := []string{from}
	for len(frontier) > 0 {
		var next []string
		for _, current := range frontier {
			for _, neighbor := range adjacency[current] {
				if _, seen := parent[neighbor]; seen {
					continue
				}
				parent[neighbor] = current
				if neighbor == to {
					var between []string
					for hop := current; hop != from; hop = parent[hop] {
						between = append(between, hop)
					}
					return between
				}
				next = append(next, neighbor)
			}
		}
		frontier = next
	}
	return nil
}

// enrichReferenced adds the tables a selected table points at through a
// foreign key, so generated SQL can join out to human-readable values
// instead of returning raw ids. Self-references never qualify.
func enrichReferenced(loaded *LoadedKG, selected map[string]string) []string {
	candidates := make(map[string]bool)
	for name := range selected {
		for _, r := range loaded.RelationshipsFor(name) {
			if r.IsSelfReference || r.FromTable != name {
				continue
			}
			if _, already := selected[r.ToTable]; already {
				continue
			}
			if _, known := loaded.TablesByName[r.ToTable]; !known {
				continue
			}
			candidates[r.ToTable] = true
		}
	}

	enriched := make([]string, 0, len(candidates))
	for name := range candidates {
		enriched = append(enriched, name)
	}
	sort.Strings(enriched)
	return enriched
}

// isConnected reports whether the selected tables form one component in
// the relationship graph.
func isConnected(loaded *LoadedKG, selected map[string]string) bool {
	if len(selected) <= 1 {
		return true
	}

	adjacency := adjacencyByTable(loaded)
	var start string
	for name := range selected {
		start = name
		break
	}

	seen := map[string]bool{start: true}
	frontier := []string{start}
	for len(frontier) > 0 {
		current := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		for _, neighbor := range adjacency[current] {
			if _, ok := selected[neighbor]; !ok {
				continue
			}
			if !seen[neighbor] {
				seen[neighbor] = true
				frontier = append(frontier, neighbor)
			}
		}
	}
	return len(seen) == len(selected)
}

func adjacencyByTable(loaded *LoadedKG) map[string][]string {
	adjacency := make(map[string][]string)
	for _, r := range loaded.Relationships {
		adjacency[r.FromTable] = append(adjacency[r.FromTable], r.ToTable)
		adjacency[r.ToTable] = append(adjacency[r.ToTable], r.FromTable)
	}
	return adjacency
}

// buildTableContexts assembles the schema slices handed to the SQL
// generator: each selected table plus the FK edges whose both endpoints
// are selected.
func buildTableContexts(loaded *LoadedKG, selected map[string]string) []models.TableContext {
	names := make([]string, 0, len(selected))
	for name := range selected {
		names = append(names, name)
	}
	sort.Strings(names)

	contexts := make([]models.TableContext, 0, len(names))
	for _, name := range names {
		t := loaded.TablesByName[name]
		var rels []models.Relationship
		for _, r := range loaded.RelationshipsFor(name) {
			_, fromSelected := selected[r.FromTable]
			_, toSelected := selected[r.ToTable]
			if fromSelected && toSelected {
				rels = append(rels, r)
			}
		}
		contexts = append(contexts, models.TableContext{
			Table:         *t,
			Relationships: rels,
			Reason:        selected[name],
		})
	}
	return contexts
}
