package models

// ErrorCategory labels why a pipeline attempt failed. Categories drive both
// routing and lesson bookkeeping.
const (
	ErrCatMissingTable     = "missing_table"
	ErrCatMissingColumn    = "missing_column"
	ErrCatWrongJoin        = "wrong_join"
	ErrCatSQLSyntax        = "sql_syntax"
	ErrCatTypeMismatch     = "type_mismatch"
	ErrCatAmbiguous        = "ambiguous_question"
	ErrCatImpossible       = "impossible_request"
	ErrCatPermission       = "permission_denied"
	ErrCatConnectionFailed = "connection_failed"
	ErrCatTimeout          = "timeout"
	ErrCatEmptyResult      = "empty_result"
	ErrCatUnknown          = "unknown"
)

// Classification is the structured verdict on one failure.
type Classification struct {
	Category        string `json:"category"`
	IsSchemaRelated bool   `json:"is_schema_related"`
	IsTerminal      bool   `json:"is_terminal"`
	Explanation     string `json:"explanation,omitempty"`
}

// RoutingDecision says where the pipeline goes next and with what guidance.
type RoutingDecision struct {
	Target   RouteTarget `json:"target"`
	Guidance string      `json:"guidance,omitempty"`
	Terminal bool        `json:"terminal"`
}

// TerminalCategories are failure modes no retry can fix. A statement
// timeout is terminal too: retrying just burns another full timeout
// window against the same data volume.
var TerminalCategories = map[string]bool{
	ErrCatAmbiguous:        true,
	ErrCatImpossible:       true,
	ErrCatPermission:       true,
	ErrCatConnectionFailed: true,
	ErrCatTimeout:          true,
}
