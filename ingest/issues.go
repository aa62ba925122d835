package ingest

import "fmt"

// Stable issue codes for client-side grouping.
const (
	CodeHeaderMissing       = "HEADER_MISSING"
	CodeHeaderEitherMissing = "HEADER_EITHER_MISSING"
	CodeHeaderDuplicate     = "HEADER_DUPLICATE"
	CodeHeaderUnexpected    = "HEADER_UNEXPECTED"
	CodeRowError            = "ROW_ERROR"
	CodeReferentialWarning  = "REFERENTIAL_WARNING"
)

// MaxSummaryItems caps the combined issue summary.
const MaxSummaryItems = 200

type IssueItem struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Row     int    `json:"row,omitempty"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

// IssueSummary is the UI-ready aggregation of the header check and row scan.
// Truncated signals the summary is partial, not exhaustive.
type IssueSummary struct {
	HeaderErrors []IssueItem `json:"headerErrors"`
	RowErrors    []IssueItem `json:"rowErrors"`
	Warnings     []IssueItem `json:"warnings"`
	Truncated    bool        `json:"truncated"`
}

// Summarize flattens validation output into three capped lists.
func Summarize(h HeaderCheckResult, r RowScanResult) IssueSummary {
	summary := IssueSummary{
		HeaderErrors: []IssueItem{},
		RowErrors:    []IssueItem{},
		Warnings:     []IssueItem{},
	}

	total := 0
	add := func(dst *[]IssueItem, item IssueItem) {
		if total >= MaxSummaryItems {
			summary.Truncated = true
			return
		}
		*dst = append(*dst, item)
		total++
	}

	for _, f := range h.RequiredMissing {
		add(&summary.HeaderErrors, IssueItem{Code: CodeHeaderMissing, Field: f, Message: fmt.Sprintf("Required header %q is missing", f)})
	}
	if len(h.EitherMissing) > 0 {
		add(&summary.HeaderErrors, IssueItem{Code: CodeHeaderEitherMissing, Field: "dept_id|entity_id", Message: "At least one of dept_id or entity_id must be present"})
	}
	for _, f := range h.Duplicates {
		add(&summary.HeaderErrors, IssueItem{Code: CodeHeaderDuplicate, Field: f, Message: fmt.Sprintf("Header %q appears more than once", f)})
	}
	for _, f := range h.Unexpected {
		add(&summary.HeaderErrors, IssueItem{Code: CodeHeaderUnexpected, Field: f, Message: fmt.Sprintf("Header %q is not an allowed column", f)})
	}

	for _, issue := range r.Invalid {
		add(&summary.RowErrors, IssueItem{Code: CodeRowError, Field: issue.Field, Row: issue.Row, Value: issue.Value, Message: issue.Message})
	}
	for _, issue := range r.Warnings {
		add(&summary.Warnings, IssueItem{Code: CodeReferentialWarning, Field: issue.Field, Row: issue.Row, Value: issue.Value, Message: issue.Message})
	}

	// The scan itself caps what it materializes; reflect that here.
	if r.InvalidCount > len(r.Invalid) || r.WarnCount > len(r.Warnings) {
		summary.Truncated = true
	}
	return summary
}
