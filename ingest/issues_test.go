package ingest_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/ingest_backend/ingest"
)

func TestSummarizeGroupsByKind(t *testing.T) {
	header := ingest.CheckHeaders([]string{"org_id", "scenario", "month", "amount", "notes"})
	rows := ingest.RowScanResult{
		Status:       ingest.StatusFail,
		InvalidCount: 1,
		Invalid:      []ingest.RowIssue{{Row: 3, Field: "amount", Value: "x", Message: "Amount must be numeric with up to 2 decimals"}},
		WarnCount:    1,
		Warnings:     []ingest.RowIssue{{Row: 4, Field: "dept_id", Value: "D9", Message: "Unknown dept_id (soft warning)"}},
	}

	got := ingest.Summarize(header, rows)

	codes := map[string]int{}
	for _, item := range got.HeaderErrors {
		codes[item.Code]++
	}
	if codes[ingest.CodeHeaderMissing] != 1 { // account_code
		t.Fatalf("HEADER_MISSING count = %d: %+v", codes[ingest.CodeHeaderMissing], got.HeaderErrors)
	}
	if codes[ingest.CodeHeaderEitherMissing] != 1 {
		t.Fatalf("HEADER_EITHER_MISSING count = %d", codes[ingest.CodeHeaderEitherMissing])
	}
	if codes[ingest.CodeHeaderUnexpected] != 1 { // notes
		t.Fatalf("HEADER_UNEXPECTED count = %d", codes[ingest.CodeHeaderUnexpected])
	}
	if len(got.RowErrors) != 1 || got.RowErrors[0].Code != ingest.CodeRowError || got.RowErrors[0].Row != 3 {
		t.Fatalf("rowErrors = %+v", got.RowErrors)
	}
	if len(got.Warnings) != 1 || got.Warnings[0].Code != ingest.CodeReferentialWarning {
		t.Fatalf("warnings = %+v", got.Warnings)
	}
	if got.Truncated {
		t.Fatalf("small summary must not be truncated")
	}
}

func TestSummarizeTruncationFlag(t *testing.T) {
	header := ingest.CheckHeaders([]string{"org_id", "scenario", "month", "account_code", "amount", "dept_id"})

	// Counters beyond the materialized lists mean the summary is partial.
	rows := ingest.RowScanResult{
		Status:       ingest.StatusFail,
		InvalidCount: ingest.MaxIssuesReturned + 10,
		Invalid:      make([]ingest.RowIssue, ingest.MaxIssuesReturned),
		Warnings:     []ingest.RowIssue{},
	}
	got := ingest.Summarize(header, rows)
	if !got.Truncated {
		t.Fatalf("truncated must be set when counters exceed materialized issues")
	}
}

func TestSummarizeEmptyListsNotNil(t *testing.T) {
	header := ingest.CheckHeaders([]string{"org_id", "scenario", "month", "account_code", "amount", "dept_id"})
	got := ingest.Summarize(header, ingest.RowScanResult{Status: ingest.StatusPass, Invalid: []ingest.RowIssue{}, Warnings: []ingest.RowIssue{}})
	if got.HeaderErrors == nil || got.RowErrors == nil || got.Warnings == nil {
		t.Fatalf("summary slices must be non-nil: %+v", got)
	}
}
