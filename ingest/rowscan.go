package ingest

import (
	"regexp"
	"strings"
)

const (
	// MaxRows bounds validation cost on adversarial inputs. Rows beyond the
	// cap are counted toward rowCapExceeded but not individually validated.
	MaxRows = 50000

	// MaxIssuesReturned caps the materialized issue lists; counters keep
	// incrementing past it.
	MaxIssuesReturned = 200
)

var (
	monthPattern  = regexp.MustCompile(`^\d{4}-\d{2}(?:-\d{2})?$`)
	amountPattern = regexp.MustCompile(`^-?\d+(?:\.\d{1,2})?$`)
)

// RowIssue reports one hard error or soft warning. Row is the 1-based line
// number in the source file (header line = row 1) so users can open the file
// and jump straight to it.
type RowIssue struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

type RowScanResult struct {
	Status         ScanStatus         `json:"status"`
	Checked        int                `json:"checked"`
	InvalidCount   int                `json:"invalidCount"`
	Invalid        []RowIssue         `json:"invalid"`
	RowCapExceeded bool               `json:"rowCapExceeded"`
	WarnCount      int                `json:"warnCount"`
	Warnings       []RowIssue         `json:"warnings"`
	Referentials   ReferentialSummary `json:"referentials"`
}

// SkippedScan is the result reported when the header check already failed;
// the row scan never runs against a structurally invalid header.
func SkippedScan(reason string) RowScanResult {
	return RowScanResult{
		Status:   StatusSkipped,
		Invalid:  []RowIssue{},
		Warnings: []RowIssue{},
		Referentials: ReferentialSummary{
			SkippedReason: reason,
		},
	}
}

// ScanRows validates every non-blank data line. Hard checks gate promotion;
// referential mismatches are soft warnings only, because reference lists are
// often incomplete or stale. Pure function of its inputs.
func ScanRows(csvText string, headers []string, orgId string, refs ReferenceSets) RowScanResult {
	lines := SplitLines(csvText)
	headerIndex := headerLineIndex(lines)
	if headerIndex == -1 {
		return RowScanResult{
			Status:       StatusFail,
			InvalidCount: 1,
			Invalid:      []RowIssue{{Row: 1, Field: "_file", Message: "CSV appears empty"}},
			Warnings:     []RowIssue{},
			Referentials: ReferentialSummary{SkippedReason: "CSV empty"},
		}
	}

	// Map each logical field name to its physical column so lookups stay
	// stable regardless of column order.
	rawTokens := strings.Split(lines[headerIndex], ",")
	indexOf := make(map[string]int, len(headers))
	for _, h := range headers {
		indexOf[h] = -1
		for i, t := range rawTokens {
			if NormalizeHeaderToken(t) == h {
				indexOf[h] = i
				break
			}
		}
	}

	deptSet := toSet(refs.DeptIds)
	entitySet := toSet(refs.EntityIds)
	accountSet := toSet(refs.AccountCodes)

	result := RowScanResult{
		Invalid:      []RowIssue{},
		Warnings:     []RowIssue{},
		Referentials: refs.Summary(),
	}

	addInvalid := func(issue RowIssue) {
		result.InvalidCount++
		if len(result.Invalid) < MaxIssuesReturned {
			result.Invalid = append(result.Invalid, issue)
		}
	}
	addWarning := func(issue RowIssue) {
		result.WarnCount++
		if len(result.Warnings) < MaxIssuesReturned {
			result.Warnings = append(result.Warnings, issue)
		}
	}

	dataLines := lines[headerIndex+1:]
	for i, raw := range dataLines {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if result.Checked >= MaxRows {
			result.RowCapExceeded = true
			continue
		}
		result.Checked++

		rowNumber := headerIndex + 1 + i + 1
		cols := strings.Split(raw, ",")
		for j := range cols {
			cols[j] = strings.TrimSpace(cols[j])
		}

		cell := func(field string) (string, bool) {
			idx, ok := indexOf[field]
			if !ok || idx < 0 || idx >= len(cols) {
				return "", false
			}
			return cols[idx], true
		}

		// Required fields (hard).
		for _, f := range RequiredHeaders {
			v, present := cell(f)
			if !present {
				addInvalid(RowIssue{Row: rowNumber, Field: f, Message: "Missing required column in this row"})
			} else if v == "" {
				addInvalid(RowIssue{Row: rowNumber, Field: f, Value: v, Message: "Required value is blank"})
			}
		}

		// At least one of dept_id/entity_id (hard), independent of the header-level check.
		deptVal, _ := cell("dept_id")
		entityVal, _ := cell("entity_id")
		if deptVal == "" && entityVal == "" {
			addInvalid(RowIssue{Row: rowNumber, Field: "dept_id|entity_id", Message: "At least one of dept_id or entity_id must be provided"})
		}

		// Formats (hard).
		if monthVal, _ := cell("month"); monthVal != "" && !monthPattern.MatchString(monthVal) {
			addInvalid(RowIssue{Row: rowNumber, Field: "month", Value: monthVal, Message: "Invalid month format (YYYY-MM or YYYY-MM-DD)"})
		}
		if amountVal, _ := cell("amount"); amountVal != "" && !amountPattern.MatchString(amountVal) {
			addInvalid(RowIssue{Row: rowNumber, Field: "amount", Value: amountVal, Message: "Amount must be numeric with up to 2 decimals"})
		}

		// org_id must match the caller's org (hard).
		if orgCell, _ := cell("org_id"); orgId != "" && orgCell != "" && orgCell != orgId {
			addInvalid(RowIssue{Row: rowNumber, Field: "org_id", Value: orgCell, Message: "org_id does not match authenticated org"})
		}

		// Referential checks (soft warnings only).
		if refs.Used {
			if deptVal != "" && !deptSet[deptVal] {
				addWarning(RowIssue{Row: rowNumber, Field: "dept_id", Value: deptVal, Message: "Unknown dept_id (soft warning)"})
			}
			if entityVal != "" && !entitySet[entityVal] {
				addWarning(RowIssue{Row: rowNumber, Field: "entity_id", Value: entityVal, Message: "Unknown entity_id (soft warning)"})
			}
			if accountVal, _ := cell("account_code"); accountVal != "" && !accountSet[accountVal] {
				addWarning(RowIssue{Row: rowNumber, Field: "account_code", Value: accountVal, Message: "Unknown account_code (soft warning)"})
			}
		}
	}

	result.Status = StatusPass
	if result.InvalidCount > 0 || result.RowCapExceeded {
		result.Status = StatusFail
	}
	return result
}
