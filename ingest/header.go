package ingest

// ScanStatus is shared by the header check and the row scan.
type ScanStatus string

const (
	StatusPass    ScanStatus = "pass"
	StatusFail    ScanStatus = "fail"
	StatusSkipped ScanStatus = "skipped"
)

// RequiredHeaders must all be present; at least one of EitherHeaders must be.
var (
	RequiredHeaders = []string{"org_id", "scenario", "month", "account_code", "amount"}
	EitherHeaders   = []string{"dept_id", "entity_id"}
)

type HeaderCheckResult struct {
	Status            ScanStatus `json:"status"`
	NormalizedHeaders []string   `json:"normalizedHeaders"`
	RequiredMissing   []string   `json:"requiredMissing"`
	EitherMissing     []string   `json:"eitherMissing"`
	Duplicates        []string   `json:"duplicates"`
	Unexpected        []string   `json:"unexpected"`
}

// CheckHeaders validates the raw header tokens of the first non-blank line.
// A fail here is a hard gate: the row scan is skipped entirely.
func CheckHeaders(headers []string) HeaderCheckResult {
	allowed := make(map[string]bool, len(RequiredHeaders)+len(EitherHeaders))
	for _, h := range RequiredHeaders {
		allowed[h] = true
	}
	for _, h := range EitherHeaders {
		allowed[h] = true
	}

	normalized := make([]string, 0, len(headers))
	for _, h := range headers {
		normalized = append(normalized, NormalizeHeaderToken(h))
	}

	present := make(map[string]int, len(normalized))
	for _, h := range normalized {
		present[h]++
	}

	duplicates := []string{}
	seen := make(map[string]bool)
	for _, h := range normalized {
		if present[h] > 1 && !seen[h] {
			duplicates = append(duplicates, h)
			seen[h] = true
		}
	}

	requiredMissing := []string{}
	for _, r := range RequiredHeaders {
		if present[r] == 0 {
			requiredMissing = append(requiredMissing, r)
		}
	}

	eitherMissing := []string{}
	hasEither := false
	for _, e := range EitherHeaders {
		if present[e] > 0 {
			hasEither = true
		}
	}
	if !hasEither {
		eitherMissing = append(eitherMissing, EitherHeaders...)
	}

	unexpected := []string{}
	for _, h := range normalized {
		if !allowed[h] {
			unexpected = append(unexpected, h)
		}
	}

	status := StatusPass
	if len(duplicates) > 0 || len(requiredMissing) > 0 || len(eitherMissing) > 0 || len(unexpected) > 0 {
		status = StatusFail
	}

	return HeaderCheckResult{
		Status:            status,
		NormalizedHeaders: normalized,
		RequiredMissing:   requiredMissing,
		EitherMissing:     eitherMissing,
		Duplicates:        duplicates,
		Unexpected:        unexpected,
	}
}
