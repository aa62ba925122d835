package ingest

import (
	"context"
	"encoding/json"
)

// ReferenceSets are the optional per-org allow-lists backing the soft
// referential checks. Serializable so handlers can cache them in Redis.
type ReferenceSets struct {
	Used          bool     `json:"used"`
	DeptIds       []string `json:"deptIds"`
	EntityIds     []string `json:"entityIds"`
	AccountCodes  []string `json:"accountCodes"`
	SkippedReason string   `json:"skippedReason,omitempty"`
}

// ReferentialSummary is the observability slice of ReferenceSets reported in
// every row scan result.
type ReferentialSummary struct {
	Used          bool   `json:"used"`
	DeptCount     int    `json:"deptCount"`
	EntityCount   int    `json:"entityCount"`
	AccountCount  int    `json:"accountCount"`
	SkippedReason string `json:"skippedReason,omitempty"`
}

func (r ReferenceSets) Summary() ReferentialSummary {
	return ReferentialSummary{
		Used:          r.Used,
		DeptCount:     len(r.DeptIds),
		EntityCount:   len(r.EntityIds),
		AccountCount:  len(r.AccountCodes),
		SkippedReason: r.SkippedReason,
	}
}

// LoadReferenceSets fetches the three reference lists for an org. Each load is
// independent and failure-tolerant: a missing or malformed file contributes an
// empty list and never blocks the others. A storage miss is "no data", not an error.
func LoadReferenceSets(ctx context.Context, store ObjectStore, bucket, orgId string) ReferenceSets {
	dept := tryLoadJSONArray(ctx, store, bucket, ReferenceObjectPath(orgId, "dept_ids"))
	entity := tryLoadJSONArray(ctx, store, bucket, ReferenceObjectPath(orgId, "entity_ids"))
	account := tryLoadJSONArray(ctx, store, bucket, ReferenceObjectPath(orgId, "account_codes"))

	sets := ReferenceSets{
		DeptIds:      dept,
		EntityIds:    entity,
		AccountCodes: account,
	}
	sets.Used = len(dept) > 0 || len(entity) > 0 || len(account) > 0
	if !sets.Used {
		sets.SkippedReason = "No reference JSON files found"
	}
	return sets
}

func tryLoadJSONArray(ctx context.Context, store ObjectStore, bucket, objectName string) []string {
	data, err := store.Download(ctx, bucket, objectName)
	if err != nil {
		return []string{}
	}
	var arr []string
	if err := json.Unmarshal(data, &arr); err != nil {
		return []string{}
	}
	return arr
}

func toSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[v] = true
	}
	return out
}
