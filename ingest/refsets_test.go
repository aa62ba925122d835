package ingest_test

import (
	"context"
	"testing"

	"bitbucket.org/mmdatafocus/ingest_backend/ingest"
)

func TestLoadReferenceSets(t *testing.T) {
	store := newMemStore()
	store.put("bkt", ingest.ReferenceObjectPath("org-1", "dept_ids"), []byte(`["D1","D2"]`))
	store.put("bkt", ingest.ReferenceObjectPath("org-1", "account_codes"), []byte(`["4000"]`))

	refs := ingest.LoadReferenceSets(context.Background(), store, "bkt", "org-1")
	if !refs.Used {
		t.Fatalf("refs.Used must be true when any list is present")
	}
	if len(refs.DeptIds) != 2 || len(refs.EntityIds) != 0 || len(refs.AccountCodes) != 1 {
		t.Fatalf("unexpected refs: %+v", refs)
	}
}

func TestLoadReferenceSetsNoneFound(t *testing.T) {
	refs := ingest.LoadReferenceSets(context.Background(), newMemStore(), "bkt", "org-1")
	if refs.Used {
		t.Fatalf("refs.Used must be false with no reference files")
	}
	if refs.SkippedReason == "" {
		t.Fatalf("skippedReason must explain why referential checks are off")
	}
	if refs.DeptIds == nil || refs.EntityIds == nil || refs.AccountCodes == nil {
		t.Fatalf("lists must be empty slices, not nil")
	}
}

// A malformed list is treated as absent; it must not poison the other lists.
func TestLoadReferenceSetsMalformedFileTolerated(t *testing.T) {
	store := newMemStore()
	store.put("bkt", ingest.ReferenceObjectPath("org-1", "dept_ids"), []byte(`{not json`))
	store.put("bkt", ingest.ReferenceObjectPath("org-1", "entity_ids"), []byte(`["E1"]`))

	refs := ingest.LoadReferenceSets(context.Background(), store, "bkt", "org-1")
	if len(refs.DeptIds) != 0 {
		t.Fatalf("malformed dept list must load as empty: %+v", refs.DeptIds)
	}
	if len(refs.EntityIds) != 1 {
		t.Fatalf("entity list must still load: %+v", refs.EntityIds)
	}
	if !refs.Used {
		t.Fatalf("refs.Used must be true from the surviving list")
	}
}

func TestReferenceSummaryCounts(t *testing.T) {
	refs := ingest.ReferenceSets{Used: true, DeptIds: []string{"D1"}, EntityIds: []string{"E1", "E2"}, AccountCodes: []string{}}
	s := refs.Summary()
	if s.DeptCount != 1 || s.EntityCount != 2 || s.AccountCount != 0 || !s.Used {
		t.Fatalf("summary = %+v", s)
	}
}
