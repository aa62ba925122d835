package ingest

import (
	"context"
	"errors"
	"fmt"
)

// ErrObjectNotFound is returned by ObjectStore implementations when the
// requested object does not exist. Callers distinguish "absent" from real
// storage faults with errors.Is.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is the storage collaborator consumed by the pipeline.
// The production implementation lives in utils (GCS); tests use an in-memory fake.
type ObjectStore interface {
	Download(ctx context.Context, bucket, objectName string) ([]byte, error)
	Upload(ctx context.Context, bucket, objectName string, data []byte, contentType string) error
	Copy(ctx context.Context, bucket, fromObject, toObject string) error
	Exists(ctx context.Context, bucket, objectName string) (bool, error)
}

// Storage path conventions. Raw uploads are immutable; the normalized copy is
// written once by the promotion orchestrator as a best-effort archive.
func RawObjectPath(orgId, uploadId, ext string) string {
	return fmt.Sprintf("org/%s/raw/%s%s", orgId, uploadId, ext)
}

func NormalizedObjectPath(orgId, uploadId string) string {
	return fmt.Sprintf("org/%s/normalized/%s.csv", orgId, uploadId)
}

func ReferenceObjectPath(orgId, name string) string {
	return fmt.Sprintf("org/%s/reference/%s.json", orgId, name)
}
