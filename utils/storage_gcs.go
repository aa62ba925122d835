package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/ingest_backend/ingest"
	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// getGoogleClient initializes a Google Cloud Storage client.
// Prefer ADC (Cloud Run service account / GOOGLE_APPLICATION_CREDENTIALS).
// If you need to provide explicit JSON (e.g. locally), set GCS_CREDENTIALS_JSON.
func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

// GetBucket returns the bucket all pipeline objects live in.
func GetBucket() string {
	return strings.TrimSpace(os.Getenv("GCS_BUCKET"))
}

// GCSStore implements ingest.ObjectStore on Google Cloud Storage.
// A client is opened per call; connection reuse is handled by the transport.
type GCSStore struct{}

func NewGCSStore() *GCSStore {
	return &GCSStore{}
}

func (s *GCSStore) Download(ctx context.Context, bucket, objectName string) ([]byte, error) {
	client, err := getGoogleClient(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	reader, err := client.Bucket(bucket).Object(objectName).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ingest.ErrObjectNotFound
		}
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %q: %w", objectName, err)
	}
	return data, nil
}

func (s *GCSStore) Upload(ctx context.Context, bucket, objectName string, data []byte, contentType string) error {
	client, err := getGoogleClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	wc := client.Bucket(bucket).Object(objectName).NewWriter(ctx)
	wc.ContentType = contentType

	if _, err := wc.Write(data); err != nil {
		return fmt.Errorf("failed to upload bytes to Google Cloud Storage: %v", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %v", err)
	}
	return nil
}

// Copy performs a server-side object copy.
func (s *GCSStore) Copy(ctx context.Context, bucket, fromObject, toObject string) error {
	client, err := getGoogleClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	src := client.Bucket(bucket).Object(fromObject)
	dst := client.Bucket(bucket).Object(toObject)
	if _, err := dst.CopierFrom(src).Run(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ingest.ErrObjectNotFound
		}
		return err
	}
	return nil
}

func (s *GCSStore) Exists(ctx context.Context, bucket, objectName string) (bool, error) {
	client, err := getGoogleClient(ctx)
	if err != nil {
		return false, err
	}
	defer client.Close()

	_, err = client.Bucket(bucket).Object(objectName).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
