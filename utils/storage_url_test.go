package utils_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/ingest_backend/utils"
)

func TestBuildObjectAccessURL(t *testing.T) {
	tests := []struct {
		name      string
		baseURL   string
		gcsURL    string
		gcsBucket string
		objectKey string
		want      string
	}{
		{
			name:      "base url with placeholder",
			baseURL:   "https://cdn.example.com/files/{objectKey}",
			objectKey: "org/org-1/raw/up-1.csv",
			want:      "https://cdn.example.com/files/org/org-1/raw/up-1.csv",
		},
		{
			name:      "query style base escapes the key",
			baseURL:   "https://cdn.example.com/get?key=",
			objectKey: "org/org-1/raw/up-1.csv",
			want:      "https://cdn.example.com/get?key=org%2Forg-1%2Fraw%2Fup-1.csv",
		},
		{
			name:      "plain base gets a joined path",
			baseURL:   "https://cdn.example.com/files/",
			objectKey: "org/org-1/raw/up-1.csv",
			want:      "https://cdn.example.com/files/org/org-1/raw/up-1.csv",
		},
		{
			name:      "gcs public form",
			gcsURL:    "storage.googleapis.com",
			gcsBucket: "ingest-bucket",
			objectKey: "org/org-1/raw/up-1.csv",
			want:      "https://storage.googleapis.com/ingest-bucket/org/org-1/raw/up-1.csv",
		},
		{
			name:      "no env falls back to the bare key",
			objectKey: "org/org-1/raw/up-1.csv",
			want:      "org/org-1/raw/up-1.csv",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("STORAGE_ACCESS_BASE_URL", tc.baseURL)
			t.Setenv("GCS_URL", tc.gcsURL)
			t.Setenv("GCS_BUCKET", tc.gcsBucket)
			if got := utils.BuildObjectAccessURL(tc.objectKey); got != tc.want {
				t.Fatalf("BuildObjectAccessURL(%q) = %q, want %q", tc.objectKey, got, tc.want)
			}
		})
	}
}
