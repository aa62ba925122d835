package main

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/ingest_backend/config"
	"bitbucket.org/mmdatafocus/ingest_backend/ingest"
	"bitbucket.org/mmdatafocus/ingest_backend/models"
	"bitbucket.org/mmdatafocus/ingest_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxUploadSizeBytes int64 = 20 * 1024 * 1024

var uploadContentTypes = map[string]string{
	ingest.ExtCSV:  "text/csv",
	ingest.ExtXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// uploadHandler stores a raw tabular file at org/{orgId}/raw/{uploadId}{ext}.
// The stored object is immutable; validation and promotion read it by uploadId.
func uploadHandler(deps apiDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		logger := config.GetLogger()
		run := models.IngestRun{Route: "/api/upload", Mode: "sync", Status: models.IngestRunStatusFail}
		run.CorrelationId, _ = utils.GetCorrelationIdFromContext(c.Request.Context())
		defer func() {
			run.DurationMs = time.Since(start).Milliseconds()
			models.LogPipelineRun(deps.db(), logger, run)
		}()

		orgId := resolveOrgId(c)
		if orgId == "" {
			run.ErrorCode = "UNAUTHORIZED"
			failJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing org (x-org-id header or bs_org_id cookie)")
			return
		}
		run.OrgId = orgId

		fileHeader, err := c.FormFile("file")
		if err != nil {
			run.ErrorCode = "BAD_REQUEST"
			failJSON(c, http.StatusBadRequest, "BAD_REQUEST", "file missing")
			return
		}
		if fileHeader.Size > maxUploadSizeBytes {
			run.ErrorCode = "BAD_REQUEST"
			failJSON(c, http.StatusBadRequest, "BAD_REQUEST", "file size exceeds 20MB limit")
			return
		}

		ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
		if ext == "" {
			ext = ingest.ExtCSV
		}
		contentType, supported := uploadContentTypes[ext]
		if !supported {
			run.ErrorCode = "BAD_REQUEST"
			failJSON(c, http.StatusBadRequest, "BAD_REQUEST", "unsupported file type; upload .csv or .xlsx")
			return
		}

		f, err := fileHeader.Open()
		if err != nil {
			run.ErrorCode = "INTERNAL"
			failJSON(c, http.StatusInternalServerError, "INTERNAL", "could not read uploaded file")
			return
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, maxUploadSizeBytes+1))
		if err != nil {
			run.ErrorCode = "INTERNAL"
			failJSON(c, http.StatusInternalServerError, "INTERNAL", "could not read uploaded file")
			return
		}
		if int64(len(data)) > maxUploadSizeBytes {
			run.ErrorCode = "BAD_REQUEST"
			failJSON(c, http.StatusBadRequest, "BAD_REQUEST", "file size exceeds 20MB limit")
			return
		}

		uploadId := uuid.NewString()
		storagePath := ingest.RawObjectPath(orgId, uploadId, ext)
		bucket := deps.bucket()

		if err := deps.store.Upload(c.Request.Context(), bucket, storagePath, data, contentType); err != nil {
			config.LogError(logger, "upload.go", "uploadHandler", "storage upload", storagePath, err)
			run.ErrorCode = "STORAGE"
			failJSON(c, http.StatusInternalServerError, "STORAGE", "storage upload failed")
			return
		}

		run.Status = models.IngestRunStatusOk
		run.UploadId = uploadId
		run.StoragePath = storagePath
		run.FileSizeBytes = int64(len(data))

		okJSON(c, gin.H{
			"uploadId":      uploadId,
			"bucket":        bucket,
			"storagePath":   storagePath,
			"byteLenStored": len(data),
		})
	}
}

const signedUploadExpiry = 15 * time.Minute

// signedUploadHandler issues a short-lived signed PUT URL so large files can
// go straight to the bucket without passing through this service. The caller
// still runs validate/promote by the returned uploadId afterwards.
func signedUploadHandler(deps apiDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgId := resolveOrgId(c)
		if orgId == "" {
			failJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing org (x-org-id header or bs_org_id cookie)")
			return
		}

		ext := strings.ToLower(strings.TrimSpace(c.Query("ext")))
		if ext == "" {
			ext = ingest.ExtCSV
		}
		contentType, supported := uploadContentTypes[ext]
		if !supported {
			failJSON(c, http.StatusBadRequest, "BAD_REQUEST", "unsupported file type; use ext=.csv or ext=.xlsx")
			return
		}

		uploadId := uuid.NewString()
		objectKey := ingest.RawObjectPath(orgId, uploadId, ext)

		signed, err := utils.SignUpload(c.Request.Context(), objectKey, contentType, signedUploadExpiry)
		if err != nil {
			config.LogError(config.GetLogger(), "upload.go", "signedUploadHandler", "sign upload", objectKey, err)
			failJSON(c, http.StatusInternalServerError, "SIGNING_FAILED", "could not create signed upload URL")
			return
		}

		okJSON(c, gin.H{
			"uploadId": uploadId,
			"upload":   signed,
		})
	}
}
