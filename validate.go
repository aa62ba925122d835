package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"bitbucket.org/mmdatafocus/ingest_backend/config"
	"bitbucket.org/mmdatafocus/ingest_backend/ingest"
	"bitbucket.org/mmdatafocus/ingest_backend/models"
	"bitbucket.org/mmdatafocus/ingest_backend/utils"
	"github.com/gin-gonic/gin"
)

const refSetsCacheTTL = 5 * time.Minute

func refSetsCacheKey(orgId string) string {
	return "RefSets:" + orgId
}

// validateHandler runs the read-only validation pipeline: decode → header
// check → row scan → issue summary. It never mutates storage or the ledger.
// Hard validation failures are a 200 with ok:false so clients can render the
// structured detail; 4xx/5xx are reserved for request-shape and infra errors.
func validateHandler(deps apiDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		logger := config.GetLogger()
		run := models.IngestRun{Route: "/api/validate", Mode: "sync", Status: models.IngestRunStatusFail}
		run.CorrelationId, _ = utils.GetCorrelationIdFromContext(c.Request.Context())
		defer func() {
			run.DurationMs = time.Since(start).Milliseconds()
			models.LogPipelineRun(deps.db(), logger, run)
		}()

		uploadId := uploadIdFromRequest(c)
		if uploadId == "" {
			run.ErrorCode = "BAD_REQUEST"
			failJSON(c, http.StatusBadRequest, "BAD_REQUEST", "uploadId is required")
			return
		}
		run.UploadId = uploadId

		orgId := resolveOrgId(c)
		if orgId == "" {
			run.ErrorCode = "UNAUTHORIZED"
			failJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing org (x-org-id header or bs_org_id cookie)")
			return
		}
		run.OrgId = orgId

		ctx := c.Request.Context()
		bucket := deps.bucket()

		// Resolve storage path; try .csv first, then .xlsx.
		storagePath := ingest.RawObjectPath(orgId, uploadId, ingest.ExtCSV)
		ext := ingest.ExtCSV
		if hasCsv, _ := deps.store.Exists(ctx, bucket, storagePath); !hasCsv {
			xlsxPath := ingest.RawObjectPath(orgId, uploadId, ingest.ExtXLSX)
			hasXlsx, _ := deps.store.Exists(ctx, bucket, xlsxPath)
			if !hasXlsx {
				run.ErrorCode = "NOT_FOUND"
				failJSON(c, http.StatusNotFound, "NOT_FOUND", "Upload not found.")
				return
			}
			storagePath, ext = xlsxPath, ingest.ExtXLSX
		}

		data, err := deps.store.Download(ctx, bucket, storagePath)
		if errors.Is(err, ingest.ErrObjectNotFound) {
			run.ErrorCode = "NOT_FOUND"
			failJSON(c, http.StatusNotFound, "NOT_FOUND", "Upload not found.")
			return
		}
		if err != nil {
			config.LogError(logger, "validate.go", "validateHandler", "storage download", storagePath, err)
			run.ErrorCode = "INTERNAL"
			failJSON(c, http.StatusInternalServerError, "INTERNAL", "storage download failed")
			return
		}
		run.StoragePath = storagePath
		run.FileSizeBytes = int64(len(data))

		text, err := ingest.Decode(data, ext)
		if err != nil {
			run.ErrorCode = "FMT_UNREADABLE_XLSX"
			failJSON(c, http.StatusUnprocessableEntity, "FMT_UNREADABLE_XLSX", "Could not parse the spreadsheet; please re-export and upload again.")
			return
		}

		headerCheck := ingest.CheckHeaders(ingest.HeaderTokens(text))

		refs := loadReferenceSetsCached(ctx, deps, orgId)

		var rows ingest.RowScanResult
		if headerCheck.Status == ingest.StatusPass {
			rows = ingest.ScanRows(text, headerCheck.NormalizedHeaders, orgId, refs)
		} else {
			rows = ingest.SkippedScan("Header check failed")
		}

		payload := gin.H{
			"uploadId":    uploadId,
			"orgId":       orgId,
			"storagePath": storagePath,
			"byteLength":  len(data),
			"validation": gin.H{
				"headers": headerCheck,
				"rows":    rows,
			},
			"issues": ingest.Summarize(headerCheck, rows),
		}

		if headerCheck.Status == ingest.StatusFail || rows.Status == ingest.StatusFail {
			run.ErrorCode = "VALIDATION_FAILED"
			c.JSON(http.StatusOK, gin.H{
				"ok":    false,
				"error": apiError{Code: "VALIDATION_FAILED", Message: "Validation found hard errors; see validation detail."},
				"data":  payload,
			})
			return
		}

		run.Status = models.IngestRunStatusOk
		okJSON(c, payload)
	}
}

// loadReferenceSetsCached keeps per-org reference sets in Redis for a few
// minutes; reference lists change rarely and every validate re-reads them.
func loadReferenceSetsCached(ctx context.Context, deps apiDeps, orgId string) ingest.ReferenceSets {
	cacheKey := refSetsCacheKey(orgId)
	var refs ingest.ReferenceSets
	if found, err := config.GetRedisObject(cacheKey, &refs); err == nil && found {
		return refs
	}
	refs = ingest.LoadReferenceSets(ctx, deps.store, deps.bucket(), orgId)
	_ = config.SetRedisObject(cacheKey, refs, refSetsCacheTTL)
	return refs
}
