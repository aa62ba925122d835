package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/ingest_backend/config"
	"bitbucket.org/mmdatafocus/ingest_backend/ingest"
	"bitbucket.org/mmdatafocus/ingest_backend/models"
	"bitbucket.org/mmdatafocus/ingest_backend/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func statusForStepCode(code string) int {
	switch code {
	case ingest.CodeNotFound:
		return http.StatusNotFound
	case ingest.CodeEmpty, ingest.CodeBadHeader:
		return http.StatusBadRequest
	case ingest.CodePromotionInProgress:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// promoteHandler runs the full promotion orchestrator for one uploadId and
// returns the final job row, or the step-specific error code when a step fails.
func promoteHandler(deps apiDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		logger := config.GetLogger()
		run := models.IngestRun{Route: "/api/promotion", Mode: "sync", Status: models.IngestRunStatusFail}
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

		promoter := &ingest.Promoter{
			DB:     deps.db(),
			Store:  deps.store,
			Bucket: deps.bucket(),
			Logger: logger,
			Locker: deps.locker(),
		}

		job, stepErr := promoter.Promote(c.Request.Context(), orgId, uploadId)
		if stepErr != nil {
			run.ErrorCode = stepErr.Code
			if job != nil {
				run.StoragePath = job.SourcePath
			}
			failJSON(c, statusForStepCode(stepErr.Code), stepErr.Code, stepErr.Message)
			return
		}

		run.Status = models.IngestRunStatusOk
		run.StoragePath = job.SourcePath
		okJSON(c, job)
	}
}

// promotionStatusHandler returns the current PromotionJob snapshot verbatim.
func promotionStatusHandler(deps apiDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		uploadId := strings.TrimSpace(c.Query("uploadId"))
		if uploadId == "" {
			failJSON(c, http.StatusBadRequest, "BAD_REQUEST", "uploadId is required")
			return
		}

		promoter := &ingest.Promoter{DB: deps.db()}
		job, err := promoter.JobStatus(c.Request.Context(), uploadId)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			failJSON(c, http.StatusNotFound, "NOT_FOUND", "no promotion job for this uploadId")
			return
		}
		if err != nil {
			config.LogError(config.GetLogger(), "promotion.go", "promotionStatusHandler", "job lookup", uploadId, err)
			failJSON(c, http.StatusInternalServerError, "INTERNAL", "job lookup failed")
			return
		}
		okJSON(c, job)
	}
}

// promotionRowsHandler previews promoted ledger rows for one upload, ordered
// by their source row number.
func promotionRowsHandler(deps apiDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		uploadId := strings.TrimSpace(c.Query("uploadId"))
		if uploadId == "" {
			failJSON(c, http.StatusBadRequest, "BAD_REQUEST", "uploadId is required")
			return
		}
		orgId := resolveOrgId(c)
		if orgId == "" {
			failJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing org (x-org-id header or bs_org_id cookie)")
			return
		}

		limit := 50
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}
		if limit < 1 {
			limit = 1
		}
		if limit > 200 {
			limit = 200
		}

		db := deps.db()
		var total int64
		if err := db.WithContext(c.Request.Context()).Model(&models.LedgerRow{}).
			Where("org_id = ? AND upload_id = ?", orgId, uploadId).
			Count(&total).Error; err != nil {
			failJSON(c, http.StatusInternalServerError, "QUERY_FAILED", err.Error())
			return
		}

		var rows []models.LedgerRow
		if err := db.WithContext(c.Request.Context()).
			Where("org_id = ? AND upload_id = ?", orgId, uploadId).
			Order("row_num ASC").
			Limit(limit).
			Find(&rows).Error; err != nil {
			failJSON(c, http.StatusInternalServerError, "QUERY_FAILED", err.Error())
			return
		}

		okJSON(c, gin.H{
			"orgId":    orgId,
			"uploadId": uploadId,
			"total":    total,
			"shown":    len(rows),
			"rows":     rows,
		})
	}
}
