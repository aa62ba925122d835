package main

import (
	"net/http"

	"bitbucket.org/mmdatafocus/ingest_backend/models"
	"github.com/gin-gonic/gin"
)

// ingestRunsHandler lists the most recent pipeline telemetry rows for the
// operations dashboard.
func ingestRunsHandler(deps apiDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var runs []models.IngestRun
		if err := deps.db().WithContext(c.Request.Context()).
			Order("created_at DESC").
			Limit(25).
			Find(&runs).Error; err != nil {
			failJSON(c, http.StatusInternalServerError, "QUERY_FAILED", err.Error())
			return
		}
		okJSON(c, runs)
	}
}
