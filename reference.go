package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/ingest_backend/config"
	"bitbucket.org/mmdatafocus/ingest_backend/ingest"
	"github.com/gin-gonic/gin"
)

var referenceEntityFiles = map[string]string{
	"departments": "dept_ids",
	"entities":    "entity_ids",
	"accounts":    "account_codes",
}

// referenceHandler serves the per-org reference allow-lists backing the soft
// referential checks. A missing list is an empty result with a warning, never
// an error; the scanner treats absent lists as "checks skipped".
func referenceHandler(deps apiDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		entity := c.Param("entity")
		fileName, supported := referenceEntityFiles[entity]
		if !supported {
			failJSON(c, http.StatusBadRequest, "BAD_REQUEST", "unsupported reference entity; use departments, entities or accounts")
			return
		}

		orgId := resolveOrgId(c)
		if orgId == "" {
			failJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing org (x-org-id header or bs_org_id cookie)")
			return
		}

		// refresh=1 drops the cached reference sets so the next validate
		// re-reads newly uploaded lists instead of waiting out the TTL.
		if v := c.Query("refresh"); v == "1" || strings.EqualFold(v, "true") {
			if err := config.RemoveRedisKey(refSetsCacheKey(orgId)); err != nil {
				config.LogError(config.GetLogger(), "reference.go", "referenceHandler", "cache invalidate", orgId, err)
			}
		}

		path := ingest.ReferenceObjectPath(orgId, fileName)
		data, err := deps.store.Download(c.Request.Context(), deps.bucket(), path)
		if errors.Is(err, ingest.ErrObjectNotFound) {
			c.JSON(http.StatusOK, gin.H{
				"ok":   true,
				"data": []string{},
				"warnings": []apiWarning{{
					Code:    "REFERENCE_MISSING",
					Message: "No reference list uploaded for this entity",
				}},
				"meta": gin.H{"orgId": orgId, "path": path, "count": 0},
			})
			return
		}
		if err != nil {
			config.LogError(config.GetLogger(), "reference.go", "referenceHandler", "storage download", path, err)
			failJSON(c, http.StatusInternalServerError, "INTERNAL", "reference download failed")
			return
		}

		var values []string
		if err := json.Unmarshal(data, &values); err != nil {
			failJSON(c, http.StatusInternalServerError, "REFERENCE_MALFORMED", "reference list is not a JSON array of strings")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"ok":       true,
			"data":     values,
			"warnings": []apiWarning{},
			"meta":     gin.H{"orgId": orgId, "path": path, "count": len(values)},
		})
	}
}
