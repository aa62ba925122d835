package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiWarning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func okJSON(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "data": data})
}

func failJSON(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"ok": false, "error": apiError{Code: code, Message: message}})
}

// resolveOrgId prefers the x-org-id header and falls back to the session
// cookie set by the dashboard. Empty means the caller is unidentified.
func resolveOrgId(c *gin.Context) string {
	if org := strings.TrimSpace(c.GetHeader("x-org-id")); org != "" {
		return org
	}
	if cookie, err := c.Cookie("bs_org_id"); err == nil {
		return strings.TrimSpace(cookie)
	}
	return ""
}

// uploadIdFromRequest accepts the uploadId as a query parameter or inside a
// JSON body {"uploadId": "..."}.
func uploadIdFromRequest(c *gin.Context) string {
	if id := strings.TrimSpace(c.Query("uploadId")); id != "" {
		return id
	}
	if strings.Contains(c.GetHeader("Content-Type"), "application/json") {
		var body struct {
			UploadId string `json:"uploadId"`
		}
		if err := c.ShouldBindJSON(&body); err == nil {
			return strings.TrimSpace(body.UploadId)
		}
	}
	return ""
}
