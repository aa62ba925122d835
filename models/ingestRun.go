package models

import (
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type IngestRunStatus string

const (
	IngestRunStatusOk   IngestRunStatus = "ok"
	IngestRunStatusFail IngestRunStatus = "fail"
)

// IngestRun is the fire-and-forget telemetry record written after every
// pipeline invocation.
type IngestRun struct {
	ID            int             `gorm:"primary_key" json:"id"`
	OrgId         string          `gorm:"size:64;index" json:"orgId"`
	UploadId      string          `gorm:"size:64;index" json:"uploadId"`
	Route         string          `gorm:"size:100;not null" json:"route"`
	Status        IngestRunStatus `gorm:"size:10;not null" json:"status"`
	DurationMs    int64           `json:"durationMs"`
	StoragePath   string          `gorm:"size:255" json:"storagePath"`
	FileSizeBytes int64           `json:"fileSizeBytes"`
	Mode          string          `gorm:"size:10" json:"mode"`
	ErrorCode     string          `gorm:"size:50" json:"errorCode"`
	CorrelationId string          `gorm:"size:64" json:"correlationId"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"createdAt"`
}

func (IngestRun) TableName() string {
	return "ingest_runs"
}

// LogPipelineRun persists a telemetry row. It never propagates failure back to
// the caller: telemetry must not break the pipeline. Errors go to the console only.
func LogPipelineRun(db *gorm.DB, logger *logrus.Logger, run IngestRun) {
	defer func() {
		if r := recover(); r != nil && logger != nil {
			logger.WithFields(logrus.Fields{"route": run.Route}).Errorf("telemetry insert panicked: %v", r)
		}
	}()
	if db == nil {
		return
	}
	if err := db.Create(&run).Error; err != nil && logger != nil {
		logger.WithFields(logrus.Fields{
			"route":     run.Route,
			"upload_id": run.UploadId,
		}).Errorf("telemetry insert failed: %v", err)
	}
}
