package models

import "time"

type PromotionStatus string

const (
	PromotionStatusRunning   PromotionStatus = "running"
	PromotionStatusSucceeded PromotionStatus = "succeeded"
	PromotionStatusFailed    PromotionStatus = "failed"
)

// PromotionJob tracks one promotion per upload. upload_id is the natural
// idempotency key: re-promotion upserts the same row and restarts the lifecycle.
// Terminal states are only left by a fresh promotion attempt.
type PromotionJob struct {
	ID             int             `gorm:"primary_key" json:"jobId"`
	OrgId          string          `gorm:"size:64;not null;index" json:"orgId"`
	UploadId       string          `gorm:"size:64;not null;index:uniq_promotion_upload,unique" json:"uploadId"`
	SourcePath     string          `gorm:"size:255;not null" json:"sourcePath"`
	Status         PromotionStatus `gorm:"size:20;not null;index" json:"status"`
	RowsTotal      int             `json:"rowsTotal"`
	RowsWritten    int             `json:"rowsWritten"`
	InvalidCount   int             `json:"invalidCount"`
	WarnCount      int             `json:"warnCount"`
	StartedAt      time.Time       `json:"startedAt"`
	FinishedAt     *time.Time      `json:"finishedAt"`
	ErrorMessage   *string         `gorm:"type:text" json:"errorMessage"`
	NormalizedPath *string         `gorm:"size:255" json:"normalizedPath"`
	ArchiveOk      bool            `json:"archiveOk"`
	ArchiveError   *string         `gorm:"type:text" json:"archiveError"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (PromotionJob) TableName() string {
	return "ingest_promotions"
}
