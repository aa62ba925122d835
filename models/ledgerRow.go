package models

import "time"

// LedgerRow is one normalized fact row, keyed by (org_id, upload_id, row_num).
// Written exclusively by the promotion orchestrator: every re-promotion deletes
// and rewrites the whole set for its upload_id, so no stale rows survive a
// shrinking re-upload.
type LedgerRow struct {
	ID          int       `gorm:"primary_key" json:"-"`
	OrgId       string    `gorm:"size:64;not null;index:uniq_ledger_row,unique" json:"org_id"`
	UploadId    string    `gorm:"size:64;not null;index:uniq_ledger_row,unique" json:"upload_id"`
	RowNum      int       `gorm:"not null;index:uniq_ledger_row,unique" json:"row_num"`
	Scenario    string    `gorm:"size:100;not null" json:"scenario"`
	Month       string    `gorm:"size:10;not null" json:"month"` // YYYY-MM-01
	DeptId      *string   `gorm:"size:64" json:"dept_id"`
	EntityId    *string   `gorm:"size:64" json:"entity_id"`
	AccountCode string    `gorm:"size:64;not null" json:"account_code"`
	Amount      string    `gorm:"type:decimal(18,2);not null" json:"amount"` // fixed 2-decimal string
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"-"`
}

func (LedgerRow) TableName() string {
	return "fact_ledger_normalized"
}
