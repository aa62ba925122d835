package ingest

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/ingest_backend/models"
	"github.com/bsm/redislock"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Promotion step error codes. Each maps to one failure point of the state
// machine and is persisted on the job row before being returned.
const (
	CodeNotFound            = "NOT_FOUND"
	CodeEmpty               = "EMPTY"
	CodeBadHeader           = "BAD_HEADER"
	CodeJobUpsertFailed     = "JOB_UPSERT_FAILED"
	CodeDeleteFailed        = "DELETE_FAILED"
	CodeInsertFailed        = "INSERT_FAILED"
	CodeVerifyFailed        = "VERIFY_FAILED"
	CodeRowMismatch         = "ROW_MISMATCH"
	CodeJobUpdateFailed     = "JOB_UPDATE_FAILED"
	CodePromotionInProgress = "PROMOTION_IN_PROGRESS"
	CodeInternal            = "INTERNAL"
)

// InsertChunkSize bounds the size of a single ledger insert statement.
// Chunking is for payload bounding, not concurrency.
const InsertChunkSize = 1000

const promotionLeaseTTL = 2 * time.Minute

// StepFailure is the explicit per-step failure result threaded through the
// orchestrator instead of exceptions-as-control-flow.
type StepFailure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func failStep(code, format string, args ...any) *StepFailure {
	return &StepFailure{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Promoter drives the idempotent load of a validated upload into the ledger.
// All collaborators are injected; nothing here reaches for globals.
type Promoter struct {
	DB     *gorm.DB
	Store  ObjectStore
	Bucket string
	Logger *logrus.Logger
	Locker *redislock.Client // optional; lease is skipped when Redis is down
}

var (
	monthCoercePattern  = regexp.MustCompile(`^(\d{4})-(\d{2})(?:-\d{2})?$`)
	amountCoercePattern = regexp.MustCompile(`^-?\d+(?:\.\d+)?$`)
)

// coerceMonth accepts YYYY-MM or YYYY-MM-DD and normalizes to first-of-month.
func coerceMonth(v string) (string, bool) {
	m := monthCoercePattern.FindStringSubmatch(v)
	if m == nil {
		return "", false
	}
	return m[1] + "-" + m[2] + "-01", true
}

// coerceAmount normalizes a numeric string to a fixed 2-decimal string.
func coerceAmount(v string) (string, bool) {
	if !amountCoercePattern.MatchString(v) {
		return "", false
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return "", false
	}
	return d.Round(2).StringFixed(2), true
}

type deriveStats struct {
	RowsTotal    int
	InvalidCount int
}

// deriveLedgerRows re-parses the stored CSV independently of the advisory
// Validate path. Rows failing coercion are counted and excluded; promotion
// proceeds with the valid subset rather than aborting wholesale.
func deriveLedgerRows(csvText, orgId, uploadId string) ([]models.LedgerRow, deriveStats, *StepFailure) {
	var stats deriveStats

	lines := SplitLines(csvText)
	headerIndex := headerLineIndex(lines)
	if headerIndex == -1 {
		return nil, stats, failStep(CodeEmpty, "CSV appears empty")
	}

	// Duplicate headers resolve to the last occurrence.
	rawTokens := strings.Split(lines[headerIndex], ",")
	indexOf := make(map[string]int, len(rawTokens))
	for i, t := range rawTokens {
		indexOf[NormalizeHeaderToken(t)] = i
	}

	missing := []string{}
	for _, c := range RequiredHeaders {
		if _, ok := indexOf[c]; !ok {
			missing = append(missing, c)
		}
	}
	_, hasDept := indexOf["dept_id"]
	_, hasEntity := indexOf["entity_id"]
	if len(missing) > 0 || (!hasDept && !hasEntity) {
		return nil, stats, failStep(CodeBadHeader,
			"required columns missing or neither dept_id nor entity_id present (missing: %s)", strings.Join(missing, ","))
	}

	cell := func(cols []string, field string) string {
		idx, ok := indexOf[field]
		if !ok || idx < 0 || idx >= len(cols) {
			return ""
		}
		return strings.TrimSpace(cols[idx])
	}

	var rows []models.LedgerRow
	dataLines := lines[headerIndex+1:]
	for i, raw := range dataLines {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		stats.RowsTotal++

		cols := strings.Split(raw, ",")

		orgCell := cell(cols, "org_id")
		scenario := cell(cols, "scenario")
		account := cell(cols, "account_code")
		if orgCell == "" || orgCell != orgId || scenario == "" || account == "" {
			stats.InvalidCount++
			continue
		}
		month, ok := coerceMonth(cell(cols, "month"))
		if !ok {
			stats.InvalidCount++
			continue
		}
		amount, ok := coerceAmount(cell(cols, "amount"))
		if !ok {
			stats.InvalidCount++
			continue
		}

		var deptId, entityId *string
		if v := cell(cols, "dept_id"); v != "" {
			deptId = &v
		}
		if v := cell(cols, "entity_id"); v != "" {
			entityId = &v
		}

		rows = append(rows, models.LedgerRow{
			OrgId:       orgId,
			UploadId:    uploadId,
			RowNum:      headerIndex + 1 + i + 1, // 1-based file row number
			Scenario:    scenario,
			Month:       month,
			DeptId:      deptId,
			EntityId:    entityId,
			AccountCode: account,
			Amount:      amount,
		})
	}

	return rows, stats, nil
}

// Promote runs the full state machine for (orgId, uploadId):
// download → re-derive → job running → idempotent clear → chunked insert →
// recount verification → best-effort archival → finalize. Every failure path
// persists a terminal job status before returning.
func (p *Promoter) Promote(ctx context.Context, orgId, uploadId string) (*models.PromotionJob, *StepFailure) {
	lock, sf := p.acquireLease(ctx, uploadId)
	if sf != nil {
		return nil, sf
	}
	if lock != nil {
		defer func() {
			if err := lock.Release(ctx); err != nil && p.Logger != nil {
				p.Logger.WithFields(logrus.Fields{"upload_id": uploadId}).Warnf("failed to release promotion lease: %v", err)
			}
		}()
	}

	sourcePath := RawObjectPath(orgId, uploadId, ExtCSV)
	data, err := p.Store.Download(ctx, p.Bucket, sourcePath)
	if errors.Is(err, ErrObjectNotFound) {
		return nil, failStep(CodeNotFound, "upload not found at %s", sourcePath)
	}
	if err != nil {
		return nil, failStep(CodeInternal, "storage download failed: %v", err)
	}

	rows, stats, sf := deriveLedgerRows(string(data), orgId, uploadId)
	if sf != nil {
		return nil, sf
	}

	// Upsert-by-uploadId: a fresh attempt fully supersedes the prior one.
	job := models.PromotionJob{
		OrgId:        orgId,
		UploadId:     uploadId,
		SourcePath:   sourcePath,
		Status:       models.PromotionStatusRunning,
		RowsTotal:    stats.RowsTotal,
		InvalidCount: stats.InvalidCount,
		StartedAt:    time.Now().UTC(),
	}
	err = p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "upload_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"org_id", "source_path", "status", "rows_total", "rows_written",
			"invalid_count", "warn_count", "started_at", "finished_at",
			"error_message", "normalized_path", "archive_ok", "archive_error",
		}),
	}).Create(&job).Error
	if err == nil {
		// Conflict updates do not report the surviving primary key; reload.
		err = p.DB.WithContext(ctx).Where("upload_id = ?", uploadId).Take(&job).Error
	}
	if err != nil {
		return nil, failStep(CodeJobUpsertFailed, "job upsert failed: %v", err)
	}

	// Idempotent clear: guarantees a retry starts clean and a shrinking
	// re-upload leaves no orphaned rows.
	if err := p.DB.WithContext(ctx).
		Where("org_id = ? AND upload_id = ?", orgId, uploadId).
		Delete(&models.LedgerRow{}).Error; err != nil {
		p.markFailed(ctx, &job, 0, fmt.Sprintf("Delete prior rows failed: %v", err))
		return &job, failStep(CodeDeleteFailed, "delete prior rows failed: %v", err)
	}

	written := 0
	for start := 0; start < len(rows); start += InsertChunkSize {
		end := min(start+InsertChunkSize, len(rows))
		chunk := rows[start:end]
		if err := p.DB.WithContext(ctx).Create(&chunk).Error; err != nil {
			p.markFailed(ctx, &job, written, fmt.Sprintf("Insert failed: %v", err))
			return &job, failStep(CodeInsertFailed, "insert failed: %v", err)
		}
		written += len(chunk)
	}

	// Independent recount guards against silent backend write discrepancies.
	var verified int64
	if err := p.DB.WithContext(ctx).Model(&models.LedgerRow{}).
		Where("org_id = ? AND upload_id = ?", orgId, uploadId).
		Count(&verified).Error; err != nil {
		p.markFailed(ctx, &job, written, fmt.Sprintf("Verification count failed: %v", err))
		return &job, failStep(CodeVerifyFailed, "verification count failed: %v", err)
	}
	if int(verified) != written {
		msg := fmt.Sprintf("Row mismatch: inserted=%d, verified=%d", written, verified)
		p.markFailed(ctx, &job, written, msg)
		return &job, failStep(CodeRowMismatch, "inserted %d rows, but verified %d rows in ledger", written, verified)
	}

	// Archival is an optimization, not a correctness requirement.
	normalizedPath := NormalizedObjectPath(orgId, uploadId)
	archiveOk := true
	var archiveError *string
	if err := p.archive(ctx, sourcePath, normalizedPath, data); err != nil {
		archiveOk = false
		msg := err.Error()
		archiveError = &msg
		if p.Logger != nil {
			p.Logger.WithFields(logrus.Fields{"upload_id": uploadId, "path": normalizedPath}).Warnf("archival failed: %v", err)
		}
	}

	finishedAt := time.Now().UTC()
	if err := p.DB.WithContext(ctx).Model(&models.PromotionJob{}).
		Where("upload_id = ?", uploadId).
		Updates(map[string]interface{}{
			"status":          models.PromotionStatusSucceeded,
			"rows_total":      stats.RowsTotal,
			"rows_written":    int(verified),
			"invalid_count":   stats.InvalidCount,
			"finished_at":     finishedAt,
			"normalized_path": normalizedPath,
			"archive_ok":      archiveOk,
			"archive_error":   archiveError,
		}).Error; err != nil {
		return &job, failStep(CodeJobUpdateFailed, "final job update failed: %v", err)
	}

	if err := p.DB.WithContext(ctx).Where("upload_id = ?", uploadId).Take(&job).Error; err != nil {
		return &job, failStep(CodeJobUpdateFailed, "reload job failed: %v", err)
	}
	return &job, nil
}

// JobStatus returns the current PromotionJob row verbatim.
func (p *Promoter) JobStatus(ctx context.Context, uploadId string) (*models.PromotionJob, error) {
	var job models.PromotionJob
	if err := p.DB.WithContext(ctx).Where("upload_id = ?", uploadId).Take(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// acquireLease obtains a per-uploadId lock before the delete+insert sequence
// so two concurrent promotions of the same upload cannot interleave. When
// Redis is unavailable the lease is skipped with a warning: sequential-retry
// idempotence still holds without it.
func (p *Promoter) acquireLease(ctx context.Context, uploadId string) (*redislock.Lock, *StepFailure) {
	if p.Locker == nil {
		if p.Logger != nil {
			p.Logger.WithFields(logrus.Fields{"upload_id": uploadId}).Warn("redis lock not ready; proceeding without promotion lease")
		}
		return nil, nil
	}
	lock, err := p.Locker.Obtain(ctx, "promotion:"+uploadId, promotionLeaseTTL, nil)
	if err == redislock.ErrNotObtained {
		return nil, failStep(CodePromotionInProgress, "a promotion for upload %s is already running", uploadId)
	}
	if err != nil {
		if p.Logger != nil {
			p.Logger.WithFields(logrus.Fields{"upload_id": uploadId}).Warnf("error obtaining promotion lease; proceeding without it: %v", err)
		}
		return nil, nil
	}
	return lock, nil
}

// archive copies the raw object to its normalized path, falling back to a
// plain re-upload of the bytes we already hold when server-side copy fails.
func (p *Promoter) archive(ctx context.Context, fromPath, toPath string, data []byte) error {
	if err := p.Store.Copy(ctx, p.Bucket, fromPath, toPath); err == nil {
		return nil
	}
	return p.Store.Upload(ctx, p.Bucket, toPath, data, "text/csv")
}

// markFailed records a terminal failed status. Best-effort: the step error it
// accompanies is what the caller reports, so a failure here is only logged.
func (p *Promoter) markFailed(ctx context.Context, job *models.PromotionJob, rowsWritten int, msg string) {
	finishedAt := time.Now().UTC()
	err := p.DB.WithContext(ctx).Model(&models.PromotionJob{}).
		Where("upload_id = ?", job.UploadId).
		Updates(map[string]interface{}{
			"status":        models.PromotionStatusFailed,
			"rows_written":  rowsWritten,
			"finished_at":   finishedAt,
			"error_message": msg,
		}).Error
	if err != nil && p.Logger != nil {
		p.Logger.WithFields(logrus.Fields{"upload_id": job.UploadId}).Errorf("failed to persist failed job status: %v", err)
	}
	job.Status = models.PromotionStatusFailed
	job.RowsWritten = rowsWritten
	job.FinishedAt = &finishedAt
	job.ErrorMessage = &msg
}
