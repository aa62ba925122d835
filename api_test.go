package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"bitbucket.org/mmdatafocus/ingest_backend/ingest"
	"bitbucket.org/mmdatafocus/ingest_backend/models"
	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testBucket = "test-bucket"

// fakeStore is a minimal in-memory ObjectStore for handler tests.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (f *fakeStore) key(bucket, name string) string { return bucket + "/" + name }

func (f *fakeStore) put(name string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[f.key(testBucket, name)] = data
}

func (f *fakeStore) Download(ctx context.Context, bucket, name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[f.key(bucket, name)]
	if !ok {
		return nil, ingest.ErrObjectNotFound
	}
	return data, nil
}

func (f *fakeStore) Upload(ctx context.Context, bucket, name string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[f.key(bucket, name)] = data
	return nil
}

func (f *fakeStore) Copy(ctx context.Context, bucket, from, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[f.key(bucket, from)]
	if !ok {
		return ingest.ErrObjectNotFound
	}
	f.objects[f.key(bucket, to)] = data
	return nil
}

func (f *fakeStore) Exists(ctx context.Context, bucket, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[f.key(bucket, name)]
	return ok, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *fakeStore, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.PromotionJob{}, &models.LedgerRow{}, &models.IngestRun{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := newFakeStore()
	deps := apiDeps{
		db:     func() *gorm.DB { return db },
		store:  store,
		bucket: func() string { return testBucket },
		locker: func() *redislock.Client { return nil },
	}

	r := gin.New()
	r.Use(correlationMiddleware())
	r.POST("/api/upload", uploadHandler(deps))
	r.POST("/api/validate", validateHandler(deps))
	r.POST("/api/promotion", promoteHandler(deps))
	r.GET("/api/promotion", promotionStatusHandler(deps))
	r.GET("/api/promotion/rows", promotionRowsHandler(deps))
	r.GET("/api/reference/:entity", referenceHandler(deps))
	r.GET("/api/ingest-runs", ingestRunsHandler(deps))
	return r, store, db
}

type envelope struct {
	Ok    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error *apiError       `json:"error"`
}

func doJSON(t *testing.T, r *gin.Engine, method, target, orgId string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if orgId != "" {
		req.Header.Set("x-org-id", orgId)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("bad envelope %q: %v", w.Body.String(), err)
	}
	return w, env
}

const apiHeader = "org_id,scenario,month,dept_id,entity_id,account_code,amount"

func TestUploadHandler(t *testing.T) {
	r, store, _ := newTestRouter(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "ledger.csv")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	csvText := apiHeader + "\norg-1,actuals,2025-01,D1,,4000,1\n"
	if _, err := fw.Write([]byte(csvText)); err != nil {
		t.Fatalf("write: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("x-org-id", "org-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("envelope: %v", err)
	}
	var data struct {
		UploadId    string `json:"uploadId"`
		StoragePath string `json:"storagePath"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("data: %v", err)
	}
	if data.UploadId == "" {
		t.Fatalf("uploadId missing: %s", w.Body.String())
	}
	if want := ingest.RawObjectPath("org-1", data.UploadId, ingest.ExtCSV); data.StoragePath != want {
		t.Fatalf("storagePath = %s, want %s", data.StoragePath, want)
	}
	if stored, err := store.Download(context.Background(), testBucket, data.StoragePath); err != nil || string(stored) != csvText {
		t.Fatalf("stored object mismatch: %v", err)
	}
}

func TestUploadHandlerRejectsUnknownExtension(t *testing.T) {
	r, _, _ := newTestRouter(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("file", "ledger.pdf")
	fw.Write([]byte("%PDF"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("x-org-id", "org-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestValidateHandlerPass(t *testing.T) {
	r, store, _ := newTestRouter(t)
	store.put(ingest.RawObjectPath("org-1", "up-1", ingest.ExtCSV),
		[]byte(apiHeader+"\norg-1,actuals,2025-01,D1,,4000,1\n"))

	w, env := doJSON(t, r, http.MethodPost, "/api/validate?uploadId=up-1", "org-1")
	if w.Code != http.StatusOK || !env.Ok {
		t.Fatalf("status = %d ok = %v body = %s", w.Code, env.Ok, w.Body.String())
	}

	var data struct {
		Validation struct {
			Headers ingest.HeaderCheckResult `json:"headers"`
			Rows    ingest.RowScanResult     `json:"rows"`
		} `json:"validation"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("data: %v", err)
	}
	if data.Validation.Headers.Status != ingest.StatusPass || data.Validation.Rows.Status != ingest.StatusPass {
		t.Fatalf("validation = %+v", data.Validation)
	}
}

func TestValidateHandlerHardFailIs200(t *testing.T) {
	r, store, _ := newTestRouter(t)
	store.put(ingest.RawObjectPath("org-1", "up-1", ingest.ExtCSV),
		[]byte("org_id,scenario\norg-1,actuals\n"))

	w, env := doJSON(t, r, http.MethodPost, "/api/validate?uploadId=up-1", "org-1")
	if w.Code != http.StatusOK {
		t.Fatalf("hard validation failures are a 200, got %d", w.Code)
	}
	if env.Ok || env.Error == nil || env.Error.Code != "VALIDATION_FAILED" {
		t.Fatalf("envelope = %s", w.Body.String())
	}
	if len(env.Data) == 0 {
		t.Fatalf("failure envelope must still carry validation detail")
	}
}

func TestValidateHandlerRowScanSkippedOnHeaderFail(t *testing.T) {
	r, store, _ := newTestRouter(t)
	store.put(ingest.RawObjectPath("org-1", "up-1", ingest.ExtCSV),
		[]byte("org_id,scenario\norg-1,actuals\n"))

	_, env := doJSON(t, r, http.MethodPost, "/api/validate?uploadId=up-1", "org-1")
	var data struct {
		Validation struct {
			Rows ingest.RowScanResult `json:"rows"`
		} `json:"validation"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("data: %v", err)
	}
	if data.Validation.Rows.Status != ingest.StatusSkipped {
		t.Fatalf("row scan must be skipped after a header fail: %+v", data.Validation.Rows)
	}
}

func TestValidateHandlerNotFound(t *testing.T) {
	r, _, _ := newTestRouter(t)
	w, env := doJSON(t, r, http.MethodPost, "/api/validate?uploadId=ghost", "org-1")
	if w.Code != http.StatusNotFound || env.Error == nil || env.Error.Code != "NOT_FOUND" {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
}

func TestValidateHandlerMissingOrg(t *testing.T) {
	r, _, _ := newTestRouter(t)
	w, env := doJSON(t, r, http.MethodPost, "/api/validate?uploadId=up-1", "")
	if w.Code != http.StatusUnauthorized || env.Error == nil || env.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
}

func TestPromoteThenStatusAndRows(t *testing.T) {
	r, store, db := newTestRouter(t)
	store.put(ingest.RawObjectPath("org-1", "up-1", ingest.ExtCSV),
		[]byte(apiHeader+"\norg-1,actuals,2025-01,D1,,4000,10.5\norg-1,actuals,2025-02,D2,,4010,2\n"))

	w, env := doJSON(t, r, http.MethodPost, "/api/promotion?uploadId=up-1", "org-1")
	if w.Code != http.StatusOK || !env.Ok {
		t.Fatalf("promotion: status = %d body = %s", w.Code, w.Body.String())
	}
	var job models.PromotionJob
	if err := json.Unmarshal(env.Data, &job); err != nil {
		t.Fatalf("job: %v", err)
	}
	if job.Status != models.PromotionStatusSucceeded || job.RowsWritten != 2 {
		t.Fatalf("job = %+v", job)
	}

	w, env = doJSON(t, r, http.MethodGet, "/api/promotion?uploadId=up-1", "org-1")
	if w.Code != http.StatusOK || !env.Ok {
		t.Fatalf("status endpoint: %d %s", w.Code, w.Body.String())
	}

	w, env = doJSON(t, r, http.MethodGet, "/api/promotion/rows?uploadId=up-1&limit=1", "org-1")
	if w.Code != http.StatusOK {
		t.Fatalf("rows endpoint: %d %s", w.Code, w.Body.String())
	}
	var preview struct {
		Total int                `json:"total"`
		Shown int                `json:"shown"`
		Rows  []models.LedgerRow `json:"rows"`
	}
	if err := json.Unmarshal(env.Data, &preview); err != nil {
		t.Fatalf("preview: %v", err)
	}
	if preview.Total != 2 || preview.Shown != 1 || len(preview.Rows) != 1 {
		t.Fatalf("preview = %+v", preview)
	}
	if preview.Rows[0].Amount != "10.50" {
		t.Fatalf("amount = %s", preview.Rows[0].Amount)
	}

	// Telemetry rows were recorded for the promotion call.
	var runCount int64
	if err := db.Model(&models.IngestRun{}).Where("route = ?", "/api/promotion").Count(&runCount).Error; err != nil {
		t.Fatalf("count runs: %v", err)
	}
	if runCount != 1 {
		t.Fatalf("ingest_runs for promotion = %d, want 1", runCount)
	}
}

func TestPromotionStatusUnknownUpload(t *testing.T) {
	r, _, _ := newTestRouter(t)
	w, env := doJSON(t, r, http.MethodGet, "/api/promotion?uploadId=ghost", "org-1")
	if w.Code != http.StatusNotFound || env.Error == nil || env.Error.Code != "NOT_FOUND" {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
}

func TestReferenceHandler(t *testing.T) {
	r, store, _ := newTestRouter(t)
	store.put(ingest.ReferenceObjectPath("org-1", "dept_ids"), []byte(`["D1","D2"]`))

	w, env := doJSON(t, r, http.MethodGet, "/api/reference/departments", "org-1")
	if w.Code != http.StatusOK || !env.Ok {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	var values []string
	if err := json.Unmarshal(env.Data, &values); err != nil {
		t.Fatalf("data: %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("values = %v", values)
	}
}

func TestReferenceHandlerMissingListIsOkWithWarning(t *testing.T) {
	r, _, _ := newTestRouter(t)
	w, _ := doJSON(t, r, http.MethodGet, "/api/reference/accounts", "org-1")
	if w.Code != http.StatusOK {
		t.Fatalf("missing list must be 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "REFERENCE_MISSING") {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestReferenceHandlerUnknownEntity(t *testing.T) {
	r, _, _ := newTestRouter(t)
	w, _ := doJSON(t, r, http.MethodGet, "/api/reference/vendors", "org-1")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestCorrelationIdPropagation(t *testing.T) {
	r, store, db := newTestRouter(t)
	store.put(ingest.RawObjectPath("org-1", "up-1", ingest.ExtCSV),
		[]byte(apiHeader+"\norg-1,actuals,2025-01,D1,,4000,1\n"))

	req := httptest.NewRequest(http.MethodPost, "/api/validate?uploadId=up-1", nil)
	req.Header.Set("x-org-id", "org-1")
	req.Header.Set("x-correlation-id", "cid-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("x-correlation-id"); got != "cid-123" {
		t.Fatalf("response correlation header = %q", got)
	}

	var run models.IngestRun
	if err := db.Where("route = ?", "/api/validate").Take(&run).Error; err != nil {
		t.Fatalf("take run: %v", err)
	}
	if run.CorrelationId != "cid-123" {
		t.Fatalf("telemetry correlationId = %q, want cid-123", run.CorrelationId)
	}
}

func TestCorrelationIdGeneratedWhenAbsent(t *testing.T) {
	r, _, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/ingest-runs", nil)
	req.Header.Set("x-org-id", "org-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Header().Get("x-correlation-id") == "" {
		t.Fatalf("a correlation id must be generated when the client sends none")
	}
}

func TestReferenceHandlerRefreshParam(t *testing.T) {
	r, store, _ := newTestRouter(t)
	store.put(ingest.ReferenceObjectPath("org-1", "dept_ids"), []byte(`["D1"]`))

	// Cache invalidation is a no-op without Redis; the request must still serve.
	w, env := doJSON(t, r, http.MethodGet, "/api/reference/departments?refresh=1", "org-1")
	if w.Code != http.StatusOK || !env.Ok {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
}

func TestIngestRunsEndpoint(t *testing.T) {
	r, _, db := newTestRouter(t)
	for i := 0; i < 3; i++ {
		db.Create(&models.IngestRun{Route: "/api/validate", Status: models.IngestRunStatusOk, Mode: "sync"})
	}

	w, env := doJSON(t, r, http.MethodGet, "/api/ingest-runs", "org-1")
	if w.Code != http.StatusOK || !env.Ok {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	var runs []models.IngestRun
	if err := json.Unmarshal(env.Data, &runs); err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("runs = %d", len(runs))
	}
}
