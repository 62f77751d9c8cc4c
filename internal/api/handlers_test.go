package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	domain "recordbridge/internal/domain/pipeline"
	"recordbridge/internal/infrastructure/persistence/sqlite/model"
	sqliterepo "recordbridge/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "recordbridge/internal/infrastructure/persistence/sqlite/uow"
	"recordbridge/internal/usecase/pipeline"
)

var testDBCounter atomic.Int64

func setupAPI(t *testing.T) (*echo.Echo, *pipeline.Service) {
	t.Helper()

	dsn := fmt.Sprintf("file:api_test_%d?mode=memory&cache=shared", testDBCounter.Add(1))
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.FieldConfiguration{},
		&model.ProcessingJob{},
		&model.ReviewItem{},
		&model.TransferRecord{},
		&model.TargetRecord{},
	))

	svc := pipeline.NewService(
		sqliterepo.NewConfigRepository(db),
		sqliterepo.NewJobRepository(db),
		sqliterepo.NewReviewRepository(db),
		sqliterepo.NewTransferRepository(db),
		sqliterepo.NewRecordStore(db),
		sqliteuow.NewUnitOfWork(db),
		pipeline.Options{TransferRetryBackoff: time.Millisecond},
	)

	dispatcher := pipeline.NewDispatcher(svc, 1)
	dispatcher.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		dispatcher.Shutdown(ctx)
	})

	e := echo.New()
	RegisterRoutes(e, NewHandler(svc, dispatcher))
	return e, svc
}

func doRequest(e *echo.Echo, method string, target string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func createBaptismConfig(t *testing.T, svc *pipeline.Service) {
	t.Helper()
	_, err := svc.CreateFieldConfig(context.Background(), pipeline.CreateFieldConfigInput{
		OrganizationID: 1,
		RecordType:     "baptism",
		Rules: []domain.FieldRule{
			{OCRLabel: "Name", TargetField: "person_name", Required: true},
			{OCRLabel: "Date of Baptism", TargetField: "baptism_date", Required: true, ValidationPattern: `^\d{4}-\d{2}-\d{2}$`},
		},
		Settings: domain.ConfigSettings{AutoInsertThreshold: 85, ConfidenceWarningThreshold: 60},
	})
	require.NoError(t, err)
}

func submitForReview(t *testing.T, svc *pipeline.Service, sourceJobID string) uint64 {
	t.Helper()
	_, err := svc.SubmitExtraction(context.Background(), pipeline.SubmitExtractionInput{
		OrganizationID: 1,
		RecordType:     "baptism",
		SourceJobID:    sourceJobID,
		Confidence:     45,
		Entities: []pipeline.EntityInput{
			{Label: "Name", Value: "Karl Huber", Confidence: 45},
			{Label: "Date of Baptism", Value: "1893-02-01", Confidence: 40},
		},
	})
	require.NoError(t, err)

	queue, err := svc.ListReviewQueue(context.Background(), 0)
	require.NoError(t, err)
	require.NotEmpty(t, queue)
	return queue[len(queue)-1].ReviewItemID
}

func TestHandleHealth(t *testing.T) {
	e, _ := setupAPI(t)

	rec := doRequest(e, http.MethodGet, "/api/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleSubmitExtractionQueues(t *testing.T) {
	e, svc := setupAPI(t)
	createBaptismConfig(t, svc)

	rec := doRequest(e, http.MethodPost, "/api/extractions", `{
		"organization_id": 1,
		"record_type": "baptism",
		"source_job_id": "api-job-1",
		"confidence": 91,
		"entities": [
			{"label": "Name", "value": "Anna Meier", "confidence": 96},
			{"label": "Date of Baptism", "value": "1891-05-17", "confidence": 92}
		]
	}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "api-job-1", body["source_job_id"])
	assert.Equal(t, "queued", body["status"])

	// The dispatcher processes asynchronously; poll until the job lands.
	deadline := time.Now().Add(2 * time.Second)
	for {
		view, err := svc.GetJobStatus(context.Background(), "api-job-1")
		if err == nil && view.Status == domain.JobTransferred {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never reached transferred: view=%+v err=%v", view, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHandleSubmitExtractionRejectsBadPayload(t *testing.T) {
	e, _ := setupAPI(t)

	rec := doRequest(e, http.MethodPost, "/api/extractions", `{"record_type": "baptism"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INVALID_PAYLOAD", body.Code)
}

func TestHandleJobStatusNotFound(t *testing.T) {
	e, _ := setupAPI(t)

	rec := doRequest(e, http.MethodGet, "/api/jobs/no-such-job", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "NOT_FOUND", body.Code)
}

func TestHandleClaimConflict(t *testing.T) {
	e, svc := setupAPI(t)
	createBaptismConfig(t, svc)
	itemID := submitForReview(t, svc, "api-claim-1")

	first := doRequest(e, http.MethodPost, fmt.Sprintf("/api/reviews/%d/claim", itemID),
		`{"reviewer_id": "alice"}`)
	require.Equal(t, http.StatusOK, first.Code)

	second := doRequest(e, http.MethodPost, fmt.Sprintf("/api/reviews/%d/claim", itemID),
		`{"reviewer_id": "bob"}`)
	require.Equal(t, http.StatusConflict, second.Code)
	var body APIError
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &body))
	assert.Equal(t, "CONFLICT", body.Code)
}

func TestHandleApproveUnclaimedIsInvalidState(t *testing.T) {
	e, svc := setupAPI(t)
	createBaptismConfig(t, svc)
	itemID := submitForReview(t, svc, "api-approve-1")

	rec := doRequest(e, http.MethodPost, fmt.Sprintf("/api/reviews/%d/approve", itemID),
		`{"reviewer_id": "alice"}`)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INVALID_STATE", body.Code)
}

func TestHandleReviewQueueLimit(t *testing.T) {
	e, svc := setupAPI(t)
	createBaptismConfig(t, svc)
	submitForReview(t, svc, "api-queue-1")
	submitForReview(t, svc, "api-queue-2")

	rec := doRequest(e, http.MethodGet, "/api/reviews?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var views []pipeline.ReviewItemView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	assert.Len(t, views, 1)

	bad := doRequest(e, http.MethodGet, "/api/reviews?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestHandleCreateAndGetConfig(t *testing.T) {
	e, _ := setupAPI(t)

	created := doRequest(e, http.MethodPost, "/api/configs", `{
		"organization_id": 1,
		"record_type": "marriage",
		"rules": [
			{"ocr_label": "Groom", "target_field": "groom_name", "required": true},
			{"ocr_label": "Bride", "target_field": "bride_name", "required": true}
		],
		"settings": {"auto_insert_threshold": 85, "confidence_warning_threshold": 60}
	}`)
	require.Equal(t, http.StatusCreated, created.Code)

	fetched := doRequest(e, http.MethodGet, "/api/configs/1/marriage", "")
	require.Equal(t, http.StatusOK, fetched.Code)
	var view pipeline.FieldConfigView
	require.NoError(t, json.Unmarshal(fetched.Body.Bytes(), &view))
	assert.Equal(t, 1, view.Version)
	assert.Len(t, view.Rules, 2)

	missing := doRequest(e, http.MethodGet, "/api/configs/1/funeral", "")
	assert.Equal(t, http.StatusNotFound, missing.Code)

	badType := doRequest(e, http.MethodGet, "/api/configs/1/census", "")
	assert.Equal(t, http.StatusBadRequest, badType.Code)
}

func TestHandleRetryTransferValidation(t *testing.T) {
	e, _ := setupAPI(t)

	notFound := doRequest(e, http.MethodPost, "/api/transfers/999/retry", "")
	assert.Equal(t, http.StatusNotFound, notFound.Code)

	badID := doRequest(e, http.MethodPost, "/api/transfers/zero/retry", "")
	assert.Equal(t, http.StatusBadRequest, badID.Code)
}

func TestHandleBatchTransferRequiresOrganization(t *testing.T) {
	e, _ := setupAPI(t)

	rec := doRequest(e, http.MethodPost, "/api/transfers/batch", `{"limit": 10}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
