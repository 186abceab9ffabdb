package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/fctr-io/okta-query-engine/pkg/database"
	"github.com/fctr-io/okta-query-engine/pkg/events"
	"github.com/fctr-io/okta-query-engine/pkg/models"
	"github.com/fctr-io/okta-query-engine/pkg/phaseagent"
	"github.com/fctr-io/okta-query-engine/pkg/process"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func init() { gin.SetMode(gin.TestMode) }

type stubDriver struct {
	plan       process.PlanResponse
	startErr   error
	executeErr error
	cancelOK   bool
}

func (s *stubDriver) StartProcess(ctx context.Context, rawText, userIdentity string) (process.PlanResponse, error) {
	return s.plan, s.startErr
}
func (s *stubDriver) Execute(correlationID string) error { return s.executeErr }
func (s *stubDriver) Cancel(correlationID string) bool   { return s.cancelOK }
func (s *stubDriver) Lookup(ctx context.Context, correlationID string) (*database.ProcessRecord, error) {
	return nil, nil
}

type stubStreamer struct {
	called    string
	returnErr error
}

func (s *stubStreamer) Stream(ctx context.Context, processID string, out events.Flusher) error {
	s.called = processID
	if s.returnErr != nil {
		return s.returnErr
	}
	_, _ = out.Write([]byte("event: final_result\ndata: {}\n\n"))
	out.Flush()
	return nil
}

type stubTools struct {
	tools []phaseagent.ToolDescriptor
}

func (s *stubTools) AllTools() []phaseagent.ToolDescriptor { return s.tools }

func newTestDBClient(t *testing.T) *database.Client {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	mock.ExpectPing()

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)

	return database.NewClientFromGorm(gormDB, db)
}

func TestHandleStartProcess(t *testing.T) {
	driver := &stubDriver{plan: process.PlanResponse{
		ProcessID: "corr-1",
		Reasoning: "needs one API call",
		Steps: []process.PlanStep{
			{ID: "step-0", ToolName: "api_discovery", Entity: "user", Operation: "list", Critical: true, Status: "pending"},
		},
	}}
	s := NewServer(driver, &stubStreamer{}, &stubTools{}, newTestDBClient(t), "")

	body, _ := json.Marshal(map[string]string{"query": "list all active users"})
	req := httptest.NewRequest(http.MethodPost, "/start-process", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp startProcessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "corr-1", resp.ProcessID)
	require.Len(t, resp.Plan.Steps, 1)
	assert.Equal(t, "api_discovery", resp.Plan.Steps[0].ToolName)
	assert.True(t, resp.Plan.Steps[0].Critical)
}

func TestHandleStartProcessMissingQuery(t *testing.T) {
	s := NewServer(&stubDriver{}, &stubStreamer{}, &stubTools{}, newTestDBClient(t), "")

	req := httptest.NewRequest(http.MethodPost, "/start-process", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStartProcessMapsErrorCode(t *testing.T) {
	driver := &stubDriver{startErr: models.WrapError(models.ErrCodeCancelled, "query was cancelled", nil)}
	s := NewServer(driver, &stubStreamer{}, &stubTools{}, newTestDBClient(t), "")

	body, _ := json.Marshal(map[string]string{"query": "anything"})
	req := httptest.NewRequest(http.MethodPost, "/start-process", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleStreamUpdatesStartsExecutionAndStreams(t *testing.T) {
	driver := &stubDriver{}
	streamer := &stubStreamer{}
	s := NewServer(driver, streamer, &stubTools{}, newTestDBClient(t), "")

	req := httptest.NewRequest(http.MethodGet, "/stream-updates/corr-1", nil)
	rec := httptest.NewRecorder()

	s.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "corr-1", streamer.called)
	assert.Contains(t, rec.Body.String(), "final_result")
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
}

func TestHandleStreamUpdatesUnknownProcess(t *testing.T) {
	driver := &stubDriver{executeErr: assertError("process is not active")}
	s := NewServer(driver, &stubStreamer{}, &stubTools{}, newTestDBClient(t), "")

	req := httptest.NewRequest(http.MethodGet, "/stream-updates/missing", nil)
	rec := httptest.NewRecorder()

	s.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCancel(t *testing.T) {
	s := NewServer(&stubDriver{cancelOK: true}, &stubStreamer{}, &stubTools{}, newTestDBClient(t), "")

	req := httptest.NewRequest(http.MethodPost, "/cancel/corr-1", nil)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleCancelUnknownProcess(t *testing.T) {
	s := NewServer(&stubDriver{cancelOK: false}, &stubStreamer{}, &stubTools{}, newTestDBClient(t), "")

	req := httptest.NewRequest(http.MethodPost, "/cancel/missing", nil)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleAvailableToolsReturnsToolCategory(t *testing.T) {
	tools := &stubTools{tools: []phaseagent.ToolDescriptor{
		{Operation: "special_tool_analyze_user_app_access", EntityName: "access_analysis", Category: "Access Analysis", Summary: "s"},
	}}
	s := NewServer(&stubDriver{}, &stubStreamer{}, tools, newTestDBClient(t), "")

	req := httptest.NewRequest(http.MethodGet, "/available-tools", nil)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Tools []toolResponse `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Tools, 1)
	assert.Equal(t, "Access Analysis", resp.Tools[0].Category)
}

func TestHandleHealth(t *testing.T) {
	s := NewServer(&stubDriver{}, &stubStreamer{}, &stubTools{}, newTestDBClient(t), "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleCORSHeaderSetWhenConfigured(t *testing.T) {
	s := NewServer(&stubDriver{}, &stubStreamer{}, &stubTools{}, newTestDBClient(t), "https://example.com")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

type assertErrorString string

func (e assertErrorString) Error() string { return string(e) }

func assertError(msg string) error { return assertErrorString(msg) }
