package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vendor_audit_backend/internal/config"
	"vendor_audit_backend/internal/connectivity"
	"vendor_audit_backend/internal/docstore"
	"vendor_audit_backend/internal/model"
	"vendor_audit_backend/internal/offline"
	"vendor_audit_backend/internal/repository"
	"vendor_audit_backend/internal/service"
	"vendor_audit_backend/internal/util"
	"vendor_audit_backend/pkg/circuitbreaker"
)

func newTestRouter(t *testing.T) (*gin.Engine, *docstore.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := docstore.NewMemoryStore()
	log := zap.NewNop()
	breaker := circuitbreaker.New(circuitbreaker.Config{Name: "test", FailureThreshold: 1000})
	repo := repository.NewAssessmentRepository(store, breaker, log)
	formRepo := repository.NewFormRepository(store, nil, log)
	queue := offline.NewQueue(offline.Config{}, repo, log)
	monitor := connectivity.NewMonitor(nil, time.Minute, time.Second, log)
	monitor.SetOnline(true)

	cfg := &config.Config{}
	cfg.Engine.AutosaveDelayMS = 50
	cfg.Engine.SaveTimeoutSec = 5

	svc := service.NewAssessmentService(repo, formRepo, queue, monitor, cfg, log)
	t.Cleanup(func() { svc.Shutdown(context.Background()) })

	form := &model.FormDefinition{
		FormCode: "SAFETY-01",
		Version:  1,
		Fields: []model.FormField{
			{CkItem: "fire-exits", FScore: 1, Required: true},
		},
	}
	data, err := json.Marshal(form)
	require.NoError(t, err)
	_, err = store.CreateDocument(context.Background(), util.CollectionForms, data)
	require.NoError(t, err)

	c := NewAssessmentController(svc)
	syncCtl := NewSyncController(svc)

	router := gin.New()
	api := router.Group("/api")
	{
		api.POST("/assessments", c.Start)
		api.GET("/assessments/:id", c.Get)
		api.PUT("/assessments/:id/answers/:ckItem", c.UpdateAnswer)
		api.POST("/assessments/:id/answers/:ckItem/confirm", c.ConfirmAnswer)
		api.POST("/assessments/:id/flush", c.Flush)
		api.POST("/assessments/:id/submit", c.Submit)
		api.GET("/sync/status", syncCtl.Status)
	}
	return router, store
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createAssessment(t *testing.T, router *gin.Engine) string {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/assessments", gin.H{
		"vendorCode":  "V001",
		"formCode":    "SAFETY-01",
		"riskLevel":   "Low",
		"workingArea": "warehouse",
		"category":    "annual",
		"auditor":     gin.H{"name": "张伟"},
		"auditee":     gin.H{"name": "供应商甲"},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Data model.Assessment `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.ID)
	return resp.Data.ID
}

func TestStartEndpointCreatesAssessment(t *testing.T) {
	router, _ := newTestRouter(t)
	id := createAssessment(t, router)

	w := doJSON(t, router, http.MethodGet, "/api/assessments/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStartEndpointRejectsMissingVendor(t *testing.T) {
	router, _ := newTestRouter(t)
	w := doJSON(t, router, http.MethodPost, "/api/assessments", gin.H{"formCode": "SAFETY-01"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartEndpointUnknownForm(t *testing.T) {
	router, _ := newTestRouter(t)
	w := doJSON(t, router, http.MethodPost, "/api/assessments", gin.H{
		"vendorCode": "V001",
		"formCode":   "NOPE",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateAnswerEndpointValidatesScore(t *testing.T) {
	router, _ := newTestRouter(t)
	id := createAssessment(t, router)

	w := doJSON(t, router, http.MethodPut, "/api/assessments/"+id+"/answers/fire-exits", gin.H{
		"score": "7",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitEndpointConflictWhenIncomplete(t *testing.T) {
	router, _ := newTestRouter(t)
	id := createAssessment(t, router)

	w := doJSON(t, router, http.MethodPost, "/api/assessments/"+id+"/submit", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestFullEditAndSubmitFlow(t *testing.T) {
	router, _ := newTestRouter(t)
	id := createAssessment(t, router)

	w := doJSON(t, router, http.MethodPut, "/api/assessments/"+id+"/answers/fire-exits", gin.H{
		"score":   "2",
		"comment": "出口畅通",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/assessments/%s/answers/%s/confirm", id, "fire-exits"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/assessments/"+id+"/flush", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/assessments/"+id+"/submit", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// 提交后写入作答被拒
	w = doJSON(t, router, http.MethodPut, "/api/assessments/"+id+"/answers/fire-exits", gin.H{
		"score": "0",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSyncStatusEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/sync/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data service.SyncState `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Data.Online)
	assert.Equal(t, "closed", resp.Data.Breaker.State)
}
