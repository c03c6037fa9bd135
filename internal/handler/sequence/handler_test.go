package sequence

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/appointment-engine/internal/middleware"
	"github.com/jwalitptl/appointment-engine/internal/repository/memory"
	seqsvc "github.com/jwalitptl/appointment-engine/internal/service/sequence"
	"github.com/jwalitptl/appointment-engine/pkg/logger"
	"github.com/jwalitptl/appointment-engine/pkg/metrics"
	"github.com/jwalitptl/appointment-engine/pkg/retry"
)

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func newRouter(maxNumber int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	allocator := seqsvc.NewAllocator(memory.NewStore().Sequences(), maxNumber, time.UTC, retry.Config{}, metrics.NewNop(), logger.Nop()).
		WithClock(func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) })

	r := gin.New()
	r.Use(middleware.ErrorHandler())
	NewHandler(allocator).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func post(r *gin.Engine, branch, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/branches/"+branch+"/sequence", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestGenerateCode(t *testing.T) {
	r := newRouter(2)
	branch := uuid.NewString()

	w := post(r, branch, `{"branch_code":"HQ"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"status":"success","data":{"code":"HQ-2025-0001"}}`, w.Body.String())

	w = post(r, branch, `{"branch_code":"HQ","year":2024}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"HQ-2024-0001"`)

	w = post(r, branch, `{"branch_code":"HQ"}`)
	assert.Contains(t, w.Body.String(), `"HQ-2025-0002"`)

	w = post(r, branch, `{"branch_code":"HQ"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"sequence_exhausted"`)
}

func TestGenerateCodeRejectsMalformedInput(t *testing.T) {
	r := newRouter(10)
	assert.Equal(t, http.StatusBadRequest, post(r, "not-a-uuid", `{"branch_code":"HQ"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(r, uuid.NewString(), `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(r, uuid.NewString(), `{"branch_code":"HQ","year":1999}`).Code)
}

func TestGetCounter(t *testing.T) {
	r := newRouter(2)
	branch := uuid.NewString()

	w := get(r, "/api/v1/branches/"+branch+"/sequence")
	assert.Equal(t, http.StatusNotFound, w.Code)

	post(r, branch, `{"branch_code":"HQ"}`)
	w = get(r, "/api/v1/branches/"+branch+"/sequence")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"current_number":2`)
	assert.Contains(t, w.Body.String(), `"remaining":1`)
	assert.Contains(t, w.Body.String(), `"exhausted":false`)

	post(r, branch, `{"branch_code":"HQ"}`)
	w = get(r, "/api/v1/branches/"+branch+"/sequence?year=2025")
	assert.Contains(t, w.Body.String(), `"remaining":0`)
	assert.Contains(t, w.Body.String(), `"exhausted":true`)

	assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/branches/"+branch+"/sequence?year=2024").Code)
	assert.Equal(t, http.StatusBadRequest, get(r, "/api/v1/branches/"+branch+"/sequence?year=12").Code)
}
