package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(h *Handler, path string) *httptest.ResponseRecorder {
	r := gin.New()
	h.RegisterRoutes(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestLiveness(t *testing.T) {
	w := serve(NewHandler(nil), "/health/live")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"UP"}`, w.Body.String())
}

func TestReadinessPingsDatabase(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mockDB.Close()
	db := sqlx.NewDb(mockDB, "postgres")

	mock.ExpectPing()
	w := serve(NewHandler(map[string]Pinger{"database": db}), "/health/ready")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"UP","checks":{"database":"UP"}}`, w.Body.String())

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	w = serve(NewHandler(map[string]Pinger{"database": db}), "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"DOWN","checks":{"database":"DOWN"}}`, w.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadinessReportsEachDependency(t *testing.T) {
	h := NewHandler(map[string]Pinger{
		"database": PingFunc(func(context.Context) error { return nil }),
		"broker":   PingFunc(func(context.Context) error { return errors.New("down") }),
	})
	w := serve(h, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"DOWN","checks":{"database":"UP","broker":"DOWN"}}`, w.Body.String())
}
