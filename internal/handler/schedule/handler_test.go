package schedule

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/appointment-engine/internal/middleware"
	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/internal/repository/memory"
	schedulesvc "github.com/jwalitptl/appointment-engine/internal/service/schedule"
	"github.com/jwalitptl/appointment-engine/pkg/logger"
)

type envelope struct {
	Status string          `json:"status"`
	Code   string          `json:"code"`
	Data   json.RawMessage `json:"data"`
}

type fixture struct {
	router   *gin.Engine
	branchID uuid.UUID
}

func newFixture() *fixture {
	gin.SetMode(gin.TestMode)
	store := memory.NewStore()
	admin := schedulesvc.NewAdminService(store.ScheduleRules(), store.Holidays(), store.Overrides(), logger.Nop())

	r := gin.New()
	r.Use(middleware.ErrorHandler())
	NewHandler(admin).RegisterRoutes(r.Group("/api/v1"))
	return &fixture{router: r, branchID: uuid.New()}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, "/api/v1/branches/"+f.branchID.String()+path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	f.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env
}

func TestScheduleRuleLifecycle(t *testing.T) {
	f := newFixture()

	status, env := f.do(t, http.MethodPost, "/schedule-rules",
		`{"day_of_week":0,"start_time":"08:00","end_time":"12:00","slot_duration_minutes":30,"max_capacity_per_slot":2}`)
	require.Equal(t, http.StatusCreated, status)
	var rule model.WeeklyScheduleRule
	require.NoError(t, json.Unmarshal(env.Data, &rule))
	assert.Equal(t, model.MustParseClock("08:00"), rule.StartTime)

	status, env = f.do(t, http.MethodPost, "/schedule-rules",
		`{"day_of_week":0,"start_time":"10:00","end_time":"14:00","slot_duration_minutes":30}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", env.Code)

	status, _ = f.do(t, http.MethodPost, "/schedule-rules",
		`{"day_of_week":1,"start_time":"12:00","end_time":"08:00","slot_duration_minutes":30}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = f.do(t, http.MethodPut, "/schedule-rules/"+rule.ID.String(),
		`{"day_of_week":0,"start_time":"08:00","end_time":"13:00","slot_duration_minutes":30,"version":0}`)
	require.Equal(t, http.StatusOK, status)

	status, env = f.do(t, http.MethodPut, "/schedule-rules/"+rule.ID.String(),
		`{"day_of_week":0,"start_time":"08:00","end_time":"14:00","slot_duration_minutes":30,"version":0}`)
	assert.Equal(t, http.StatusConflict, status)

	status, env = f.do(t, http.MethodGet, "/schedule-rules", "")
	require.Equal(t, http.StatusOK, status)
	var rules []model.WeeklyScheduleRule
	require.NoError(t, json.Unmarshal(env.Data, &rules))
	require.Len(t, rules, 1)
	assert.Equal(t, model.MustParseClock("13:00"), rules[0].EndTime)

	status, _ = f.do(t, http.MethodDelete, "/schedule-rules/"+rule.ID.String(), "")
	assert.Equal(t, http.StatusNoContent, status)

	status, env = f.do(t, http.MethodGet, "/schedule-rules", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestHolidays(t *testing.T) {
	f := newFixture()

	status, env := f.do(t, http.MethodPost, "/holidays", `{"holiday_date":"2025-01-01","name":"New Year","is_recurring_yearly":true}`)
	require.Equal(t, http.StatusCreated, status)
	var holiday model.HolidayException
	require.NoError(t, json.Unmarshal(env.Data, &holiday))

	status, env = f.do(t, http.MethodPost, "/holidays", `{"holiday_date":"2025-01-01","name":"Again"}`)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = f.do(t, http.MethodPost, "/holidays", `{"holiday_date":"01-01-2025","name":"Bad"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(t, http.MethodDelete, "/holidays/"+holiday.ID.String(), "")
	assert.Equal(t, http.StatusNoContent, status)

	status, env = f.do(t, http.MethodGet, "/holidays", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestOverrides(t *testing.T) {
	f := newFixture()

	status, _ := f.do(t, http.MethodPut, "/overrides", `{"override_date":"2025-01-05","total_slots":4,"available_slots":6}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, env := f.do(t, http.MethodPut, "/overrides", `{"override_date":"2025-01-05","total_slots":10,"available_slots":6}`)
	require.Equal(t, http.StatusOK, status)
	var override model.DailyCapacityOverride
	require.NoError(t, json.Unmarshal(env.Data, &override))

	status, env = f.do(t, http.MethodGet, "/overrides?from=2025-01-01&to=2025-01-31", "")
	require.Equal(t, http.StatusOK, status)
	var list []model.DailyCapacityOverride
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, 6, list[0].AvailableSlots)

	status, _ = f.do(t, http.MethodGet, "/overrides?from=2025-01-31&to=2025-01-01", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(t, http.MethodGet, "/overrides", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(t, http.MethodDelete, "/overrides/"+override.ID.String(), "")
	assert.Equal(t, http.StatusNoContent, status)
}
