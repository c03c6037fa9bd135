package schedule

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/appointment-engine/internal/handler"
	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/pkg/httputil"
)

// Admin manages the inputs of a branch calendar.
type Admin interface {
	CreateRule(ctx context.Context, branchID uuid.UUID, req *model.CreateScheduleRuleRequest) (*model.WeeklyScheduleRule, error)
	UpdateRule(ctx context.Context, branchID, ruleID uuid.UUID, req *model.UpdateScheduleRuleRequest) (*model.WeeklyScheduleRule, error)
	DeleteRule(ctx context.Context, branchID, ruleID uuid.UUID) error
	ListRules(ctx context.Context, branchID uuid.UUID) ([]*model.WeeklyScheduleRule, error)

	CreateHoliday(ctx context.Context, branchID uuid.UUID, req *model.CreateHolidayRequest) (*model.HolidayException, error)
	DeleteHoliday(ctx context.Context, id uuid.UUID) error
	ListHolidays(ctx context.Context, branchID uuid.UUID) ([]*model.HolidayException, error)

	UpsertOverride(ctx context.Context, branchID uuid.UUID, req *model.UpsertOverrideRequest) (*model.DailyCapacityOverride, error)
	DeleteOverride(ctx context.Context, id uuid.UUID) error
	ListOverrides(ctx context.Context, branchID uuid.UUID, from, to time.Time) ([]*model.DailyCapacityOverride, error)
}

type Handler struct {
	admin Admin
}

func NewHandler(admin Admin) *Handler {
	return &Handler{admin: admin}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	branch := r.Group("/branches/:branch_id")
	{
		branch.GET("/schedule-rules", h.ListRules)
		branch.POST("/schedule-rules", h.CreateRule)
		branch.PUT("/schedule-rules/:id", h.UpdateRule)
		branch.DELETE("/schedule-rules/:id", h.DeleteRule)

		branch.GET("/holidays", h.ListHolidays)
		branch.POST("/holidays", h.CreateHoliday)
		branch.DELETE("/holidays/:id", h.DeleteHoliday)

		branch.GET("/overrides", h.ListOverrides)
		branch.PUT("/overrides", h.UpsertOverride)
		branch.DELETE("/overrides/:id", h.DeleteOverride)
	}
}

func (h *Handler) ListRules(c *gin.Context) {
	branchID, err := handler.UUIDParam(c, "branch_id")
	if err != nil {
		handler.Fail(c, err)
		return
	}
	rules, err := h.admin.ListRules(c.Request.Context(), branchID)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	if rules == nil {
		rules = []*model.WeeklyScheduleRule{}
	}
	httputil.RespondWithSuccess(c, http.StatusOK, rules)
}

func (h *Handler) CreateRule(c *gin.Context) {
	branchID, err := handler.UUIDParam(c, "branch_id")
	if err != nil {
		handler.Fail(c, err)
		return
	}
	var req model.CreateScheduleRuleRequest
	if err := handler.BindJSON(c, &req); err != nil {
		handler.Fail(c, err)
		return
	}

	rule, err := h.admin.CreateRule(c.Request.Context(), branchID, &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, rule)
}

func (h *Handler) UpdateRule(c *gin.Context) {
	branchID, err := handler.UUIDParam(c, "branch_id")
	if err != nil {
		handler.Fail(c, err)
		return
	}
	ruleID, err := handler.UUIDParam(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}
	var req model.UpdateScheduleRuleRequest
	if err := handler.BindJSON(c, &req); err != nil {
		handler.Fail(c, err)
		return
	}

	rule, err := h.admin.UpdateRule(c.Request.Context(), branchID, ruleID, &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, rule)
}

func (h *Handler) DeleteRule(c *gin.Context) {
	branchID, err := handler.UUIDParam(c, "branch_id")
	if err != nil {
		handler.Fail(c, err)
		return
	}
	ruleID, err := handler.UUIDParam(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}
	if err := h.admin.DeleteRule(c.Request.Context(), branchID, ruleID); err != nil {
		handler.Fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListHolidays(c *gin.Context) {
	branchID, err := handler.UUIDParam(c, "branch_id")
	if err != nil {
		handler.Fail(c, err)
		return
	}
	holidays, err := h.admin.ListHolidays(c.Request.Context(), branchID)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	if holidays == nil {
		holidays = []*model.HolidayException{}
	}
	httputil.RespondWithSuccess(c, http.StatusOK, holidays)
}

func (h *Handler) CreateHoliday(c *gin.Context) {
	branchID, err := handler.UUIDParam(c, "branch_id")
	if err != nil {
		handler.Fail(c, err)
		return
	}
	var req model.CreateHolidayRequest
	if err := handler.BindJSON(c, &req); err != nil {
		handler.Fail(c, err)
		return
	}

	holiday, err := h.admin.CreateHoliday(c.Request.Context(), branchID, &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, holiday)
}

func (h *Handler) DeleteHoliday(c *gin.Context) {
	id, err := handler.UUIDParam(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}
	if err := h.admin.DeleteHoliday(c.Request.Context(), id); err != nil {
		handler.Fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListOverrides(c *gin.Context) {
	branchID, err := handler.UUIDParam(c, "branch_id")
	if err != nil {
		handler.Fail(c, err)
		return
	}
	from, err := handler.DateQuery(c, "from")
	if err != nil {
		handler.Fail(c, err)
		return
	}
	to, err := handler.DateQuery(c, "to")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	overrides, err := h.admin.ListOverrides(c.Request.Context(), branchID, from, to)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	if overrides == nil {
		overrides = []*model.DailyCapacityOverride{}
	}
	httputil.RespondWithSuccess(c, http.StatusOK, overrides)
}

func (h *Handler) UpsertOverride(c *gin.Context) {
	branchID, err := handler.UUIDParam(c, "branch_id")
	if err != nil {
		handler.Fail(c, err)
		return
	}
	var req model.UpsertOverrideRequest
	if err := handler.BindJSON(c, &req); err != nil {
		handler.Fail(c, err)
		return
	}

	override, err := h.admin.UpsertOverride(c.Request.Context(), branchID, &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, override)
}

func (h *Handler) DeleteOverride(c *gin.Context) {
	id, err := handler.UUIDParam(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}
	if err := h.admin.DeleteOverride(c.Request.Context(), id); err != nil {
		handler.Fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
