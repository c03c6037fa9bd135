package availability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/appointment-engine/internal/handler"
	"github.com/jwalitptl/appointment-engine/internal/model"
	availsvc "github.com/jwalitptl/appointment-engine/internal/service/availability"
	apperrors "github.com/jwalitptl/appointment-engine/pkg/errors"
	"github.com/jwalitptl/appointment-engine/pkg/httputil"
)

const maxScanDays = 90

type Index interface {
	DaySlots(ctx context.Context, branchID uuid.UUID, date time.Time, serviceTypeID *uuid.UUID) (*model.DaySlots, error)
	FirstAvailable(ctx context.Context, branchID uuid.UUID, from time.Time, days int, serviceTypeID *uuid.UUID) (*availsvc.FirstOpening, error)
}

type Handler struct {
	index Index
}

func NewHandler(index Index) *Handler {
	return &Handler{index: index}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	branches := r.Group("/branches/:branch_id")
	{
		branches.GET("/availability", h.GetDaySlots)
		branches.GET("/first-available", h.GetFirstAvailable)
	}
}

func (h *Handler) GetDaySlots(c *gin.Context) {
	branchID, err := handler.UUIDParam(c, "branch_id")
	if err != nil {
		handler.Fail(c, err)
		return
	}
	date, err := handler.DateQuery(c, "date")
	if err != nil {
		handler.Fail(c, err)
		return
	}
	serviceTypeID, err := handler.OptionalUUIDQuery(c, "service_type_id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	slots, err := h.index.DaySlots(c.Request.Context(), branchID, date, serviceTypeID)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, slots)
}

func (h *Handler) GetFirstAvailable(c *gin.Context) {
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
	days := 30
	if raw := c.Query("days"); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil || days <= 0 || days > maxScanDays {
			handler.Fail(c, apperrors.NewBadRequest("days must be between 1 and "+strconv.Itoa(maxScanDays), err))
			return
		}
	}
	serviceTypeID, err := handler.OptionalUUIDQuery(c, "service_type_id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	opening, err := h.index.FirstAvailable(c.Request.Context(), branchID, from, days, serviceTypeID)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	if opening == nil {
		handler.Fail(c, apperrors.NewNotFound("free slot", nil))
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, opening)
}
