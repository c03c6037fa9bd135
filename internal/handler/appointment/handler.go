package appointment

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/appointment-engine/internal/handler"
	"github.com/jwalitptl/appointment-engine/internal/model"
	apperrors "github.com/jwalitptl/appointment-engine/pkg/errors"
	"github.com/jwalitptl/appointment-engine/pkg/httputil"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type Booker interface {
	BookAppointment(ctx context.Context, req model.BookingRequest) (*model.Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to model.AppointmentStatus, reason string) (*model.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
	History(ctx context.Context, id uuid.UUID) ([]*model.AppointmentStatusHistory, error)
}

type Handler struct {
	service Booker
}

func NewHandler(service Booker) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	appointments := r.Group("/appointments")
	{
		appointments.POST("", h.CreateAppointment)
		appointments.GET("/:id", h.GetAppointment)
		appointments.PATCH("/:id/status", h.UpdateStatus)
		appointments.GET("/:id/history", h.GetHistory)
	}
}

func bookingRequest(c *gin.Context, body *model.CreateAppointmentRequest) (model.BookingRequest, error) {
	date, err := model.ParseDate(body.Date)
	if err != nil {
		return model.BookingRequest{}, apperrors.NewBadRequest("invalid date", err)
	}
	at, err := model.ParseClock(body.Time)
	if err != nil {
		return model.BookingRequest{}, apperrors.NewBadRequest("invalid time", err)
	}
	return model.BookingRequest{
		BeneficiaryID:   body.BeneficiaryID,
		BranchID:        body.BranchID,
		ServiceTypeID:   body.ServiceTypeID,
		Date:            date,
		Time:            at,
		DurationMinutes: body.DurationMinutes,
		Priority:        model.AppointmentPriority(body.Priority),
		IdempotencyKey:  c.GetHeader(HeaderIdempotencyKey),
	}, nil
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	var body model.CreateAppointmentRequest
	if err := handler.BindJSON(c, &body); err != nil {
		handler.Fail(c, err)
		return
	}
	req, err := bookingRequest(c, &body)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	appointment, err := h.service.BookAppointment(c.Request.Context(), req)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	c.Header("Location", "/api/v1/appointments/"+appointment.ID.String())
	httputil.RespondWithSuccess(c, http.StatusCreated, appointment)
}

func (h *Handler) GetAppointment(c *gin.Context) {
	id, err := handler.UUIDParam(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	appointment, err := h.service.GetAppointment(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, appointment)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	id, err := handler.UUIDParam(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	var req model.UpdateStatusRequest
	if err := handler.BindJSON(c, &req); err != nil {
		handler.Fail(c, err)
		return
	}

	appointment, err := h.service.UpdateStatus(c.Request.Context(), id, req.Status, req.Reason)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, appointment)
}

func (h *Handler) GetHistory(c *gin.Context) {
	id, err := handler.UUIDParam(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	history, err := h.service.History(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	if history == nil {
		history = []*model.AppointmentStatusHistory{}
	}
	httputil.RespondWithSuccess(c, http.StatusOK, history)
}
