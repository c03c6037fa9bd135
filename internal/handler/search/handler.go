package search

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/appointment-engine/internal/handler"
	"github.com/jwalitptl/appointment-engine/internal/model"
	apperrors "github.com/jwalitptl/appointment-engine/pkg/errors"
	"github.com/jwalitptl/appointment-engine/pkg/httputil"
)

type Searcher interface {
	SearchAvailableAppointments(ctx context.Context, req model.SearchRequest) ([]model.AvailableAppointment, error)
}

type Handler struct {
	service Searcher
}

func NewHandler(service Searcher) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/search/appointments", h.SearchAppointments)
}

type searchQuery struct {
	ServiceTypeID string   `form:"service_type_id" binding:"required,uuid"`
	Lat           *float64 `form:"lat" binding:"required"`
	Lon           *float64 `form:"lon" binding:"required"`
	PreferredDate string   `form:"preferred_date" binding:"omitempty,datetime=2006-01-02"`
	Preference    string   `form:"preference" binding:"omitempty,oneof=NEAREST_CENTER EARLIEST_DATE"`
	RadiusKm      float64  `form:"radius_km"`
	MaxResults    int      `form:"max_results"`
}

func (q searchQuery) request() (model.SearchRequest, error) {
	serviceTypeID, err := uuid.Parse(q.ServiceTypeID)
	if err != nil {
		return model.SearchRequest{}, apperrors.NewBadRequest("invalid service_type_id", err)
	}
	req := model.SearchRequest{
		ServiceTypeID: serviceTypeID,
		Latitude:      *q.Lat,
		Longitude:     *q.Lon,
		Preference:    model.PreferenceType(q.Preference),
		RadiusKm:      q.RadiusKm,
		MaxResults:    q.MaxResults,
	}
	if q.PreferredDate != "" {
		d, err := model.ParseDate(q.PreferredDate)
		if err != nil {
			return model.SearchRequest{}, apperrors.NewBadRequest("invalid preferred_date", err)
		}
		req.PreferredDate = &d
	}
	return req, nil
}

type searchResponse struct {
	Results     []model.AvailableAppointment `json:"results"`
	Count       int                          `json:"count"`
	GeneratedAt time.Time                    `json:"generated_at"`
}

func (h *Handler) SearchAppointments(c *gin.Context) {
	var q searchQuery
	if err := handler.BindQuery(c, &q); err != nil {
		handler.Fail(c, err)
		return
	}
	req, err := q.request()
	if err != nil {
		handler.Fail(c, err)
		return
	}

	results, err := h.service.SearchAvailableAppointments(c.Request.Context(), req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	if results == nil {
		results = []model.AvailableAppointment{}
	}

	httputil.RespondWithSuccess(c, http.StatusOK, searchResponse{
		Results:     results,
		Count:       len(results),
		GeneratedAt: time.Now().UTC(),
	})
}
