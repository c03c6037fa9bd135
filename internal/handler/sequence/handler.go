package sequence

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/appointment-engine/internal/handler"
	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/pkg/httputil"
)

type CodeGenerator interface {
	GenerateAppointmentCode(ctx context.Context, branchID uuid.UUID, branchCode string) (string, error)
	GenerateForYear(ctx context.Context, branchID uuid.UUID, branchCode string, year int) (string, error)
	Counter(ctx context.Context, branchID uuid.UUID, year int) (*model.AppointmentSequence, error)
	CurrentYear() int
}

type counterQuery struct {
	Year int `form:"year" binding:"omitempty,gte=2000,lte=9999"`
}

type Handler struct {
	generator CodeGenerator
}

func NewHandler(generator CodeGenerator) *Handler {
	return &Handler{generator: generator}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/branches/:branch_id/sequence", h.GenerateCode)
	r.GET("/branches/:branch_id/sequence", h.GetCounter)
}

func (h *Handler) GenerateCode(c *gin.Context) {
	branchID, err := handler.UUIDParam(c, "branch_id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	var req model.GenerateCodeRequest
	if err := handler.BindJSON(c, &req); err != nil {
		handler.Fail(c, err)
		return
	}

	var code string
	if req.Year == 0 {
		code, err = h.generator.GenerateAppointmentCode(c.Request.Context(), branchID, req.BranchCode)
	} else {
		code, err = h.generator.GenerateForYear(c.Request.Context(), branchID, req.BranchCode, req.Year)
	}
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, gin.H{"code": code})
}

// GetCounter reports the counter of a year, the current one by default.
func (h *Handler) GetCounter(c *gin.Context) {
	branchID, err := handler.UUIDParam(c, "branch_id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	var q counterQuery
	if err := handler.BindQuery(c, &q); err != nil {
		handler.Fail(c, err)
		return
	}
	if q.Year == 0 {
		q.Year = h.generator.CurrentYear()
	}

	seq, err := h.generator.Counter(c.Request.Context(), branchID, q.Year)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{
		"counter":   seq,
		"remaining": max(seq.MaxNumber-seq.CurrentNumber+1, 0),
		"exhausted": seq.Exhausted(),
	})
}
