// Package handler holds request helpers shared by the gin handlers. Every
// helper reports malformed input as a bad-request AppError so the error
// middleware renders it uniformly.
package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/appointment-engine/internal/model"
	apperrors "github.com/jwalitptl/appointment-engine/pkg/errors"
)

// Fail attaches err for the error middleware.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
}

func UUIDParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperrors.NewBadRequest("invalid "+name, err)
	}
	return id, nil
}

// OptionalUUIDQuery returns nil when the query parameter is absent.
func OptionalUUIDQuery(c *gin.Context, name string) (*uuid.UUID, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperrors.NewBadRequest("invalid "+name, err)
	}
	return &id, nil
}

func DateQuery(c *gin.Context, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, apperrors.NewBadRequest(name+" is required", nil)
	}
	d, err := model.ParseDate(raw)
	if err != nil {
		return time.Time{}, apperrors.NewBadRequest("invalid "+name, err)
	}
	return d, nil
}

func BindJSON(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		return apperrors.NewBadRequest("invalid request body", err)
	}
	return nil
}

func BindQuery(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindQuery(obj); err != nil {
		return apperrors.NewBadRequest("invalid query", err)
	}
	return nil
}
