package model

import (
	"github.com/google/uuid"
)

// Branch is a service center as known to the branch directory.
type Branch struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Address   string    `db:"address" json:"address"`
	Latitude  float64   `db:"latitude" json:"latitude"`
	Longitude float64   `db:"longitude" json:"longitude"`
	IsActive  bool      `db:"is_active" json:"is_active"`
}

type ServiceType struct {
	ID              uuid.UUID `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
}
