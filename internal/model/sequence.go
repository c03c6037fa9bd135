package model

import (
	"github.com/google/uuid"
)

// DefaultMaxSequenceNumber caps codes at four digits.
const DefaultMaxSequenceNumber = 9999

// AppointmentSequence is the per-branch, per-year counter behind appointment
// codes. CurrentNumber is the next number to hand out.
type AppointmentSequence struct {
	Base
	BranchID      uuid.UUID `db:"branch_id" json:"branch_id"`
	BranchCode    string    `db:"branch_code" json:"branch_code"`
	Year          int       `db:"year" json:"year"`
	CurrentNumber int       `db:"current_number" json:"current_number"`
	MaxNumber     int       `db:"max_number" json:"max_number"`
	TotalCreated  int       `db:"total_created" json:"total_created"`
	Version       int       `db:"version" json:"version"`
}

// Exhausted reports whether no further number can be issued.
func (s *AppointmentSequence) Exhausted() bool {
	return s.CurrentNumber > s.MaxNumber
}

type GenerateCodeRequest struct {
	BranchCode string `json:"branch_code" binding:"required,max=16"`
	Year       int    `json:"year" binding:"omitempty,gte=2000,lte=9999"`
}
