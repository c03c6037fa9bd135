// Package sequence issues human-readable appointment codes of the form
// BRANCHCODE-YYYY-NNNN from a per-branch, per-year counter.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/internal/repository"
	"github.com/jwalitptl/appointment-engine/internal/service/event"
	apperrors "github.com/jwalitptl/appointment-engine/pkg/errors"
	"github.com/jwalitptl/appointment-engine/pkg/logger"
	"github.com/jwalitptl/appointment-engine/pkg/metrics"
	"github.com/jwalitptl/appointment-engine/pkg/retry"
)

// IssueFunc atomically takes the next number of a (branch, year) counter.
// Both SequenceRepository.Next and BookingTx.NextSequence fit.
type IssueFunc func(ctx context.Context, branchID uuid.UUID, branchCode string, year, maxNumber int) (int, error)

// FormatCode renders an issued number. Numbers are zero-padded to four
// digits.
func FormatCode(branchCode string, year, number int) string {
	return fmt.Sprintf("%s-%d-%04d", branchCode, year, number)
}

type Allocator struct {
	repo      repository.SequenceRepository
	maxNumber int
	location  *time.Location
	retry     retry.Config
	now       func() time.Time
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// NewAllocator builds an allocator. A maxNumber <= 0 means
// model.DefaultMaxSequenceNumber; a nil location means UTC; a zero retry
// config means retry.DefaultConfig.
func NewAllocator(repo repository.SequenceRepository, maxNumber int, location *time.Location, retryCfg retry.Config, m *metrics.Metrics, log *logger.Logger) *Allocator {
	if maxNumber <= 0 {
		maxNumber = model.DefaultMaxSequenceNumber
	}
	if location == nil {
		location = time.UTC
	}
	if retryCfg.Attempts == 0 {
		retryCfg = retry.DefaultConfig()
	}
	return &Allocator{
		repo:      repo,
		maxNumber: maxNumber,
		location:  location,
		retry:     retryCfg,
		now:       time.Now,
		metrics:   m,
		log:       log.With("sequence"),
	}
}

// WithClock replaces the allocator's time source.
func (a *Allocator) WithClock(now func() time.Time) *Allocator {
	a.now = now
	return a
}

// CurrentYear is the calendar year in the allocator's location.
func (a *Allocator) CurrentYear() int {
	return a.now().In(a.location).Year()
}

// GenerateAppointmentCode issues the next code for the current year.
func (a *Allocator) GenerateAppointmentCode(ctx context.Context, branchID uuid.UUID, branchCode string) (string, error) {
	return a.GenerateForYear(ctx, branchID, branchCode, a.CurrentYear())
}

// GenerateForYear issues the next code of an explicit year through its own
// atomic statement, recording a sequence.issued event in the same
// transaction. Transient storage failures are retried.
func (a *Allocator) GenerateForYear(ctx context.Context, branchID uuid.UUID, branchCode string, year int) (string, error) {
	issue := func(ctx context.Context, branchID uuid.UUID, branchCode string, year, maxNumber int) (int, error) {
		return a.repo.Next(ctx, branchID, branchCode, year, maxNumber, func(number int) (*model.OutboxEvent, error) {
			return event.SequenceIssued(event.SequenceIssuedPayload{
				BranchID: branchID,
				Year:     year,
				Number:   number,
				Code:     FormatCode(branchCode, year, number),
			}, a.now().UTC())
		})
	}

	var code string
	err := retry.Do(ctx, a.retry, repository.IsTransient, func(err error) {
		a.metrics.StorageRetries.WithLabelValues("issue_sequence").Inc()
		a.log.Warn("retrying sequence issue after transient storage error",
			"branch_id", branchID, "year", year, "error", err.Error())
	}, func() error {
		var err error
		code, err = a.mint(ctx, issue, branchID, branchCode, year)
		return err
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

// Counter returns the stored counter of (branch, year).
func (a *Allocator) Counter(ctx context.Context, branchID uuid.UUID, year int) (*model.AppointmentSequence, error) {
	seq, err := a.repo.Get(ctx, branchID, year)
	if err != nil {
		return nil, repository.ToAppError("appointment sequence", err)
	}
	return seq, nil
}

// Mint issues a code through issue, which lets a booking take its number
// inside its own transaction.
func (a *Allocator) Mint(ctx context.Context, issue IssueFunc, branchID uuid.UUID, branchCode string, year int) (string, error) {
	return a.mint(ctx, issue, branchID, branchCode, year)
}

func (a *Allocator) mint(ctx context.Context, issue IssueFunc, branchID uuid.UUID, branchCode string, year int) (string, error) {
	branchCode = strings.TrimSpace(branchCode)
	if branchCode == "" {
		return "", apperrors.NewBadRequest("branch code is required", nil)
	}
	if year < 1000 || year > 9999 {
		return "", apperrors.NewBadRequest(fmt.Sprintf("year %d out of range", year), nil)
	}

	number, err := issue(ctx, branchID, branchCode, year, a.maxNumber)
	if err != nil {
		if errors.Is(err, repository.ErrExhausted) {
			a.metrics.SequenceExhausted.Inc()
			a.log.Warn("appointment sequence exhausted",
				"branch_id", branchID, "branch_code", branchCode, "year", year, "max", a.maxNumber)
			return "", apperrors.Wrap(apperrors.ErrSequenceExhausted, err)
		}
		return "", fmt.Errorf("failed to issue sequence number: %w", err)
	}

	a.metrics.SequenceIssued.Inc()
	return FormatCode(branchCode, year, number), nil
}
