package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/internal/repository"
	"github.com/jwalitptl/appointment-engine/pkg/logger"
	"github.com/jwalitptl/appointment-engine/pkg/messaging"
	"github.com/jwalitptl/appointment-engine/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// MaxRetries failed publishes mark an event FAILED.
	MaxRetries int
}

func (c OutboxProcessorConfig) validate() error {
	if c.BatchSize <= 0 {
		return errors.New("BatchSize must be greater than 0")
	}
	if c.PollInterval <= 0 {
		return errors.New("PollInterval must be greater than 0")
	}
	if c.MaxRetries <= 0 {
		return errors.New("MaxRetries must be greater than 0")
	}
	return nil
}

// OutboxProcessor relays committed booking events to the broker. Each event
// goes to the channel named by its type.
type OutboxProcessor struct {
	repo    repository.OutboxRepository
	broker  messaging.Broker
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	log *logger.Logger,
	m *metrics.Metrics,
) (*OutboxProcessor, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid outbox processor config: %w", err)
	}
	return &OutboxProcessor{
		repo:    repo,
		broker:  broker,
		config:  config,
		logger:  log.With("outbox_processor"),
		metrics: m,
	}, nil
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessOnce(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		}
	}
}

// ProcessOnce relays one batch and reports how many events were published.
func (p *OutboxProcessor) ProcessOnce(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	published := 0
	err := p.repo.ClaimPending(ctx, p.config.BatchSize, p.config.MaxRetries, func(events []*model.OutboxEvent) repository.OutboxOutcome {
		outcome := repository.OutboxOutcome{Failed: map[uuid.UUID]string{}}
		for _, event := range events {
			if err := p.publish(ctx, event); err != nil {
				p.metrics.OutboxEventsFailed.Inc()
				p.logger.Error(err, "Failed to publish event",
					"event_id", event.ID.String(),
					"event_type", event.EventType,
					"retry_count", event.RetryCount+1)
				outcome.Failed[event.ID] = err.Error()
				continue
			}
			p.metrics.OutboxEventsProcessed.Inc()
			outcome.Processed = append(outcome.Processed, event.ID)
			published++
		}
		return outcome
	})
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("claim_pending_events", "error").Inc()
		return published, fmt.Errorf("failed to claim pending events: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("claim_pending_events", "success").Inc()
	return published, nil
}

func (p *OutboxProcessor) publish(ctx context.Context, event *model.OutboxEvent) error {
	body, err := messaging.Envelope{
		ID:          event.ID,
		Type:        event.EventType,
		AggregateID: event.AggregateID,
		OccurredAt:  event.CreatedAt,
		Payload:     event.Payload,
	}.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return p.broker.Publish(ctx, event.EventType, body)
}
