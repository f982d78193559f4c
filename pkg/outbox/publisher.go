package outbox

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultMaxAttempts    = 10
	defaultPublishTimeout = 5 * time.Second
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type publishRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
}

type PublisherParams struct {
	Config     config.OutboxConfig
	Logger     *logger.Logger
	DB         txRunner
	Repository publishRepository
	Sink       Sink
}

// Publisher drains outbox_events into a Sink.
type Publisher struct {
	logg         *logger.Logger
	db           txRunner
	repo         publishRepository
	sink         Sink
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	jitter       *rand.Rand
}

func NewPublisher(params PublisherParams) (*Publisher, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Sink == nil:
		return nil, errors.New("sink is required")
	}

	p := &Publisher{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		sink:         params.Sink,
		batchSize:    params.Config.BatchSize,
		maxAttempts:  params.Config.MaxAttempts,
		pollInterval: time.Duration(params.Config.PollIntervalMS) * time.Millisecond,
		jitter:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if p.batchSize <= 0 {
		p.batchSize = defaultBatchSize
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = defaultMaxAttempts
	}
	if p.pollInterval <= 0 {
		p.pollInterval = defaultPollInterval
	}
	return p, nil
}

// Run polls until ctx is cancelled, backing off while the database or
// the sink keeps failing.
func (p *Publisher) Run(ctx context.Context) error {
	if err := p.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := p.sink.Ping(ctx); err != nil {
		return fmt.Errorf("%s ping failed: %w", p.sink.Name(), err)
	}

	backoff := p.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		processed, err := p.ProcessBatch(ctx)
		switch {
		case err != nil:
			p.logg.Error(ctx, "outbox batch failed", err)
			backoff = nextBackoff(backoff, p.pollInterval, maxBackoff)
			if err := sleep(ctx, p.withJitter(backoff)); err != nil {
				return err
			}
		case !processed:
			backoff = p.pollInterval
			if err := sleep(ctx, p.pollInterval); err != nil {
				return err
			}
		default:
			backoff = p.pollInterval
		}
	}
}

// ProcessBatch publishes one batch and reports whether any row was claimed.
// A failing event is marked and the rest of the batch still goes out.
func (p *Publisher) ProcessBatch(ctx context.Context) (bool, error) {
	processed := false
	err := p.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := p.repo.FetchUnpublishedForPublish(tx, p.batchSize, p.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox events: %w", err)
		}
		if len(events) == 0 {
			return nil
		}
		processed = true

		for _, event := range events {
			fields := p.eventFields(event)
			if err := p.publish(ctx, event); err != nil {
				fields["attempt_count"] = event.AttemptCount + 1
				fields["error"] = err.Error()
				if event.AttemptCount+1 >= p.maxAttempts {
					p.logg.Warn(p.logg.WithFields(ctx, fields), "outbox event exhausted retries")
				} else {
					p.logg.Warn(p.logg.WithFields(ctx, fields), "outbox publish failed")
				}
				if markErr := p.repo.MarkFailedTx(tx, event.ID, err); markErr != nil {
					return fmt.Errorf("mark failure %s: %w", event.ID, markErr)
				}
				continue
			}
			if err := p.repo.MarkPublishedTx(tx, event.ID); err != nil {
				return fmt.Errorf("mark published %s: %w", event.ID, err)
			}
			p.logg.Info(p.logg.WithFields(ctx, fields), "outbox event published")
		}
		return nil
	})
	return processed, err
}

func (p *Publisher) publish(ctx context.Context, event models.OutboxEvent) error {
	envelope, err := DecodeEnvelope(event.Payload)
	if err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	return p.sink.Deliver(publishCtx, Message{
		EventID:       envelope.EventID,
		EventType:     string(event.EventType),
		AggregateType: string(event.AggregateType),
		AggregateID:   event.AggregateID.String(),
		OccurredAt:    envelope.OccurredAt,
		Payload:       event.Payload,
	})
}

func (p *Publisher) eventFields(event models.OutboxEvent) map[string]any {
	return map[string]any{
		"sink":           p.sink.Name(),
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	if next := current * 2; next < max {
		return next
	}
	return max
}

func (p *Publisher) withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(p.jitter.Int63n(int64(jitterWindow)))
}
