package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/docslot/libs/kafkax"
	otelx "github.com/md-rashed-zaman/docslot/libs/otel"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type TxRunner interface {
	InTx(ctx context.Context, fn func(pgx.Tx) error) error
}

type Publisher struct {
	db        TxRunner
	repo      *Repository
	writer    MessageWriter
	logger    *zap.Logger
	pollEvery time.Duration
	batchSize int
}

type PublisherConfig struct {
	PollEvery time.Duration
	BatchSize int
}

// NewPublisher accepts a nil writer; Run then logs and returns immediately.
// Pass an untyped nil, not a nil *kafka.Writer.
func NewPublisher(db TxRunner, repo *Repository, writer MessageWriter, logger *zap.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		db:        db,
		repo:      repo,
		writer:    writer,
		logger:    logger,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	if p.writer == nil {
		p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PublishBatch(ctx)
			if err != nil {
				p.logger.Error("outbox publish failed", zap.Error(err))
				continue
			}
			if n > 0 {
				p.logger.Debug("outbox published", zap.Int("count", n))
			}
		}
	}
}

// PublishBatch sends one batch and marks it published in the same transaction.
// A write failure rolls back, so the batch is retried on the next tick.
func (p *Publisher) PublishBatch(ctx context.Context) (int, error) {
	var published int
	err := p.db.InTx(ctx, func(tx pgx.Tx) error {
		records, err := p.repo.FetchUnpublished(ctx, tx, p.batchSize)
		if err != nil || len(records) == 0 {
			return err
		}

		msgs := make([]kafka.Message, 0, len(records))
		ids := make([]int64, 0, len(records))
		for _, r := range records {
			msgs = append(msgs, Message(ctx, r))
			ids = append(ids, r.ID)
		}
		if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
			return err
		}
		if err := p.repo.MarkPublished(ctx, tx, ids); err != nil {
			return err
		}
		published = len(records)
		return nil
	})
	return published, err
}

// Message converts a stored record into its Kafka message, restoring the trace
// context captured when the row was written.
func Message(ctx context.Context, r Record) kafka.Message {
	msgCtx := otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
	return kafka.Message{
		Topic:   r.EventType,
		Key:     []byte(r.AggregateID),
		Value:   r.Payload,
		Headers: kafkax.InjectTraceHeaders(msgCtx, kafkax.EventHeaders(r.EventID, r.EventType)),
	}
}
