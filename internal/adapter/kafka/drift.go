package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/sachanni/salonhub-geocache/internal/config"
	"github.com/sachanni/salonhub-geocache/internal/domain"
)

// DriftPublisher sends audit findings that need attention to the drift topic.
// It implements audit.Publisher.
type DriftPublisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewDriftPublisher creates a producer for the configured drift topic.
func NewDriftPublisher(cfg *config.Config, logger *slog.Logger) *DriftPublisher {
	return &DriftPublisher{writer: newProducer(cfg.KafkaBrokers, cfg.KafkaDriftTopic), logger: logger}
}

// PublishDrift writes one message per finding, keyed by the trusted location name.
func (p *DriftPublisher) PublishDrift(ctx context.Context, findings []domain.DriftFinding) error {
	if len(findings) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(findings))
	for i := range findings {
		msg, err := serializeFinding(findings[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d drift findings: %w", len(msgs), err)
	}
	p.logger.Info("published drift findings", "count", len(msgs), "topic", p.writer.Topic)
	return nil
}

func (p *DriftPublisher) Close() error {
	return p.writer.Close()
}

func serializeFinding(f domain.DriftFinding) (kafkago.Message, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize drift finding %q: %w", f.Name, err)
	}
	return kafkago.Message{
		Key:   []byte(f.Name),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "status", Value: []byte(f.Status)},
			{Key: "checked_at", Value: []byte(f.CheckedAt.Format(time.RFC3339))},
		},
	}, nil
}
