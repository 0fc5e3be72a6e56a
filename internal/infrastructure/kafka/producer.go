package kafka

import (
	"context"
	"encoding/json"

	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/zlog"

	"github.com/yokitheyo/gobbler/internal/config"
	"github.com/yokitheyo/gobbler/internal/domain"
	"github.com/yokitheyo/gobbler/internal/dto"
	"github.com/yokitheyo/gobbler/internal/retry"
)

type Producer struct {
	client *wbfkafka.Producer
	topic  string
}

// NewProducer создаёт Kafka producer через wbf.
func NewProducer(cfg *config.KafkaConfig) *Producer {
	client := wbfkafka.NewProducer(cfg.Brokers, cfg.Topic)
	zlog.Logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Msg("Kafka producer initialized (wbf)")
	return &Producer{
		client: client,
		topic:  cfg.Topic,
	}
}

func (p *Producer) PublishComposite(ctx context.Context, c *domain.Composite) error {
	event := dto.MapCompositeToEvent(c)
	data, err := json.Marshal(event)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("composite_id", c.ID).Msg("Failed to marshal composite event")
		return err
	}
	if err := p.client.SendWithRetry(ctx, retry.DefaultStrategy, []byte(event.ID), data); err != nil {
		zlog.Logger.Error().
			Err(err).
			Str("composite_id", event.ID).
			Str("topic", p.topic).
			Msg("Failed to send Kafka message with retry")
		return err
	}
	zlog.Logger.Info().
		Str("composite_id", event.ID).
		Str("path", event.Path).
		Msg("Composite event sent to Kafka")
	return nil
}

// Close закрывает продюсер.
func (p *Producer) Close() error {
	if err := p.client.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("Failed to close Kafka producer")
		return err
	}
	zlog.Logger.Info().Msg("Kafka producer closed successfully")
	return nil
}
