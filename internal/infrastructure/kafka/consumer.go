package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/yokitheyo/gobbler/internal/config"
	"github.com/yokitheyo/gobbler/internal/dto"
)

type MessageHandler func(ctx context.Context, req *dto.SuperposeRequest) error

// Consumer reads superpose requests from the request topic.
type Consumer struct {
	client  *wbfkafka.Consumer
	handler MessageHandler
	topic   string
}

func NewConsumer(cfg *config.KafkaConfig, handler MessageHandler) *Consumer {
	client := wbfkafka.NewConsumer(cfg.Brokers, cfg.RequestTopic, cfg.GroupID)

	zlog.Logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.RequestTopic).
		Str("group_id", cfg.GroupID).
		Msg("Kafka consumer initialized (wbf)")

	return &Consumer{
		client:  client,
		handler: handler,
		topic:   cfg.RequestTopic,
	}
}

// Start blocks until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	strategy := retry.Strategy{
		Attempts: 3,
		Delay:    2 * time.Second,
		Backoff:  2.0,
	}

	for {
		select {
		case <-ctx.Done():
			zlog.Logger.Info().Msg("Kafka consumer stopped")
			return nil
		default:
		}

		msg, err := c.client.FetchWithRetry(ctx, strategy)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			zlog.Logger.Error().Err(err).Msg("Failed to fetch Kafka message")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		req, err := DecodeRequest(msg.Value)
		if err != nil {
			zlog.Logger.Error().Err(err).Bytes("msg", msg.Value).Msg("Failed to decode message")
			// a malformed request will never succeed, so it is committed
			if err := c.client.Commit(ctx, msg); err != nil {
				zlog.Logger.Error().Err(err).Msg("Failed to commit message")
			}
			continue
		}

		zlog.Logger.Info().
			Str("request_id", req.RequestID).
			Bool("wait", req.Wait).
			Msg("Received superpose request")

		if err := c.handler(ctx, req); err != nil {
			zlog.Logger.Error().Err(err).Str("request_id", req.RequestID).Msg("Request processing failed")
			continue
		}

		if err := c.client.Commit(ctx, msg); err != nil {
			zlog.Logger.Error().Err(err).Str("request_id", req.RequestID).Msg("Failed to commit message")
		}
	}
}

// DecodeRequest parses a superpose request. An empty body is a valid
// request with no id.
func DecodeRequest(data []byte) (*dto.SuperposeRequest, error) {
	var req dto.SuperposeRequest
	if len(data) == 0 {
		return &req, nil
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("unmarshal superpose request: %w", err)
	}
	return &req, nil
}

func (c *Consumer) Close() error {
	if err := c.client.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("Failed to close Kafka consumer")
		return err
	}
	zlog.Logger.Info().Msg("Kafka consumer closed successfully")
	return nil
}
