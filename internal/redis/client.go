package redis

import (
	"context"
	"log/slog"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"

	"orderstream/internal/models"
)

// Channel name prefixes on the event bus. Order events fan out to the order's
// room, user events go to one user's connections.
const (
	orderChannelPrefix = "order:"
	userChannelPrefix  = "user:"
)

type Client struct {
	rdb *redis.Client
	ctx context.Context
}

func NewClient(redisURL string) *Client {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		slog.Error("Failed to parse Redis URL", "error", err)
		panic(err)
	}

	rdb := redis.NewClient(opt)
	ctx := context.Background()

	// Test connection
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		panic(err)
	}

	slog.Info("Connected to Redis")

	return &Client{
		rdb: rdb,
		ctx: ctx,
	}
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Publish events to Redis. Payloads are the client-facing frames; the
// subscriber side forwards them to connections verbatim.

func (c *Client) PublishNewMessage(ctx context.Context, msg *models.ChatMessage) error {
	frame := models.NewChatMessageEvent(*msg)
	return c.publish(ctx, orderChannelPrefix+msg.OrderID.String(), frame)
}

func (c *Client) PublishOrderStatusUpdated(ctx context.Context, order *models.Order) error {
	frame := models.NewOrderStatusEvent(models.TypeOrderStatusUpdated, order)
	return c.publish(ctx, orderChannelPrefix+order.ID.String(), frame)
}

func (c *Client) PublishStatusUpdated(ctx context.Context, userID string, order *models.Order) error {
	frame := models.NewOrderStatusEvent(models.TypeStatusUpdated, order)
	return c.publish(ctx, userChannelPrefix+userID, frame)
}

func (c *Client) publish(ctx context.Context, channel string, frame interface{}) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		slog.Error("[REDIS] Failed to marshal event", "channel", channel, "error", err)
		return err
	}

	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		slog.Error("[REDIS] Failed to publish event", "channel", channel, "error", err)
		return err
	}

	return nil
}
