package redis

import (
	"log/slog"
	"strings"

	"orderstream/internal/ws"
)

// SubscribeToEvents feeds order and user events from the bus into the hub.
// Runs until the pub/sub channel closes. Every server instance subscribes, so
// fan-out reaches connections regardless of which instance they landed on.
func SubscribeToEvents(client *Client, hub *ws.Hub) {
	slog.Info("[REDIS] Starting Redis pub/sub subscription...")

	pubsub := client.rdb.PSubscribe(client.ctx, orderChannelPrefix+"*", userChannelPrefix+"*")
	defer pubsub.Close()

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(client.ctx); err != nil {
		slog.Error("[REDIS] Failed to receive subscription confirmation", "error", err)
		return
	}

	slog.Info("[REDIS] Subscription confirmed, listening for events...")

	for msg := range pubsub.Channel() {
		switch {
		case strings.HasPrefix(msg.Channel, orderChannelPrefix):
			orderID := strings.TrimPrefix(msg.Channel, orderChannelPrefix)
			hub.Broadcast(orderID, []byte(msg.Payload))

		case strings.HasPrefix(msg.Channel, userChannelPrefix):
			userID := strings.TrimPrefix(msg.Channel, userChannelPrefix)
			hub.SendToUser(userID, []byte(msg.Payload))

		default:
			slog.Warn("[REDIS] Event on unexpected channel", "channel", msg.Channel)
		}
	}

	slog.Info("[REDIS] Redis pub/sub channel closed")
}
