package rest

import (
	"context"

	"orderstream/internal/models"
)

type DBRepo interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) (*models.Order, error)
	SaveMessage(ctx context.Context, message *models.ChatMessage) error
	GetOrderMessages(ctx context.Context, orderID string, limit int32) (*models.ChatMessageList, error)
}

type EventPublisher interface {
	PublishNewMessage(ctx context.Context, msg *models.ChatMessage) error
	PublishOrderStatusUpdated(ctx context.Context, order *models.Order) error
	PublishStatusUpdated(ctx context.Context, userID string, order *models.Order) error
}
