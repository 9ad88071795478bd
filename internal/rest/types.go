package rest

import "orderstream/internal/models"

type CreateOrderRequest struct {
	RestaurantID string  `json:"restaurantId"`
	Total        float64 `json:"total"`
}

type UpdateOrderStatusRequest struct {
	Status models.OrderStatus `json:"status"`
}

type SendMessageRequest struct {
	Message string `json:"message"`
}

type SendMessageResponse struct {
	MessageID string `json:"messageId"`
	SentAt    string `json:"sentAt"`
}

type GetOrderMessagesResponse struct {
	Messages models.ChatMessageList `json:"messages"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
