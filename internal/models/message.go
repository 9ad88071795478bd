package models

import (
	"time"

	"github.com/google/uuid"
)

type ChatMessageList []ChatMessage

// ChatMessage is one chat line on an order, exchanged between the customer and
// the restaurant staff handling the order.
type ChatMessage struct {
	ID         uuid.UUID `db:"id" json:"id"`
	OrderID    uuid.UUID `db:"order_id" json:"orderId"`
	SenderType string    `db:"sender_type" json:"senderType"`
	Message    string    `db:"message" json:"message"`
	SentAt     time.Time `db:"sent_at" json:"sentAt"`
}
