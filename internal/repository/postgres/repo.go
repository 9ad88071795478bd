package postgres

import (
	"context"
	"fmt"
	"log"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"orderstream/internal/config"
	"orderstream/internal/models"
)

const defaultMessageLimit = 50

type Repository struct {
	connection *sqlx.DB
}

func New(cfg *config.Config) *Repository {
	conStr := fmt.Sprintf("user=%s password=%s dbname=%s host=%s port=%s sslmode=disable",
		cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.Database, cfg.Postgres.Host, cfg.Postgres.Port)

	conn, err := sqlx.Connect("postgres", conStr)
	if err != nil {
		log.Fatal("error connect: ", err)
	}

	return &Repository{
		connection: conn,
	}
}

func (r *Repository) Close() {
	_ = r.connection.Close()
}

func (r *Repository) CreateOrder(ctx context.Context, order *models.Order) error {
	query, args, err := sq.Insert("orders").
		Columns("id", "restaurant_id", "customer_id", "status", "total").
		Values(order.ID, order.RestaurantID, order.CustomerID, order.Status, order.Total).
		Suffix("RETURNING created_at, updated_at").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build sql query: %v", err)
	}

	row := r.connection.QueryRowxContext(ctx, query, args...)
	if err := row.Scan(&order.CreatedAt, &order.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create order: %v", err)
	}

	return nil
}

func (r *Repository) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	query, args, err := sq.Select(
		"id",
		"restaurant_id",
		"customer_id",
		"status",
		"total",
		"created_at",
		"updated_at",
	).
		From("orders").
		Where(sq.Eq{"id": orderID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %v", err)
	}

	var order models.Order
	if err := r.connection.GetContext(ctx, &order, query, args...); err != nil {
		return nil, err
	}

	return &order, nil
}

func (r *Repository) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) (*models.Order, error) {
	query, args, err := sq.Update("orders").
		Set("status", status).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": orderID}).
		Suffix("RETURNING id, restaurant_id, customer_id, status, total, created_at, updated_at").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %v", err)
	}

	var order models.Order
	if err := r.connection.GetContext(ctx, &order, query, args...); err != nil {
		return nil, fmt.Errorf("failed to update order status: %v", err)
	}

	return &order, nil
}

func (r *Repository) SaveMessage(ctx context.Context, message *models.ChatMessage) error {
	query, args, err := sq.Insert("order_messages").
		Columns("id", "order_id", "sender_type", "message", "sent_at").
		Values(message.ID, message.OrderID, message.SenderType, message.Message, message.SentAt).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build sql query: %v", err)
	}

	if _, err := r.connection.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save message: %v", err)
	}

	return nil
}

func (r *Repository) GetOrderMessages(ctx context.Context, orderID string, limit int32) (*models.ChatMessageList, error) {
	queryBuilder := sq.Select(
		"id",
		"order_id",
		"sender_type",
		"message",
		"sent_at",
	).
		From("order_messages").
		Where(sq.Eq{"order_id": orderID}).
		OrderBy("sent_at DESC")

	if limit > 0 {
		queryBuilder = queryBuilder.Limit(uint64(limit))
	} else {
		queryBuilder = queryBuilder.Limit(defaultMessageLimit)
	}

	query, args, err := queryBuilder.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %v", err)
	}

	var messages models.ChatMessageList
	if err := r.connection.SelectContext(ctx, &messages, query, args...); err != nil {
		return nil, err
	}

	return &messages, nil
}
