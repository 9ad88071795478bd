package rest

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"orderstream/internal/auth"
	"orderstream/internal/models"
)

type Handler struct {
	repository DBRepo
	events     EventPublisher
}

func New(repo DBRepo, events EventPublisher) *Handler {
	return &Handler{
		repository: repo,
		events:     events,
	}
}

// NewRouter mounts the order API behind the session-token middleware plus an
// unauthenticated health endpoint.
func NewRouter(h *Handler, authSvc *auth.Service) chi.Router {
	router := chi.NewRouter()

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	router.Route("/api/orders", func(r chi.Router) {
		r.Use(authSvc.Middleware)
		r.Post("/", h.CreateOrder)
		r.Get("/{orderID}", h.GetOrder)
		r.Patch("/{orderID}/status", h.UpdateOrderStatus)
		r.Post("/{orderID}/messages", h.SendMessage)
		r.Get("/{orderID}/messages", h.GetOrderMessages)
	})

	return router
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, "failed to get session claims", http.StatusInternalServerError)
		return
	}

	if claims.UserType != models.UserTypeCustomer {
		h.writeError(w, "only customers can create orders", http.StatusForbidden)
		return
	}

	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("[REST] failed to decode create order request", "error", err)
		h.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	restaurantID, err := uuid.Parse(req.RestaurantID)
	if err != nil {
		h.writeError(w, "invalid restaurantId", http.StatusBadRequest)
		return
	}

	customerID, err := uuid.Parse(claims.Subject)
	if err != nil {
		h.writeError(w, "invalid customer id in token", http.StatusBadRequest)
		return
	}

	if req.Total < 0 {
		h.writeError(w, "total must not be negative", http.StatusBadRequest)
		return
	}

	order := &models.Order{
		ID:           uuid.New(),
		RestaurantID: restaurantID,
		CustomerID:   customerID,
		Status:       models.StatusPending,
		Total:        req.Total,
	}

	if err := h.repository.CreateOrder(r.Context(), order); err != nil {
		slog.Error("[REST] failed to create order", "error", err)
		h.writeError(w, "failed to create order", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, order, http.StatusCreated)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, _, ok := h.authorizedOrder(w, r)
	if !ok {
		return
	}

	h.writeJSON(w, order, http.StatusOK)
}

func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	order, claims, ok := h.authorizedOrder(w, r)
	if !ok {
		return
	}

	if claims.UserType != models.UserTypeRestaurant {
		h.writeError(w, "only restaurant staff can update order status", http.StatusForbidden)
		return
	}

	var req UpdateOrderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("[REST] failed to decode status update request", "error", err)
		h.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if !req.Status.Valid() {
		h.writeError(w, fmt.Sprintf("unknown status %q", req.Status), http.StatusBadRequest)
		return
	}

	if !order.Status.CanTransitionTo(req.Status) {
		h.writeError(w, fmt.Sprintf("cannot transition from %q to %q", order.Status, req.Status), http.StatusConflict)
		return
	}

	updated, err := h.repository.UpdateOrderStatus(r.Context(), order.ID.String(), req.Status)
	if err != nil {
		slog.Error("[REST] failed to update order status", "order", order.ID, "error", err)
		h.writeError(w, "failed to update order status", http.StatusInternalServerError)
		return
	}

	// Fan-out is best-effort: a bus hiccup must not fail the mutation.
	if err := h.events.PublishOrderStatusUpdated(r.Context(), updated); err != nil {
		slog.Error("[REST] failed to publish order status event", "order", updated.ID, "error", err)
	}
	if err := h.events.PublishStatusUpdated(r.Context(), updated.CustomerID.String(), updated); err != nil {
		slog.Error("[REST] failed to publish user status event", "order", updated.ID, "error", err)
	}

	h.writeJSON(w, updated, http.StatusOK)
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	order, claims, ok := h.authorizedOrder(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("[REST] failed to decode message request", "error", err)
		h.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Message == "" {
		h.writeError(w, "message must not be empty", http.StatusBadRequest)
		return
	}

	message := &models.ChatMessage{
		ID:         uuid.New(),
		OrderID:    order.ID,
		SenderType: claims.UserType,
		Message:    req.Message,
		SentAt:     time.Now(),
	}

	if err := h.repository.SaveMessage(r.Context(), message); err != nil {
		slog.Error("[REST] failed to save message", "order", order.ID, "error", err)
		h.writeError(w, "failed to save message", http.StatusInternalServerError)
		return
	}

	if err := h.events.PublishNewMessage(r.Context(), message); err != nil {
		slog.Error("[REST] failed to publish message event", "order", order.ID, "error", err)
	}

	response := SendMessageResponse{
		MessageID: message.ID.String(),
		SentAt:    message.SentAt.Format(time.RFC3339),
	}

	h.writeJSON(w, response, http.StatusOK)
}

func (h *Handler) GetOrderMessages(w http.ResponseWriter, r *http.Request) {
	order, _, ok := h.authorizedOrder(w, r)
	if !ok {
		return
	}

	limit := int32(0)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || parsed < 0 {
			h.writeError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = int32(parsed)
	}

	messages, err := h.repository.GetOrderMessages(r.Context(), order.ID.String(), limit)
	if err != nil {
		slog.Error("[REST] failed to fetch messages", "order", order.ID, "error", err)
		h.writeError(w, "failed to fetch messages", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, GetOrderMessagesResponse{Messages: *messages}, http.StatusOK)
}

// ----------------------------- helpers -----------------------------

// authorizedOrder loads the order from the path and checks that the caller is
// a participant: the ordering customer or staff of the restaurant.
func (h *Handler) authorizedOrder(w http.ResponseWriter, r *http.Request) (*models.Order, *auth.Claims, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, "failed to get session claims", http.StatusInternalServerError)
		return nil, nil, false
	}

	orderID := chi.URLParam(r, "orderID")
	if _, err := uuid.Parse(orderID); err != nil {
		h.writeError(w, "invalid order id", http.StatusBadRequest)
		return nil, nil, false
	}

	order, err := h.repository.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(w, "order not found", http.StatusNotFound)
			return nil, nil, false
		}
		slog.Error("[REST] failed to fetch order", "order", orderID, "error", err)
		h.writeError(w, "failed to fetch order", http.StatusInternalServerError)
		return nil, nil, false
	}

	isParticipant := (claims.UserType == models.UserTypeCustomer && claims.Subject == order.CustomerID.String()) ||
		(claims.UserType == models.UserTypeRestaurant && claims.Subject == order.RestaurantID.String())
	if !isParticipant {
		h.writeError(w, "not a participant of this order", http.StatusForbidden)
		return nil, nil, false
	}

	return order, claims, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
