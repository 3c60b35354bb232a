package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"turf-booking/config"
	"turf-booking/internal/status"
	"turf-booking/utils"

	pubnub "github.com/pubnub/go"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusFailed    = "failed"
)

// Order ties a pending payment to the lock it will confirm. Orders live in
// Redis with the same TTL as the lock: a payment completing after that window
// finds neither the order nor the lock.
type Order struct {
	OrderID   string          `json:"order_id"`
	LockID    string          `json:"lock_id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	ExpiresAt time.Time       `json:"expires_at"`
}

type paymentNotification struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// PaymentService creates payment orders for active locks and completes them
// when the provider reports success, either over the realtime channel or the
// signed webhook.
type PaymentService struct {
	redis        *redis.Client
	pubnub       *pubnub.PubNub
	Config       *config.Config
	reservations *ReservationService
	locks        *LockService

	now        func() time.Time
	genOrderID func(string) (string, error)
}

func NewPaymentService(redisClient *redis.Client, pn *pubnub.PubNub, cfg *config.Config, reservations *ReservationService, locks *LockService) *PaymentService {
	return &PaymentService{
		redis:        redisClient,
		pubnub:       pn,
		Config:       cfg,
		reservations: reservations,
		locks:        locks,
		now:          time.Now,
		genOrderID:   utils.GenerateOrderID,
	}
}

func orderKey(orderID string) string { return "order:" + orderID }

// CreateOrder opens a pending order against a lock the caller holds. The
// lock must still be active so the payment window never outruns it.
func (s *PaymentService) CreateOrder(ctx context.Context, userID, lockID string, amount decimal.Decimal) (*Order, error) {
	lock, err := s.locks.LookupLock(ctx, lockID)
	if err != nil {
		return nil, err
	}
	if lock.UserID != userID {
		return nil, status.ErrForbidden
	}
	if !lock.Active(s.now()) {
		return nil, status.ErrNotFound
	}

	orderID, err := s.genOrderID(userID)
	if err != nil {
		return nil, fmt.Errorf("generate order id: %w", err)
	}

	order := &Order{
		OrderID:   orderID,
		LockID:    lockID,
		UserID:    userID,
		Amount:    amount,
		Status:    OrderStatusPending,
		ExpiresAt: lock.ExpiresAt,
	}

	key := orderKey(orderID)
	err = s.redis.HSet(ctx, key,
		"order_id", orderID,
		"lock_id", lockID,
		"user_id", userID,
		"amount", amount.String(),
		"status", OrderStatusPending,
		"created_at", s.now().Unix(),
	).Err()
	if err != nil {
		return nil, fmt.Errorf("save order: %w", err)
	}
	s.redis.ExpireAt(ctx, key, lock.ExpiresAt.Add(time.Minute))

	return order, nil
}

// SubscribeToPaymentNotifications blocks on the provider's realtime channel
// and completes orders as success notifications arrive. Run in a goroutine.
func (s *PaymentService) SubscribeToPaymentNotifications() {
	listener := pubnub.NewListener()

	s.pubnub.AddListener(listener)
	s.pubnub.Subscribe().
		Channels([]string{s.Config.PaymentChannel}).
		Execute()

	for message := range listener.Message {
		go s.handlePaymentMessage(message)
	}
}

func (s *PaymentService) handlePaymentMessage(message *pubnub.PNMessage) {
	data, ok := message.Message.(map[string]interface{})
	if !ok {
		return
	}

	raw, _ := json.Marshal(data)

	var notification paymentNotification
	if err := json.Unmarshal(raw, &notification); err != nil {
		log.Printf("payment: unparseable notification: %v", err)
		return
	}

	if notification.Status != "success" {
		return
	}
	if err := s.CompleteOrder(context.Background(), notification.OrderID); err != nil {
		log.Printf("payment: complete order %s: %v", notification.OrderID, err)
	}
}

// HandleWebhook processes the provider's HTTP callback. The raw body must
// carry a valid HMAC signature; the provider may retry, so completion is
// idempotent per order.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !utils.VerifyHmac256(body, []byte(s.Config.PaymentWebhookKey), signature) {
		return status.ErrForbidden
	}

	var notification paymentNotification
	if err := json.Unmarshal(body, &notification); err != nil {
		return status.ErrInvalidInput
	}
	if notification.OrderID == "" {
		return status.ErrInvalidInput
	}

	if notification.Status != "success" {
		return s.failOrder(ctx, notification.OrderID)
	}
	return s.CompleteOrder(ctx, notification.OrderID)
}

// CompleteOrder confirms the booking behind a pending order. A replayed
// completion finds the order no longer pending and returns without effect.
func (s *PaymentService) CompleteOrder(ctx context.Context, orderID string) error {
	key := orderKey(orderID)
	fields, err := s.redis.HGetAll(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("fetch order: %w", err)
	}
	if len(fields) == 0 {
		return status.ErrNotFound
	}
	if fields["status"] != OrderStatusPending {
		return nil
	}

	amount, err := decimal.NewFromString(fields["amount"])
	if err != nil {
		return fmt.Errorf("order %s amount: %w", orderID, err)
	}

	booking, err := s.reservations.ConfirmSlot(ctx, fields["lock_id"], fields["user_id"],
		PaymentResult{OrderID: orderID, Amount: amount})
	if err != nil {
		s.redis.HSet(ctx, key, "status", OrderStatusFailed)
		return err
	}

	s.redis.HSet(ctx, key, "status", OrderStatusCompleted, "booking_id", booking.BookingID)
	return nil
}

func (s *PaymentService) failOrder(ctx context.Context, orderID string) error {
	key := orderKey(orderID)
	exists, err := s.redis.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("fetch order: %w", err)
	}
	if exists == 0 {
		return status.ErrNotFound
	}
	return s.redis.HSet(ctx, key, "status", OrderStatusFailed).Err()
}

// SimulatePayment publishes a success notification to the payment channel.
// Development convenience for exercising the full confirm path end to end.
func (s *PaymentService) SimulatePayment(orderID string) error {
	if s.Config.Environment == "production" {
		return status.ErrForbidden
	}

	payload := paymentNotification{OrderID: orderID, Status: "success"}
	raw, _ := json.Marshal(payload)

	var message map[string]any
	json.Unmarshal(raw, &message)

	_, _, err := s.pubnub.Publish().
		Channel(s.Config.PaymentChannel).
		Message(message).
		Execute()
	return err
}
