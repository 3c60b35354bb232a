package services

import (
	"context"
	"testing"
	"time"

	"turf-booking/internal/status"
	"turf-booking/utils"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPaymentService(t *testing.T) (*PaymentService, *LockService, redismock.ClientMock) {
	t.Helper()

	client, mock := redismock.NewClientMock()

	cfg := testConfig()
	cfg.PaymentWebhookKey = "webhook-secret"
	cfg.PaymentChannel = "payment-notifications"

	locks := NewLockService(client, cfg, &fakeBookingChecker{})
	locks.now = func() time.Time { return testNow }

	svc := NewPaymentService(client, nil, cfg, nil, locks)
	svc.now = func() time.Time { return testNow }
	svc.genOrderID = func(userID string) (string, error) { return "order_" + userID + "_abc123", nil }

	return svc, locks, mock
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	svc, _, _ := newTestPaymentService(t)

	body := []byte(`{"order_id":"order_u1_abc","status":"success"}`)

	err := svc.HandleWebhook(context.Background(), body, "deadbeef")
	assert.ErrorIs(t, err, status.ErrForbidden)
}

func TestHandleWebhookRejectsBadPayload(t *testing.T) {
	svc, _, _ := newTestPaymentService(t)
	key := []byte("webhook-secret")

	body := []byte(`not json`)
	err := svc.HandleWebhook(context.Background(), body, utils.Hmac256(body, key))
	assert.ErrorIs(t, err, status.ErrInvalidInput)

	body = []byte(`{"status":"success"}`)
	err = svc.HandleWebhook(context.Background(), body, utils.Hmac256(body, key))
	assert.ErrorIs(t, err, status.ErrInvalidInput)
}

func TestHandleWebhookUnknownOrder(t *testing.T) {
	svc, _, mock := newTestPaymentService(t)
	key := []byte("webhook-secret")

	mock.ExpectHGetAll("order:order_u1_gone").SetVal(map[string]string{})

	body := []byte(`{"order_id":"order_u1_gone","status":"success"}`)
	err := svc.HandleWebhook(context.Background(), body, utils.Hmac256(body, key))
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestCompleteOrderIdempotent(t *testing.T) {
	svc, _, mock := newTestPaymentService(t)

	// A replayed webhook finds the order already completed and does nothing.
	mock.ExpectHGetAll("order:order_u1_abc").SetVal(map[string]string{
		"order_id": "order_u1_abc",
		"lock_id":  "lock_test1",
		"user_id":  "u1",
		"amount":   "750",
		"status":   OrderStatusCompleted,
	})

	err := svc.CompleteOrder(context.Background(), "order_u1_abc")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleWebhookFailureMarksOrder(t *testing.T) {
	svc, _, mock := newTestPaymentService(t)
	key := []byte("webhook-secret")

	mock.ExpectExists("order:order_u1_abc").SetVal(1)
	mock.ExpectHSet("order:order_u1_abc", "status", OrderStatusFailed).SetVal(1)

	body := []byte(`{"order_id":"order_u1_abc","status":"failed"}`)
	err := svc.HandleWebhook(context.Background(), body, utils.Hmac256(body, key))
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderRequiresActiveOwnedLock(t *testing.T) {
	svc, _, mock := newTestPaymentService(t)
	amount := decimal.NewFromInt(750)

	// Lock owned by someone else.
	mock.ExpectGet("slotlock:id:lock_test1").SetVal("hash_a")
	mock.ExpectHGetAll("hash_a").SetVal(lockHash("lock_test1", "u2", testNow.Add(5*time.Minute)))

	_, err := svc.CreateOrder(context.Background(), "u1", "lock_test1", amount)
	assert.ErrorIs(t, err, status.ErrForbidden)

	// Lock gone entirely.
	mock.ExpectGet("slotlock:id:lock_gone").RedisNil()

	_, err = svc.CreateOrder(context.Background(), "u1", "lock_gone", amount)
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestCreateOrderPersistsPendingOrder(t *testing.T) {
	svc, _, mock := newTestPaymentService(t)
	amount := decimal.NewFromInt(750)
	expires := testNow.Add(5 * time.Minute)

	mock.ExpectGet("slotlock:id:lock_test1").SetVal("hash_a")
	mock.ExpectHGetAll("hash_a").SetVal(lockHash("lock_test1", "u1", expires))
	mock.ExpectHSet("order:order_u1_abc123",
		"order_id", "order_u1_abc123",
		"lock_id", "lock_test1",
		"user_id", "u1",
		"amount", "750",
		"status", OrderStatusPending,
		"created_at", testNow.Unix(),
	).SetVal(6)
	mock.ExpectExpireAt("order:order_u1_abc123", time.Unix(expires.Unix(), 0).Add(time.Minute)).SetVal(true)

	order, err := svc.CreateOrder(context.Background(), "u1", "lock_test1", amount)
	require.NoError(t, err)

	assert.Equal(t, "order_u1_abc123", order.OrderID)
	assert.Equal(t, "lock_test1", order.LockID)
	assert.Equal(t, OrderStatusPending, order.Status)
	assert.True(t, order.Amount.Equal(amount))
	assert.NoError(t, mock.ExpectationsWereMet())
}
