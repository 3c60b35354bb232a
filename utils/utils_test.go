package utils

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateLockID(t *testing.T) {
	id, err := GenerateLockID()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(id, "lock_"))
	assert.Len(t, id, len("lock_")+24)
	assert.Equal(t, strings.ToLower(id), id)

	other, err := GenerateLockID()
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
}

func TestGenerateOrderID(t *testing.T) {
	id, err := GenerateOrderID("u1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "order_u1_"))
}

func TestHmac256Verify(t *testing.T) {
	body := []byte(`{"order_id":"order_u1_abc","status":"success"}`)
	key := []byte("webhook-secret")

	sig := Hmac256(body, key)
	assert.True(t, VerifyHmac256(body, key, sig))

	assert.False(t, VerifyHmac256(body, key, sig+"00"))
	assert.False(t, VerifyHmac256(body, []byte("wrong-key"), sig))
	assert.False(t, VerifyHmac256([]byte(`tampered`), key, sig))
}

func TestBcryptHashRoundTrip(t *testing.T) {
	hash, err := GenerateHash("ops-token")
	require.NoError(t, err)

	assert.True(t, CompareHash(hash, "ops-token"))
	assert.False(t, CompareHash(hash, "wrong-token"))
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", BreakerSettings{
		MaxRequests:  3,
		FailureRatio: 0.6,
		Timeout:      50 * time.Millisecond,
	})

	boom := errors.New("boom")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(ctx, func() (any, error) { return nil, boom })
		assert.ErrorIs(t, err, boom)
	}

	_, err := cb.Execute(ctx, func() (any, error) { return "ok", nil })
	assert.ErrorIs(t, err, ErrBreakerOpen)
}

func TestCircuitBreakerRecovers(t *testing.T) {
	cb := NewCircuitBreaker("test", BreakerSettings{
		MaxRequests:  2,
		FailureRatio: 0.5,
		Timeout:      20 * time.Millisecond,
	})

	boom := errors.New("boom")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		cb.Execute(ctx, func() (any, error) { return nil, boom })
	}
	_, err := cb.Execute(ctx, func() (any, error) { return "ok", nil })
	require.ErrorIs(t, err, ErrBreakerOpen)

	time.Sleep(30 * time.Millisecond)

	// Half-open trial request succeeds and closes the breaker again.
	result, err := cb.Execute(ctx, func() (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", result)

	_, err = cb.Execute(ctx, func() (any, error) { return "ok", nil })
	assert.NoError(t, err)
}

func TestCircuitBreakerPassesResults(t *testing.T) {
	cb := NewCircuitBreaker("test", BreakerSettings{})

	result, err := cb.Execute(context.Background(), func() (any, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}
