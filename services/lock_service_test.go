package services

import (
	"context"
	"strconv"
	"testing"
	"time"

	"turf-booking/config"
	"turf-booking/internal/status"
	"turf-booking/models"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

type fakeBookingChecker struct {
	booked map[string]bool
	err    error
}

func (f *fakeBookingChecker) HasConfirmedBooking(ctx context.Context, key models.SlotKey) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.booked[key.Key()], nil
}

func testConfig() *config.Config {
	return &config.Config{
		LockTTL:      10 * time.Minute,
		SlotMutexTTL: 3 * time.Second,
		MutexWait:    500 * time.Millisecond,
		StoreTimeout: 5 * time.Second,
	}
}

func newTestLockService(t *testing.T, checker *fakeBookingChecker) (*LockService, redismock.ClientMock) {
	t.Helper()

	client, mock := redismock.NewClientMock()
	svc := NewLockService(client, testConfig(), checker)

	svc.now = func() time.Time { return testNow }
	svc.genID = func() (string, error) { return "lock_test1", nil }
	svc.genTok = func() string { return "tok1" }

	return svc, mock
}

func testKey(t *testing.T) models.SlotKey {
	t.Helper()
	key, err := models.NewSlotKey("v1", "t1", "cricket", "2026-09-01", "06:00-07:00")
	require.NoError(t, err)
	return key
}

func expectMutex(mock redismock.ClientMock, key models.SlotKey) {
	mock.ExpectSetNX("slotmutex:"+key.Key(), "tok1", 3*time.Second).SetVal(true)
}

func expectMutexRelease(mock redismock.ClientMock, key models.SlotKey) {
	mock.ExpectEval(unlockMutexScript, []string{"slotmutex:" + key.Key()}, "tok1").SetVal(int64(1))
}

func TestTryLockCreates(t *testing.T) {
	key := testKey(t)
	svc, mock := newTestLockService(t, &fakeBookingChecker{})

	now := testNow.Unix()
	ttl := int64(600)
	expires := now + ttl

	expectMutex(mock, key)
	mock.ExpectEval(tryLockScript,
		[]string{"slotlock:active:" + key.Key(), "slotlock:owner:u1", "slotlock:id:lock_test1"},
		now, ttl, "lock_test1", "u1",
		"v1", "t1", "cricket", "2026-09-01", "06:00-07:00",
		ttl*2,
	).SetVal([]any{"created", "lock_test1", expires})
	expectMutexRelease(mock, key)

	result, err := svc.TryLock(context.Background(), key, "u1")
	require.NoError(t, err)

	assert.Equal(t, "lock_test1", result.LockID)
	assert.Equal(t, expires, result.ExpiresAt.Unix())
	assert.False(t, result.Extended)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTryLockExtendsOwnLock(t *testing.T) {
	key := testKey(t)
	svc, mock := newTestLockService(t, &fakeBookingChecker{})

	now := testNow.Unix()
	ttl := int64(600)

	expectMutex(mock, key)
	mock.ExpectEval(tryLockScript,
		[]string{"slotlock:active:" + key.Key(), "slotlock:owner:u1", "slotlock:id:lock_test1"},
		now, ttl, "lock_test1", "u1",
		"v1", "t1", "cricket", "2026-09-01", "06:00-07:00",
		ttl*2,
	).SetVal([]any{"extended", "lock_orig", now + ttl})
	expectMutexRelease(mock, key)

	result, err := svc.TryLock(context.Background(), key, "u1")
	require.NoError(t, err)

	// The original lock id survives an extension.
	assert.Equal(t, "lock_orig", result.LockID)
	assert.True(t, result.Extended)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTryLockConflict(t *testing.T) {
	key := testKey(t)
	svc, mock := newTestLockService(t, &fakeBookingChecker{})

	now := testNow.Unix()
	ttl := int64(600)
	otherExpires := now + 240

	expectMutex(mock, key)
	mock.ExpectEval(tryLockScript,
		[]string{"slotlock:active:" + key.Key(), "slotlock:owner:u2", "slotlock:id:lock_test1"},
		now, ttl, "lock_test1", "u2",
		"v1", "t1", "cricket", "2026-09-01", "06:00-07:00",
		ttl*2,
	).SetVal([]any{"conflict", "", otherExpires})
	expectMutexRelease(mock, key)

	_, err := svc.TryLock(context.Background(), key, "u2")
	require.Error(t, err)

	var conflict *status.LockConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(240), conflict.RemainingSeconds())
	assert.True(t, status.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTryLockBookedSlotWins(t *testing.T) {
	key := testKey(t)
	checker := &fakeBookingChecker{booked: map[string]bool{key.Key(): true}}
	svc, mock := newTestLockService(t, checker)

	expectMutex(mock, key)
	expectMutexRelease(mock, key)

	_, err := svc.TryLock(context.Background(), key, "u1")
	assert.ErrorIs(t, err, status.ErrSlotBooked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTryLockMutexBusy(t *testing.T) {
	key := testKey(t)
	svc, mock := newTestLockService(t, &fakeBookingChecker{})

	// Real clock so the retry deadline can actually pass.
	svc.now = time.Now
	svc.Config.MutexWait = time.Millisecond

	mock.ExpectSetNX("slotmutex:"+key.Key(), "tok1", 3*time.Second).SetVal(false)
	mock.ExpectSetNX("slotmutex:"+key.Key(), "tok1", 3*time.Second).SetVal(false)

	_, err := svc.TryLock(context.Background(), key, "u1")
	assert.ErrorIs(t, err, status.ErrTimeout)
}

func TestReleaseSuccess(t *testing.T) {
	key := testKey(t)
	svc, mock := newTestLockService(t, &fakeBookingChecker{})

	hashKey := "slotlock:active:" + key.Key()
	mock.ExpectGet("slotlock:id:lock_test1").SetVal(hashKey)
	mock.ExpectEval(releaseScript,
		[]string{hashKey, "slotlock:id:lock_test1", "slotlock:owner:u1"},
		"u1",
	).SetVal("released")

	err := svc.Release(context.Background(), "lock_test1", "u1")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseNotFound(t *testing.T) {
	svc, mock := newTestLockService(t, &fakeBookingChecker{})

	mock.ExpectGet("slotlock:id:lock_gone").RedisNil()

	err := svc.Release(context.Background(), "lock_gone", "u1")
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestReleaseForbidden(t *testing.T) {
	key := testKey(t)
	svc, mock := newTestLockService(t, &fakeBookingChecker{})

	hashKey := "slotlock:active:" + key.Key()
	mock.ExpectGet("slotlock:id:lock_test1").SetVal(hashKey)
	mock.ExpectEval(releaseScript,
		[]string{hashKey, "slotlock:id:lock_test1", "slotlock:owner:u2"},
		"u2",
	).SetVal("forbidden")

	err := svc.Release(context.Background(), "lock_test1", "u2")
	assert.ErrorIs(t, err, status.ErrForbidden)
}

func TestReleaseConfirmedLockRefused(t *testing.T) {
	svc, mock := newTestLockService(t, &fakeBookingChecker{})

	// After confirmation the id mapping points at the retained audit hash;
	// the script refuses to delete it.
	hashKey := "slotlock:confirmed:lock_test1"
	mock.ExpectGet("slotlock:id:lock_test1").SetVal(hashKey)
	mock.ExpectEval(releaseScript,
		[]string{hashKey, "slotlock:id:lock_test1", "slotlock:owner:u1"},
		"u1",
	).SetVal("not_found")

	err := svc.Release(context.Background(), "lock_test1", "u1")
	assert.ErrorIs(t, err, status.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmLockSuccess(t *testing.T) {
	key := testKey(t)
	svc, mock := newTestLockService(t, &fakeBookingChecker{})

	hashKey := "slotlock:active:" + key.Key()
	mock.ExpectGet("slotlock:id:lock_test1").SetVal(hashKey)
	mock.ExpectEval(confirmScript,
		[]string{hashKey, "slotlock:id:lock_test1", "slotlock:owner:u1", "slotlock:confirmed:lock_test1"},
		"u1", testNow.Unix(),
	).SetVal("confirmed")

	err := svc.ConfirmLock(context.Background(), "lock_test1", "u1")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmLockExpired(t *testing.T) {
	key := testKey(t)
	svc, mock := newTestLockService(t, &fakeBookingChecker{})

	hashKey := "slotlock:active:" + key.Key()
	mock.ExpectGet("slotlock:id:lock_test1").SetVal(hashKey)
	mock.ExpectEval(confirmScript,
		[]string{hashKey, "slotlock:id:lock_test1", "slotlock:owner:u1", "slotlock:confirmed:lock_test1"},
		"u1", testNow.Unix(),
	).SetVal("expired")

	err := svc.ConfirmLock(context.Background(), "lock_test1", "u1")
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func lockHash(lockID, userID string, expiresAt time.Time) map[string]string {
	return map[string]string{
		"lock_id":    lockID,
		"vendor_id":  "v1",
		"turf_id":    "t1",
		"sport":      "cricket",
		"date":       "2026-09-01",
		"time_slot":  "06:00-07:00",
		"user_id":    userID,
		"locked_at":  strconv.FormatInt(testNow.Unix(), 10),
		"expires_at": strconv.FormatInt(expiresAt.Unix(), 10),
		"status":     "locked",
	}
}

func TestQuerySlotStatuses(t *testing.T) {
	bookedKey, err := models.NewSlotKey("v1", "t1", "cricket", "2026-09-01", "05:00-06:00")
	require.NoError(t, err)

	checker := &fakeBookingChecker{booked: map[string]bool{bookedKey.Key(): true}}
	svc, mock := newTestLockService(t, checker)

	slots := []string{"05:00-06:00", "06:00-07:00", "07:00-08:00", "08:00-09:00", "09:00-10:00"}

	// 06:00 locked by another user, 07:00 locked by the caller, 08:00 has an
	// expired lock, 09:00 has no lock at all.
	prefix := "slotlock:active:v1:t1:cricket:2026-09-01:"
	mock.ExpectHGetAll(prefix + "06:00-07:00").SetVal(lockHash("lock_a", "u2", testNow.Add(4*time.Minute)))
	mock.ExpectHGetAll(prefix + "07:00-08:00").SetVal(lockHash("lock_b", "u1", testNow.Add(8*time.Minute)))
	mock.ExpectHGetAll(prefix + "08:00-09:00").SetVal(lockHash("lock_c", "u3", testNow.Add(-time.Minute)))
	mock.ExpectHGetAll(prefix + "09:00-10:00").SetVal(map[string]string{})

	statuses, err := svc.QuerySlotStatuses(context.Background(),
		"v1", "t1", "cricket", "2026-09-01", slots, "u1")
	require.NoError(t, err)
	require.Len(t, statuses, 5)

	assert.Equal(t, models.SlotBooked, statuses[0].Status)

	assert.Equal(t, models.SlotLocked, statuses[1].Status)
	assert.Empty(t, statuses[1].LockID)
	assert.Equal(t, int64(240), statuses[1].ExpiresIn)

	assert.Equal(t, models.SlotSelected, statuses[2].Status)
	assert.Equal(t, "lock_b", statuses[2].LockID)

	assert.Equal(t, models.SlotAvailable, statuses[3].Status)
	assert.Equal(t, models.SlotAvailable, statuses[4].Status)
}

func TestSweepExpired(t *testing.T) {
	svc, mock := newTestLockService(t, &fakeBookingChecker{})

	keyA := "slotlock:active:v1:t1:cricket:2026-09-01:06:00-07:00"
	keyB := "slotlock:active:v1:t1:cricket:2026-09-01:07:00-08:00"

	mock.ExpectKeys("slotlock:active:*").SetVal([]string{keyA, keyB})
	mock.ExpectEval(sweepScript, []string{keyA}, testNow.Unix()).SetVal(int64(1))
	mock.ExpectEval(sweepScript, []string{keyB}, testNow.Unix()).SetVal(int64(0))

	swept, err := svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, swept)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveLocksForOwnerFiltersExpired(t *testing.T) {
	svc, mock := newTestLockService(t, &fakeBookingChecker{})

	mock.ExpectSMembers("slotlock:owner:u1").SetVal([]string{"lock_a", "lock_b", "lock_gone"})

	mock.ExpectGet("slotlock:id:lock_a").SetVal("hash_a")
	mock.ExpectHGetAll("hash_a").SetVal(lockHash("lock_a", "u1", testNow.Add(5*time.Minute)))

	mock.ExpectGet("slotlock:id:lock_b").SetVal("hash_b")
	mock.ExpectHGetAll("hash_b").SetVal(lockHash("lock_b", "u1", testNow.Add(-time.Minute)))

	mock.ExpectGet("slotlock:id:lock_gone").RedisNil()

	locks, err := svc.ActiveLocksForOwner(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, "lock_a", locks[0].LockID)
}

func TestReleaseAllForOwner(t *testing.T) {
	svc, mock := newTestLockService(t, &fakeBookingChecker{})

	mock.ExpectSMembers("slotlock:owner:u1").SetVal([]string{"lock_a", "lock_gone"})

	mock.ExpectGet("slotlock:id:lock_a").SetVal("hash_a")
	mock.ExpectEval(releaseScript,
		[]string{"hash_a", "slotlock:id:lock_a", "slotlock:owner:u1"},
		"u1",
	).SetVal("released")

	// Already swept away; tolerated.
	mock.ExpectGet("slotlock:id:lock_gone").RedisNil()

	released, err := svc.ReleaseAllForOwner(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, released)
	assert.NoError(t, mock.ExpectationsWereMet())
}
