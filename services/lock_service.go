package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"turf-booking/config"
	"turf-booking/internal/status"
	"turf-booking/models"
	"turf-booking/monitoring"
	"turf-booking/utils"

	"github.com/redis/go-redis/v9"
)

// BookingChecker is the slice of the booking store the lock path needs:
// a confirmed booking always supersedes any lock attempt.
type BookingChecker interface {
	HasConfirmedBooking(ctx context.Context, key models.SlotKey) (bool, error)
}

// LockResult is the outcome of a successful TryLock. Extended marks the
// same-owner re-lock path, which mutates the existing record in place.
type LockResult struct {
	LockID    string    `json:"lock_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Extended  bool      `json:"extended"`
}

// tryLockScript runs the active-lock check and the create/extend write as one
// atomic unit on the lock hash. KEYS: slot hash, owner set, lockId mapping.
// ARGV: now, ttl seconds, lock id, user id, vendor, turf, sport, date,
// time slot, safety ttl seconds.
const tryLockScript = `
local now = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])
local status = redis.call("HGET", KEYS[1], "status")
local expires = tonumber(redis.call("HGET", KEYS[1], "expires_at") or "0")
if status == "locked" and expires > now then
  if redis.call("HGET", KEYS[1], "user_id") == ARGV[4] then
    local newExpires = now + ttl
    redis.call("HSET", KEYS[1], "expires_at", newExpires, "locked_at", now)
    redis.call("EXPIRE", KEYS[1], tonumber(ARGV[10]))
    return {"extended", redis.call("HGET", KEYS[1], "lock_id"), newExpires}
  end
  return {"conflict", "", expires}
end
if status == "locked" then
  local staleId = redis.call("HGET", KEYS[1], "lock_id")
  local staleOwner = redis.call("HGET", KEYS[1], "user_id")
  if staleId then
    redis.call("DEL", "slotlock:id:" .. staleId)
    redis.call("SREM", "slotlock:owner:" .. staleOwner, staleId)
  end
end
redis.call("DEL", KEYS[1])
redis.call("HSET", KEYS[1],
  "lock_id", ARGV[3], "user_id", ARGV[4],
  "vendor_id", ARGV[5], "turf_id", ARGV[6], "sport", ARGV[7],
  "date", ARGV[8], "time_slot", ARGV[9],
  "locked_at", now, "expires_at", now + ttl, "status", "locked")
redis.call("EXPIRE", KEYS[1], tonumber(ARGV[10]))
redis.call("SET", KEYS[3], KEYS[1])
redis.call("SADD", KEYS[2], ARGV[3])
return {"created", ARGV[3], now + ttl}
`

// releaseScript deletes a lock after verifying ownership. A confirmed record
// is the audit trail of a paid booking and is never releasable through here.
// KEYS: slot hash, lockId mapping, owner set. ARGV: user id.
const releaseScript = `
local owner = redis.call("HGET", KEYS[1], "user_id")
if not owner then
  redis.call("DEL", KEYS[2])
  return "not_found"
end
if redis.call("HGET", KEYS[1], "status") == "confirmed" then
  return "not_found"
end
if owner ~= ARGV[1] then
  return "forbidden"
end
local lockId = redis.call("HGET", KEYS[1], "lock_id")
redis.call("DEL", KEYS[1])
redis.call("DEL", KEYS[2])
redis.call("SREM", KEYS[3], lockId)
return "released"
`

// confirmScript flips an active lock to confirmed and moves it out of the
// active keyspace so it is never swept and never blocks a later lock attempt
// after cancellation. KEYS: slot hash, lockId mapping, owner set, confirmed
// hash. ARGV: user id, now.
const confirmScript = `
local owner = redis.call("HGET", KEYS[1], "user_id")
if not owner then
  return "not_found"
end
if owner ~= ARGV[1] then
  return "forbidden"
end
local status = redis.call("HGET", KEYS[1], "status")
local expires = tonumber(redis.call("HGET", KEYS[1], "expires_at") or "0")
if status ~= "locked" or expires <= tonumber(ARGV[2]) then
  return "expired"
end
local lockId = redis.call("HGET", KEYS[1], "lock_id")
redis.call("RENAME", KEYS[1], KEYS[4])
redis.call("HSET", KEYS[4], "status", "confirmed", "confirmed_at", ARGV[2])
redis.call("PERSIST", KEYS[4])
redis.call("SET", KEYS[2], KEYS[4])
redis.call("SREM", KEYS[3], lockId)
return "confirmed"
`

// sweepScript deletes one lock hash iff it is still "locked" and past expiry,
// together with its secondary keys. Deleting an already-deleted record is a
// no-op, so the sweep is safe to run repeatedly or concurrently.
// KEYS: slot hash. ARGV: now.
const sweepScript = `
local status = redis.call("HGET", KEYS[1], "status")
if status ~= "locked" then
  return 0
end
local expires = tonumber(redis.call("HGET", KEYS[1], "expires_at") or "0")
if expires > tonumber(ARGV[1]) then
  return 0
end
local lockId = redis.call("HGET", KEYS[1], "lock_id")
local owner = redis.call("HGET", KEYS[1], "user_id")
redis.call("DEL", KEYS[1])
if lockId then
  redis.call("DEL", "slotlock:id:" .. lockId)
end
if lockId and owner then
  redis.call("SREM", "slotlock:owner:" .. owner, lockId)
end
return 1
`

// unlockMutexScript releases the per-slot advisory mutex only if the caller
// still holds it. KEYS: mutex key. ARGV: token.
const unlockMutexScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// LockService is the lock store: the single source of truth for in-progress
// slot reservations. All coordination happens through Redis so multiple
// server instances can run concurrently.
type LockService struct {
	Redis    *redis.Client
	Config   *config.Config
	bookings BookingChecker

	now    func() time.Time
	genID  func() (string, error)
	genTok func() string
}

func NewLockService(redisClient *redis.Client, cfg *config.Config, bookings BookingChecker) *LockService {
	return &LockService{
		Redis:    redisClient,
		Config:   cfg,
		bookings: bookings,
		now:      time.Now,
		genID:    utils.GenerateLockID,
		genTok: func() string {
			tok, _ := utils.GenerateCode(8)
			return tok
		},
	}
}

func slotHashKey(key models.SlotKey) string { return "slotlock:active:" + key.Key() }
func lockIDKey(lockID string) string { return "slotlock:id:" + lockID }
func ownerSetKey(userID string) string { return "slotlock:owner:" + userID }
func confirmedHashKey(lockID string) string { return "slotlock:confirmed:" + lockID }
func slotMutexKey(key models.SlotKey) string { return "slotmutex:" + key.Key() }

// TryLock attempts to reserve a slot for ownerID. The booked-check and the
// lock write are serialized per SlotKey by the advisory mutex; the lock-hash
// check-then-act itself is a single Lua script, so two concurrent callers can
// never both observe a free slot.
func (s *LockService) TryLock(ctx context.Context, key models.SlotKey, ownerID string) (*LockResult, error) {
	token, err := s.acquireSlotMutex(ctx, key)
	if err != nil {
		monitoring.TrackLockOperation("lock", "busy")
		return nil, err
	}
	defer s.releaseSlotMutex(ctx, key, token)

	booked, err := s.bookings.HasConfirmedBooking(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("check bookings: %w", err)
	}
	if booked {
		monitoring.TrackLockOperation("lock", "booked")
		return nil, status.ErrSlotBooked
	}

	lockID, err := s.genID()
	if err != nil {
		return nil, fmt.Errorf("generate lock id: %w", err)
	}

	now := s.now().Unix()
	ttl := int64(s.Config.LockTTL.Seconds())

	res, err := s.Redis.Eval(ctx, tryLockScript,
		[]string{slotHashKey(key), ownerSetKey(ownerID), lockIDKey(lockID)},
		now, ttl, lockID, ownerID,
		key.VendorID, key.TurfID, key.Sport, key.Date, key.TimeSlot,
		ttl*2,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("try lock: %w", err)
	}

	parts, ok := res.([]any)
	if !ok || len(parts) != 3 {
		return nil, fmt.Errorf("try lock: unexpected script reply %v", res)
	}

	outcome, _ := parts[0].(string)
	switch outcome {
	case "created", "extended":
		id, _ := parts[1].(string)
		expires := asInt64(parts[2])
		monitoring.TrackLockOperation("lock", outcome)
		return &LockResult{
			LockID:    id,
			ExpiresAt: time.Unix(expires, 0),
			Extended:  outcome == "extended",
		}, nil
	case "conflict":
		expires := time.Unix(asInt64(parts[2]), 0)
		monitoring.TrackLockOperation("lock", "conflict")
		return nil, &status.LockConflictError{
			ExpiresAt: expires,
			Remaining: expires.Sub(s.now()),
		}
	default:
		return nil, fmt.Errorf("try lock: unexpected outcome %q", outcome)
	}
}

// Release deletes a lock owned by ownerID.
func (s *LockService) Release(ctx context.Context, lockID, ownerID string) error {
	hashKey, err := s.Redis.Get(ctx, lockIDKey(lockID)).Result()
	if err == redis.Nil {
		return status.ErrNotFound
	} else if err != nil {
		return fmt.Errorf("resolve lock: %w", err)
	}

	res, err := s.Redis.Eval(ctx, releaseScript,
		[]string{hashKey, lockIDKey(lockID), ownerSetKey(ownerID)},
		ownerID,
	).Result()
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}

	switch res {
	case "released":
		monitoring.TrackLockOperation("release", "success")
		return nil
	case "not_found":
		return status.ErrNotFound
	case "forbidden":
		monitoring.TrackLockOperation("release", "forbidden")
		return status.ErrForbidden
	default:
		return fmt.Errorf("release lock: unexpected outcome %v", res)
	}
}

// ConfirmLock transitions an active lock to confirmed. The record is retained
// (without TTL) as the audit trail of which lock produced which booking; the
// expiry sweep never touches it.
func (s *LockService) ConfirmLock(ctx context.Context, lockID, ownerID string) error {
	hashKey, err := s.Redis.Get(ctx, lockIDKey(lockID)).Result()
	if err == redis.Nil {
		return status.ErrNotFound
	} else if err != nil {
		return fmt.Errorf("resolve lock: %w", err)
	}

	res, err := s.Redis.Eval(ctx, confirmScript,
		[]string{hashKey, lockIDKey(lockID), ownerSetKey(ownerID), confirmedHashKey(lockID)},
		ownerID, s.now().Unix(),
	).Result()
	if err != nil {
		return fmt.Errorf("confirm lock: %w", err)
	}

	switch res {
	case "confirmed":
		monitoring.TrackLockOperation("confirm", "success")
		return nil
	case "not_found", "expired":
		return status.ErrNotFound
	case "forbidden":
		monitoring.TrackLockOperation("confirm", "forbidden")
		return status.ErrForbidden
	default:
		return fmt.Errorf("confirm lock: unexpected outcome %v", res)
	}
}

// LookupLock fetches a lock by id regardless of state.
func (s *LockService) LookupLock(ctx context.Context, lockID string) (*models.SlotLock, error) {
	hashKey, err := s.Redis.Get(ctx, lockIDKey(lockID)).Result()
	if err == redis.Nil {
		return nil, status.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("resolve lock: %w", err)
	}

	fields, err := s.Redis.HGetAll(ctx, hashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch lock: %w", err)
	}
	if len(fields) == 0 {
		return nil, status.ErrNotFound
	}

	return models.LockFromHash(fields), nil
}

// QuerySlotStatuses is the batch read-only projection backing the client's
// polling UI. Expired locks are reported as available even before the sweep
// physically removes them.
func (s *LockService) QuerySlotStatuses(ctx context.Context, vendorID, turfID, sport, date string, timeSlots []string, callerID string) ([]models.SlotStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Config.StoreTimeout)
	defer cancel()

	now := s.now()
	statuses := make([]models.SlotStatus, 0, len(timeSlots))

	for _, slot := range timeSlots {
		key, err := models.NewSlotKey(vendorID, turfID, sport, date, slot)
		if err != nil {
			return nil, err
		}

		booked, err := s.bookings.HasConfirmedBooking(ctx, key)
		if err != nil {
			return nil, translateDeadline(err)
		}
		if booked {
			statuses = append(statuses, models.SlotStatus{TimeSlot: slot, Status: models.SlotBooked})
			continue
		}

		fields, err := s.Redis.HGetAll(ctx, slotHashKey(key)).Result()
		if err != nil {
			return nil, translateDeadline(fmt.Errorf("fetch lock: %w", err))
		}

		lock := models.LockFromHash(fields)
		if len(fields) == 0 || !lock.Active(now) {
			statuses = append(statuses, models.SlotStatus{TimeSlot: slot, Status: models.SlotAvailable})
			continue
		}

		entry := models.SlotStatus{
			TimeSlot:  slot,
			Status:    models.SlotLocked,
			ExpiresAt: lock.ExpiresAt,
			ExpiresIn: int64(lock.Remaining(now).Seconds()),
		}
		if lock.UserID == callerID {
			entry.Status = models.SlotSelected
			entry.LockID = lock.LockID
		}
		statuses = append(statuses, entry)
	}

	return statuses, nil
}

// SweepExpired deletes every lock that is still "locked" and past expiry.
// Invoked by the cron schedule and the cleanup endpoint.
func (s *LockService) SweepExpired(ctx context.Context) (int, error) {
	keys, err := s.Redis.Keys(ctx, "slotlock:active:*").Result()
	if err != nil {
		return 0, fmt.Errorf("scan locks: %w", err)
	}

	now := s.now().Unix()
	swept := 0

	for _, key := range keys {
		n, err := s.Redis.Eval(ctx, sweepScript, []string{key}, now).Int()
		if err != nil {
			log.Printf("Sweep error for %s: %v", key, err)
			continue
		}
		swept += n
	}

	if swept > 0 {
		log.Printf("Swept %d expired slot locks", swept)
	}
	monitoring.TrackSweep(swept)

	return swept, nil
}

// ActiveLocksForOwner lists the caller's own non-expired locks.
func (s *LockService) ActiveLocksForOwner(ctx context.Context, ownerID string) ([]*models.SlotLock, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Config.StoreTimeout)
	defer cancel()

	lockIDs, err := s.Redis.SMembers(ctx, ownerSetKey(ownerID)).Result()
	if err != nil {
		return nil, translateDeadline(fmt.Errorf("list owner locks: %w", err))
	}

	now := s.now()
	locks := make([]*models.SlotLock, 0, len(lockIDs))

	for _, lockID := range lockIDs {
		hashKey, err := s.Redis.Get(ctx, lockIDKey(lockID)).Result()
		if err == redis.Nil {
			continue
		} else if err != nil {
			return nil, translateDeadline(fmt.Errorf("resolve lock: %w", err))
		}

		fields, err := s.Redis.HGetAll(ctx, hashKey).Result()
		if err != nil {
			return nil, translateDeadline(fmt.Errorf("fetch lock: %w", err))
		}
		if len(fields) == 0 {
			continue
		}

		lock := models.LockFromHash(fields)
		if lock.Active(now) {
			locks = append(locks, lock)
		}
	}

	return locks, nil
}

// ReleaseAllForOwner deletes every active lock held by ownerID, for logout or
// session cleanup. Confirmed locks are no longer in the owner set, so they
// are untouched.
func (s *LockService) ReleaseAllForOwner(ctx context.Context, ownerID string) (int, error) {
	lockIDs, err := s.Redis.SMembers(ctx, ownerSetKey(ownerID)).Result()
	if err != nil {
		return 0, fmt.Errorf("list owner locks: %w", err)
	}

	released := 0
	for _, lockID := range lockIDs {
		err := s.Release(ctx, lockID, ownerID)
		if err == nil {
			released++
		} else if !errors.Is(err, status.ErrNotFound) {
			return released, err
		}
	}

	return released, nil
}

func (s *LockService) acquireSlotMutex(ctx context.Context, key models.SlotKey) (string, error) {
	token := s.genTok()
	deadline := s.now().Add(s.Config.MutexWait)

	for {
		ok, err := s.Redis.SetNX(ctx, slotMutexKey(key), token, s.Config.SlotMutexTTL).Result()
		if err != nil {
			return "", fmt.Errorf("acquire slot mutex: %w", err)
		}
		if ok {
			return token, nil
		}
		if s.now().After(deadline) {
			return "", fmt.Errorf("%w: slot busy", status.ErrTimeout)
		}

		select {
		case <-ctx.Done():
			return "", translateDeadline(ctx.Err())
		case <-time.After(25 * time.Millisecond):
		}
	}
}

func (s *LockService) releaseSlotMutex(ctx context.Context, key models.SlotKey, token string) {
	if err := s.Redis.Eval(ctx, unlockMutexScript, []string{slotMutexKey(key)}, token).Err(); err != nil {
		log.Printf("Error releasing slot mutex for %s: %v", key.Key(), err)
	}
}

func translateDeadline(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", status.ErrTimeout, err)
	}
	return err
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		var out int64
		fmt.Sscan(n, &out)
		return out
	default:
		return 0
	}
}
