package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kestrelsec/authguard/internal/models"
)

// Key prefixes for the Redis backend. One record per key; expiry is
// delegated to Redis TTLs, which is the store-side half of the TTL
// contract (hard blocks carry no TTL).
const (
	sessionKeyPrefix   = "ag:sess:"
	attemptKeyPrefix   = "ag:att:"
	blockKeyPrefix     = "ag:blk:"
	challengeKeyPrefix = "ag:otp:"
)

// ErrStoreUnavailable indicates the external store is unreachable.
var ErrStoreUnavailable = errors.New("store unavailable")

func redisGet[T any](ctx context.Context, client redis.UniversalClient, key string) (*T, error) {
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("corrupt record at %s: %w", key, err)
	}
	return &value, nil
}

func redisSet(ctx context.Context, client redis.UniversalClient, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func redisCount(ctx context.Context, client redis.UniversalClient, prefix string) (int, error) {
	var cursor uint64
	count := 0
	for {
		keys, next, err := client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}

func ttlUntil(expiresAt, now time.Time) time.Duration {
	ttl := expiresAt.Sub(now)
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

// RedisSessionRepository stores sessions as JSON blobs whose TTL follows
// the sliding expiry, so abandoned sessions vanish without a sweep.
type RedisSessionRepository struct {
	client redis.UniversalClient
}

// NewRedisSessionRepository creates a session store on the given client.
func NewRedisSessionRepository(client redis.UniversalClient) *RedisSessionRepository {
	return &RedisSessionRepository{client: client}
}

func (r *RedisSessionRepository) key(id string) string { return sessionKeyPrefix + id }

func (r *RedisSessionRepository) Save(ctx context.Context, session *models.Session) error {
	return redisSet(ctx, r.client, r.key(session.ID), session, ttlUntil(session.ExpiresAt, time.Now()))
}

func (r *RedisSessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	return redisGet[models.Session](ctx, r.client, r.key(id))
}

func (r *RedisSessionRepository) Update(ctx context.Context, session *models.Session) error {
	return r.Save(ctx, session)
}

func (r *RedisSessionRepository) Delete(ctx context.Context, id string) (bool, error) {
	removed, err := r.client.Del(ctx, r.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return removed > 0, nil
}

// DeleteExpired is a no-op on Redis; key TTLs already evict lapsed sessions.
func (r *RedisSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func (r *RedisSessionRepository) Count(ctx context.Context) (int, error) {
	return redisCount(ctx, r.client, sessionKeyPrefix)
}

// RedisAttemptRepository stores attempt records with a TTL capped at the
// maximum lockout duration and hard blocks without any TTL.
type RedisAttemptRepository struct {
	client    redis.UniversalClient
	recordTTL time.Duration
}

// NewRedisAttemptRepository creates an attempt store. recordTTL bounds how
// long a failure record survives without further activity.
func NewRedisAttemptRepository(client redis.UniversalClient, recordTTL time.Duration) *RedisAttemptRepository {
	return &RedisAttemptRepository{client: client, recordTTL: recordTTL}
}

func (r *RedisAttemptRepository) Get(ctx context.Context, identifier string) (*models.LoginAttemptRecord, error) {
	return redisGet[models.LoginAttemptRecord](ctx, r.client, attemptKeyPrefix+identifier)
}

func (r *RedisAttemptRepository) Save(ctx context.Context, record *models.LoginAttemptRecord) error {
	return redisSet(ctx, r.client, attemptKeyPrefix+record.Identifier, record, r.recordTTL)
}

func (r *RedisAttemptRepository) Delete(ctx context.Context, identifier string) error {
	if err := r.client.Del(ctx, attemptKeyPrefix+identifier).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (r *RedisAttemptRepository) CountLocked(ctx context.Context, now time.Time) (int, error) {
	var cursor uint64
	count := 0
	for {
		keys, next, err := r.client.Scan(ctx, cursor, attemptKeyPrefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		for _, key := range keys {
			record, err := redisGet[models.LoginAttemptRecord](ctx, r.client, key)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					continue
				}
				return 0, err
			}
			if record.Locked(now) {
				count++
			}
		}
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}

func (r *RedisAttemptRepository) SaveBlock(ctx context.Context, entry *models.IPBlockEntry) error {
	// No TTL: a hard block survives until an explicit unblock.
	return redisSet(ctx, r.client, blockKeyPrefix+entry.IP, entry, 0)
}

func (r *RedisAttemptRepository) GetBlock(ctx context.Context, ip string) (*models.IPBlockEntry, error) {
	return redisGet[models.IPBlockEntry](ctx, r.client, blockKeyPrefix+ip)
}

func (r *RedisAttemptRepository) DeleteBlock(ctx context.Context, ip string) error {
	if err := r.client.Del(ctx, blockKeyPrefix+ip).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (r *RedisAttemptRepository) CountBlocks(ctx context.Context) (int, error) {
	return redisCount(ctx, r.client, blockKeyPrefix)
}

// RedisChallengeRepository stores OTP challenges with a TTL matching the
// challenge expiry.
type RedisChallengeRepository struct {
	client redis.UniversalClient
}

// NewRedisChallengeRepository creates a challenge store on the given client.
func NewRedisChallengeRepository(client redis.UniversalClient) *RedisChallengeRepository {
	return &RedisChallengeRepository{client: client}
}

func (r *RedisChallengeRepository) key(id string) string { return challengeKeyPrefix + id }

func (r *RedisChallengeRepository) Save(ctx context.Context, challenge *models.OTPChallenge) error {
	return redisSet(ctx, r.client, r.key(challenge.ID), challenge, ttlUntil(challenge.ExpiresAt, time.Now()))
}

func (r *RedisChallengeRepository) Get(ctx context.Context, id string) (*models.OTPChallenge, error) {
	return redisGet[models.OTPChallenge](ctx, r.client, r.key(id))
}

func (r *RedisChallengeRepository) Update(ctx context.Context, challenge *models.OTPChallenge) error {
	return r.Save(ctx, challenge)
}

func (r *RedisChallengeRepository) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (r *RedisChallengeRepository) CountByPrincipalChannel(ctx context.Context, principalID string, channel models.Channel) (int, error) {
	var cursor uint64
	count := 0
	for {
		keys, next, err := r.client.Scan(ctx, cursor, challengeKeyPrefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		for _, key := range keys {
			challenge, err := redisGet[models.OTPChallenge](ctx, r.client, key)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					continue
				}
				return 0, err
			}
			if challenge.PrincipalID == principalID && challenge.Channel == channel {
				count++
			}
		}
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}

// DeleteExpired is a no-op on Redis; key TTLs already evict lapsed challenges.
func (r *RedisChallengeRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}
