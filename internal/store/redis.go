package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wearlink/coordinator/internal/models"
	"github.com/wearlink/coordinator/internal/utils"
)

const (
	devicePrefix    = "wearlink:device:"
	streamPrefix    = "wearlink:stream:"
	userIndexPrefix = "wearlink:userdev:"
)

// RedisStore implements Store on go-redis. Device records carry a
// sliding TTL refreshed on every write; streaming records keep the TTL
// set at creation (KeepTTL on updates) so the 1h ceiling is absolute.
type RedisStore struct {
	rdb        *redis.Client
	deviceTTL  time.Duration
	sessionTTL time.Duration
}

type RedisOption func(*RedisStore)

func WithDeviceTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) { s.deviceTTL = ttl }
}

func WithSessionTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) { s.sessionTTL = ttl }
}

func NewRedisStore(rdb *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		rdb:        rdb,
		deviceTTL:  24 * time.Hour,
		sessionTTL: time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func deviceKey(deviceID string) string { return devicePrefix + deviceID }
func streamKey(sessionID string) string { return streamPrefix + sessionID }
func userIndexKey(userID string) string { return userIndexPrefix + userID }

func (s *RedisStore) SetDeviceSession(ctx context.Context, ds *models.DeviceSession) error {
	const op = "RedisStore.SetDeviceSession"

	b, err := json.Marshal(ds)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to marshal device session", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, deviceKey(ds.DeviceID), b, s.deviceTTL)
	pipe.SAdd(ctx, userIndexKey(ds.UserID), ds.DeviceID)
	pipe.Expire(ctx, userIndexKey(ds.UserID), s.deviceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return utils.E(utils.CodeUnavailable, op, "failed to write device session", err)
	}
	return nil
}

func (s *RedisStore) GetDeviceSession(ctx context.Context, deviceID string) (*models.DeviceSession, error) {
	const op = "RedisStore.GetDeviceSession"

	raw, err := s.rdb.Get(ctx, deviceKey(deviceID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to read device session", err)
	}

	var ds models.DeviceSession
	if err := json.Unmarshal([]byte(raw), &ds); err != nil {
		// corrupt entry: drop it and treat as a miss
		_ = s.rdb.Del(ctx, deviceKey(deviceID)).Err()
		return nil, nil
	}
	return &ds, nil
}

func (s *RedisStore) RemoveDeviceSession(ctx context.Context, deviceID, userID string) error {
	const op = "RedisStore.RemoveDeviceSession"

	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, deviceKey(deviceID))
	if userID != "" {
		pipe.SRem(ctx, userIndexKey(userID), deviceID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return utils.E(utils.CodeUnavailable, op, "failed to remove device session", err)
	}
	return nil
}

func (s *RedisStore) GetUserDevices(ctx context.Context, userID string) ([]*models.DeviceSession, error) {
	const op = "RedisStore.GetUserDevices"

	ids, err := s.rdb.SMembers(ctx, userIndexKey(userID)).Result()
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to read user device index", err)
	}

	out := make([]*models.DeviceSession, 0, len(ids))
	for _, id := range ids {
		ds, err := s.GetDeviceSession(ctx, id)
		if err != nil {
			return nil, err
		}
		if ds == nil {
			// device record expired under the index entry
			_ = s.rdb.SRem(ctx, userIndexKey(userID), id).Err()
			continue
		}
		out = append(out, ds)
	}
	return out, nil
}

func (s *RedisStore) SetStreamingSession(ctx context.Context, ss *models.StreamingSession) error {
	const op = "RedisStore.SetStreamingSession"

	b, err := json.Marshal(ss)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to marshal streaming session", err)
	}
	if err := s.rdb.Set(ctx, streamKey(ss.SessionID), b, s.sessionTTL).Err(); err != nil {
		return utils.E(utils.CodeUnavailable, op, "failed to write streaming session", err)
	}
	return nil
}

func (s *RedisStore) GetStreamingSession(ctx context.Context, sessionID string) (*models.StreamingSession, error) {
	const op = "RedisStore.GetStreamingSession"

	raw, err := s.rdb.Get(ctx, streamKey(sessionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to read streaming session", err)
	}

	var ss models.StreamingSession
	if err := json.Unmarshal([]byte(raw), &ss); err != nil {
		_ = s.rdb.Del(ctx, streamKey(sessionID)).Err()
		return nil, nil
	}
	return &ss, nil
}

// UpdateStreamingSession merges the patch into the stored record.
// KeepTTL preserves the creation-time expiry, so no amount of activity
// extends a session past the absolute ceiling.
func (s *RedisStore) UpdateStreamingSession(ctx context.Context, sessionID string, upd SessionUpdate) (*models.StreamingSession, error) {
	const op = "RedisStore.UpdateStreamingSession"

	ss, err := s.GetStreamingSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if ss == nil {
		return nil, utils.E(utils.CodeNotFound, op, "streaming session not found", nil)
	}

	upd.apply(ss)

	b, err := json.Marshal(ss)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to marshal streaming session", err)
	}
	if err := s.rdb.Set(ctx, streamKey(sessionID), b, redis.KeepTTL).Err(); err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to update streaming session", err)
	}
	return ss, nil
}

func (s *RedisStore) HealthCheck(ctx context.Context) error {
	const op = "RedisStore.HealthCheck"

	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return utils.E(utils.CodeUnavailable, op, "redis unreachable", err)
	}
	return nil
}
