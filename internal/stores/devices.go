package stores

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DeviceRegistry stores one hash per (user, device) plus a per-user index set.
type DeviceRegistry struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewDeviceRegistry(redisClient redis.UniversalClient, prefix string) *DeviceRegistry {
	if prefix == "" {
		prefix = "ca"
	}
	return &DeviceRegistry{redis: redisClient, prefix: prefix, now: time.Now}
}

func (r *DeviceRegistry) deviceKey(userID, deviceID string) string {
	return r.prefix + ":dev:" + userID + ":" + deviceID
}

func (r *DeviceRegistry) indexKey(userID string) string {
	return r.prefix + ":devs:" + userID
}

// Upsert creates or refreshes a device. CreatedAt is set once; LastSeenAt
// always moves to now. Empty optional fields keep their stored value.
func (r *DeviceRegistry) Upsert(ctx context.Context, device Device) error {
	now := r.now().UnixMilli()
	key := r.deviceKey(device.UserID, device.DeviceID)

	fields := map[string]interface{}{
		"user_id":      device.UserID,
		"device_id":    device.DeviceID,
		"last_seen_at": now,
	}
	if device.Platform != "" {
		fields["platform"] = device.Platform
	}
	if device.PushToken != "" {
		fields["push_token"] = device.PushToken
	}
	if device.UserAgent != "" {
		fields["user_agent"] = device.UserAgent
	}

	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, "created_at", now)
		pipe.HSet(ctx, key, fields)
		pipe.SAdd(ctx, r.indexKey(device.UserID), device.DeviceID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// List returns the user's devices ordered by device id.
func (r *DeviceRegistry) List(ctx context.Context, userID string) ([]Device, error) {
	ids, err := r.redis.SMembers(ctx, r.indexKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	sort.Strings(ids)

	devices := make([]Device, 0, len(ids))
	for _, id := range ids {
		values, err := r.redis.HGetAll(ctx, r.deviceKey(userID, id)).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if len(values) == 0 {
			continue
		}
		devices = append(devices, Device{
			UserID:     values["user_id"],
			DeviceID:   values["device_id"],
			Platform:   values["platform"],
			PushToken:  values["push_token"],
			UserAgent:  values["user_agent"],
			CreatedAt:  parseMillis(values["created_at"]),
			LastSeenAt: parseMillis(values["last_seen_at"]),
		})
	}
	return devices, nil
}

func parseMillis(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
