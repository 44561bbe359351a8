package sqlstore

import (
	"context"
	"time"

	"github.com/MrEthical07/courierauth/internal/stores"
)

type DeviceStore struct{ s *Store }

// Upsert inserts the device or refreshes last_seen_at. Empty optional fields
// keep the stored value.
func (d *DeviceStore) Upsert(ctx context.Context, device stores.Device) error {
	now := d.s.now().UnixMilli()
	if _, err := d.s.db.ExecContext(ctx, d.s.rebind(
		`INSERT INTO ca_devices (user_id, device_id, platform, push_token, user_agent, created_at, last_seen_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, device_id) DO UPDATE SET
		     platform = CASE WHEN excluded.platform = '' THEN ca_devices.platform ELSE excluded.platform END,
		     push_token = CASE WHEN excluded.push_token = '' THEN ca_devices.push_token ELSE excluded.push_token END,
		     user_agent = CASE WHEN excluded.user_agent = '' THEN ca_devices.user_agent ELSE excluded.user_agent END,
		     last_seen_at = excluded.last_seen_at`),
		device.UserID, device.DeviceID, device.Platform, device.PushToken, device.UserAgent, now, now); err != nil {
		return unavailable(err)
	}
	return nil
}

func (d *DeviceStore) List(ctx context.Context, userID string) ([]stores.Device, error) {
	rows, err := d.s.db.QueryContext(ctx, d.s.rebind(
		`SELECT user_id, device_id, platform, push_token, user_agent, created_at, last_seen_at
		 FROM ca_devices WHERE user_id = ? ORDER BY device_id`), userID)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	devices := []stores.Device{}
	for rows.Next() {
		var (
			dev               stores.Device
			createdMs, seenMs int64
		)
		if err := rows.Scan(&dev.UserID, &dev.DeviceID, &dev.Platform, &dev.PushToken, &dev.UserAgent, &createdMs, &seenMs); err != nil {
			return nil, unavailable(err)
		}
		dev.CreatedAt = time.UnixMilli(createdMs)
		dev.LastSeenAt = time.UnixMilli(seenMs)
		devices = append(devices, dev)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return devices, nil
}
