package courierauth

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

const (
	maxDeviceIDLength  = 128
	maxPushTokenLength = 4096
	maxUserAgentLength = 512
)

// RegisterDevice records or refreshes a client for userID. Optional fields
// left empty keep their stored values; last_seen_at always moves forward.
func (e *Engine) RegisterDevice(ctx context.Context, userID string, info DeviceInfo) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	userID = strings.TrimSpace(userID)
	info.DeviceID = strings.TrimSpace(info.DeviceID)
	if userID == "" {
		return fmt.Errorf("%w: user id required", ErrInvalidRequest)
	}
	if info.DeviceID == "" || len(info.DeviceID) > maxDeviceIDLength {
		return fmt.Errorf("%w: device id must be 1-%d characters", ErrInvalidRequest, maxDeviceIDLength)
	}
	if len(info.PushToken) > maxPushTokenLength {
		return fmt.Errorf("%w: push token too long", ErrInvalidRequest)
	}
	if info.UserAgent == "" {
		info.UserAgent = UserAgentFromContext(ctx)
	}
	info.UserAgent = truncateUTF8(info.UserAgent, maxUserAgentLength)

	err := e.devices.Upsert(ctx, Device{
		UserID:    userID,
		DeviceID:  info.DeviceID,
		Platform:  strings.ToLower(strings.TrimSpace(info.Platform)),
		PushToken: strings.TrimSpace(info.PushToken),
		UserAgent: info.UserAgent,
	})
	if err != nil {
		e.metricInc(MetricDeviceRegisterFailed)
		return storeError(err)
	}

	e.metricInc(MetricDeviceRegistered)
	e.logger.WithFields(logrus.Fields{
		"user_id":   userID,
		"device_id": info.DeviceID,
	}).Debug("device registered")
	return nil
}

// ListDevices returns the devices registered for userID.
func (e *Engine) ListDevices(ctx context.Context, userID string) ([]Device, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	devices, err := e.devices.List(ctx, userID)
	if err != nil {
		return nil, storeError(err)
	}
	return devices, nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
