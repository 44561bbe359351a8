package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/courierauth/internal"
)

const otpRecordVersionV1 = 1

// consumeOTPLua atomically performs GET→validate→DEL/SET on an OTP record.
// KEYS[1] = record key
// ARGV[1] = provided hash (32 bytes)
// ARGV[2] = max attempts
// ARGV[3] = current unix time in milliseconds
//
// Layout: version(1) attempts(2) expiresAtMs(8) hash(32) ...
//
// Returns:
//
//	record bytes on success
//	error string: "not_found", "attempts_exceeded", "code_mismatch"
var consumeOTPLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local providedHash = ARGV[1]
local maxAttempts = tonumber(ARGV[2])
local nowMs = tonumber(ARGV[3])

if string.byte(data, 1) ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local attempts = string.byte(data, 2) * 256 + string.byte(data, 3)

local expiresAt = 0
for i = 4, 11 do
  expiresAt = expiresAt * 256 + string.byte(data, i)
end
if nowMs > expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local storedHash = string.sub(data, 12, 43)
if storedHash ~= providedHash then
  attempts = attempts + 1
  if attempts >= maxAttempts then
    redis.call('DEL', KEYS[1])
    return {err='attempts_exceeded'}
  end
  local ttlMs = redis.call('PTTL', KEYS[1])
  if ttlMs <= 0 then
    redis.call('DEL', KEYS[1])
    return {err='not_found'}
  end
  local newData = string.sub(data, 1, 1) .. string.char(math.floor(attempts / 256), attempts % 256) .. string.sub(data, 4)
  redis.call('SET', KEYS[1], newData, 'PX', ttlMs)
  return {err='code_mismatch'}
end

redis.call('DEL', KEYS[1])
return data
`)

// OTPStore keeps at most one live code per (identifier, purpose). Saving a
// new code replaces the previous one.
type OTPStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewOTPStore(redisClient redis.UniversalClient, prefix string) *OTPStore {
	if prefix == "" {
		prefix = "ca"
	}
	return &OTPStore{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *OTPStore) key(identifier, purpose string) string {
	return s.prefix + ":otp:" + purpose + ":" + identifier
}

// Save stores record until its ExpiresAt.
func (s *OTPStore) Save(ctx context.Context, record *OTPRecord) error {
	ttl := record.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return errors.New("otp record already expired")
	}

	encoded, err := encodeOTPRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(record.Identifier, record.Purpose), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Consume validates providedHash against the live record and deletes it on
// success. A consumed, expired or missing record yields ErrOTPNotFound.
func (s *OTPStore) Consume(
	ctx context.Context,
	identifier, purpose string,
	providedHash [32]byte,
	maxAttempts int,
) (*OTPRecord, error) {
	result, err := consumeOTPLua.Run(ctx, s.redis,
		[]string{s.key(identifier, purpose)},
		string(providedHash[:]),
		maxAttempts,
		s.now().UnixMilli(),
	).Result()
	if err != nil {
		switch err.Error() {
		case "not_found":
			return nil, ErrOTPNotFound
		case "attempts_exceeded":
			return nil, ErrOTPAttemptsExceeded
		case "code_mismatch":
			return nil, ErrOTPMismatch
		default:
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrUnavailable)
	}

	record, err := decodeOTPRecord([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !internal.EqualHash(record.CodeHash, providedHash) {
		return nil, ErrOTPMismatch
	}
	record.ConsumedAt = s.now()

	return record, nil
}

// Delete removes the live record, if any.
func (s *OTPStore) Delete(ctx context.Context, identifier, purpose string) error {
	if err := s.redis.Del(ctx, s.key(identifier, purpose)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func encodeOTPRecord(record *OTPRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(otpRecordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt.UnixMilli()); err != nil {
		return nil, err
	}
	buf.Write(record.CodeHash[:])
	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt.UnixMilli()); err != nil {
		return nil, err
	}

	for _, field := range []string{record.ID, record.Identifier, record.IdentifierType, record.Purpose} {
		if len(field) > 65535 {
			return nil, errors.New("otp record field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeOTPRecord(data []byte) (*OTPRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != otpRecordVersionV1 {
		return nil, errors.New("invalid otp record version")
	}

	record := &OTPRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}

	var expiresMs, createdMs int64
	if err := binary.Read(reader, binary.BigEndian, &expiresMs); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &createdMs); err != nil {
		return nil, err
	}
	record.ExpiresAt = time.UnixMilli(expiresMs)
	record.CreatedAt = time.UnixMilli(createdMs)

	fields := []*string{&record.ID, &record.Identifier, &record.IdentifierType, &record.Purpose}
	for _, field := range fields {
		var n uint16
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return nil, err
		}
		raw := make([]byte, n)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		*field = string(raw)
	}

	return record, nil
}
