package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	otpRecordVersionV1 = 1

	OtpStatusGenerated uint8 = 0
	OtpStatusConsumed  uint8 = 1
)

var (
	ErrOtpRecordNotFound   = errors.New("otp record not found")
	ErrOtpRecordConsumed   = errors.New("otp record already consumed")
	ErrOtpRedisUnavailable = errors.New("otp redis unavailable")
)

// consumeOtpLua flips the status byte of a Generated record to Consumed.
// KEYS[1] = record key
//
// Returns 1 on success, or an error string: "not_found", "consumed".
// SETRANGE keeps any retention TTL on the key.
var consumeOtpLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

if string.byte(data, 1) ~= 1 then
  return {err='not_found'}
end

if string.byte(data, 2) ~= 0 then
  return {err='consumed'}
end

redis.call('SETRANGE', KEYS[1], 1, '\1')
return 1
`)

// OtpRecord is one persisted code.
type OtpRecord struct {
	ID        string
	AccountID string
	Code      string
	Purpose   uint8
	Status    uint8
	CreatedAt time.Time
	ExpiresAt time.Time
}

// OtpStore keeps OTP records in Redis. Records are never deleted by the
// store; a positive retention bounds their lifetime through key expiry.
//
// Keys:
//
//	{prefix}:otp:{id}                          binary record
//	{prefix}:code:{account}:{purpose}:{code}   set of ids sharing a code
//	{prefix}:acct:{account}:{purpose}          set of every id of the account
type OtpStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

func NewOtpStore(redisClient redis.UniversalClient, prefix string, retention time.Duration) *OtpStore {
	if prefix == "" {
		prefix = "dotp"
	}
	if retention < 0 {
		retention = 0
	}
	return &OtpStore{
		redis:     redisClient,
		prefix:    prefix,
		retention: retention,
	}
}

func (s *OtpStore) key(id string) string {
	return s.prefix + ":otp:" + id
}

func (s *OtpStore) codeKey(accountID string, purpose uint8, code string) string {
	return fmt.Sprintf("%s:code:%s:%d:%s", s.prefix, accountID, purpose, code)
}

func (s *OtpStore) accountKey(accountID string, purpose uint8) string {
	return fmt.Sprintf("%s:acct:%s:%d", s.prefix, accountID, purpose)
}

// Add persists record and indexes it by code and by account.
func (s *OtpStore) Add(ctx context.Context, record *OtpRecord) error {
	if record == nil || record.ID == "" {
		return errors.New("otp record id required")
	}
	encoded, err := encodeOtpRecord(record)
	if err != nil {
		return err
	}

	codeKey := s.codeKey(record.AccountID, record.Purpose, record.Code)
	acctKey := s.accountKey(record.AccountID, record.Purpose)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(record.ID), encoded, s.retention)
		pipe.SAdd(ctx, codeKey, record.ID)
		pipe.SAdd(ctx, acctKey, record.ID)
		if s.retention > 0 {
			pipe.PExpire(ctx, codeKey, s.retention)
			pipe.PExpire(ctx, acctKey, s.retention)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOtpRedisUnavailable, err)
	}
	return nil
}

// Get loads one record by id.
func (s *OtpStore) Get(ctx context.Context, id string) (*OtpRecord, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrOtpRecordNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrOtpRedisUnavailable, err)
	}
	record, err := decodeOtpRecord(id, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOtpRedisUnavailable, err)
	}
	return record, nil
}

// FindValid returns the newest Generated record matching account, code and
// purpose, else the newest Consumed one. Expiry is left to the caller.
func (s *OtpStore) FindValid(ctx context.Context, accountID, code string, purpose uint8) (*OtpRecord, error) {
	ids, err := s.redis.SMembers(ctx, s.codeKey(accountID, purpose, code)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOtpRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, ErrOtpRecordNotFound
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOtpRedisUnavailable, err)
	}

	var generated, consumed *OtpRecord
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Expired by retention while still indexed.
			continue
		}
		record, err := decodeOtpRecord(ids[i], []byte(raw))
		if err != nil {
			continue
		}
		if record.AccountID != accountID || record.Purpose != purpose ||
			subtle.ConstantTimeCompare([]byte(record.Code), []byte(code)) != 1 {
			continue
		}
		switch record.Status {
		case OtpStatusGenerated:
			if generated == nil || record.CreatedAt.After(generated.CreatedAt) {
				generated = record
			}
		default:
			if consumed == nil || record.CreatedAt.After(consumed.CreatedAt) {
				consumed = record
			}
		}
	}

	switch {
	case generated != nil:
		return generated, nil
	case consumed != nil:
		return consumed, nil
	default:
		return nil, ErrOtpRecordNotFound
	}
}

// Consume moves a Generated record to Consumed. Exactly one caller wins;
// the others get ErrOtpRecordConsumed.
func (s *OtpStore) Consume(ctx context.Context, id string) error {
	_, err := consumeOtpLua.Run(ctx, s.redis, []string{s.key(id)}).Result()
	if err != nil {
		switch err.Error() {
		case "not_found":
			return ErrOtpRecordNotFound
		case "consumed":
			return ErrOtpRecordConsumed
		default:
			return fmt.Errorf("%w: %v", ErrOtpRedisUnavailable, err)
		}
	}
	return nil
}

// InvalidateGenerated consumes every Generated record of the account and
// purpose and returns how many it flipped.
func (s *OtpStore) InvalidateGenerated(ctx context.Context, accountID string, purpose uint8) (int, error) {
	ids, err := s.redis.SMembers(ctx, s.accountKey(accountID, purpose)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrOtpRedisUnavailable, err)
	}

	n := 0
	for _, id := range ids {
		err := s.Consume(ctx, id)
		switch {
		case err == nil:
			n++
		case errors.Is(err, ErrOtpRecordConsumed), errors.Is(err, ErrOtpRecordNotFound):
		default:
			return n, err
		}
	}
	return n, nil
}

func encodeOtpRecord(record *OtpRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(otpRecordVersionV1)
	buf.WriteByte(record.Status)
	buf.WriteByte(record.Purpose)

	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt.UnixNano()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt.UnixNano()); err != nil {
		return nil, err
	}

	if len(record.AccountID) > 65535 {
		return nil, errors.New("otp record account id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.AccountID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.AccountID)

	if len(record.Code) > 255 {
		return nil, errors.New("otp record code too long")
	}
	buf.WriteByte(byte(len(record.Code)))
	buf.WriteString(record.Code)

	return buf.Bytes(), nil
}

func decodeOtpRecord(id string, data []byte) (*OtpRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != otpRecordVersionV1 {
		return nil, errors.New("invalid otp record version")
	}

	record := &OtpRecord{ID: id}
	if record.Status, err = reader.ReadByte(); err != nil {
		return nil, err
	}
	if record.Purpose, err = reader.ReadByte(); err != nil {
		return nil, err
	}

	var createdAt, expiresAt int64
	if err := binary.Read(reader, binary.BigEndian, &createdAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &expiresAt); err != nil {
		return nil, err
	}
	record.CreatedAt = time.Unix(0, createdAt)
	record.ExpiresAt = time.Unix(0, expiresAt)

	var accountLen uint16
	if err := binary.Read(reader, binary.BigEndian, &accountLen); err != nil {
		return nil, err
	}
	account := make([]byte, accountLen)
	if _, err := io.ReadFull(reader, account); err != nil {
		return nil, err
	}
	record.AccountID = string(account)

	codeLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	code := make([]byte, codeLen)
	if _, err := io.ReadFull(reader, code); err != nil {
		return nil, err
	}
	record.Code = string(code)

	return record, nil
}
