package deskauth

import (
	"context"
	"errors"
	"time"

	"github.com/deskops/deskauth/internal/stores"
	"github.com/redis/go-redis/v9"
)

// RedisOtpStore is an [OtpStore] backed by Redis. Consumption is an atomic
// compare-and-set, so concurrent validations of one code have one winner.
type RedisOtpStore struct {
	store *stores.OtpStore
}

// NewRedisOtpStore creates a Redis OTP store. An empty prefix uses "dotp".
// A positive retention expires records and their indexes; zero keeps them.
func NewRedisOtpStore(client redis.UniversalClient, prefix string, retention time.Duration) *RedisOtpStore {
	return &RedisOtpStore{store: stores.NewOtpStore(client, prefix, retention)}
}

// Add persists otp.
func (s *RedisOtpStore) Add(ctx context.Context, otp OtpCode) error {
	return mapRedisOtpError(s.store.Add(ctx, &stores.OtpRecord{
		ID:        otp.ID,
		AccountID: otp.AccountID,
		Code:      otp.Code,
		Purpose:   uint8(otp.Purpose),
		Status:    uint8(otp.Status),
		CreatedAt: otp.CreatedAt,
		ExpiresAt: otp.ExpiresAt,
	}))
}

// FindValid returns the most relevant record for the code.
func (s *RedisOtpStore) FindValid(ctx context.Context, accountID, code string, purpose OtpPurpose) (OtpCode, error) {
	rec, err := s.store.FindValid(ctx, accountID, code, uint8(purpose))
	if err != nil {
		return OtpCode{}, mapRedisOtpError(err)
	}
	return OtpCode{
		ID:        rec.ID,
		AccountID: rec.AccountID,
		Code:      rec.Code,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
		Status:    OtpStatus(rec.Status),
		Purpose:   OtpPurpose(rec.Purpose),
	}, nil
}

// Update only supports the Generated to Consumed transition; records are
// otherwise immutable.
func (s *RedisOtpStore) Update(ctx context.Context, otp OtpCode) error {
	if otp.Status != OtpConsumed {
		return errors.New("redis otp store: only consumption is supported")
	}
	return mapRedisOtpError(s.store.Consume(ctx, otp.ID))
}

// InvalidateGenerated consumes every Generated code of accountID and purpose.
func (s *RedisOtpStore) InvalidateGenerated(ctx context.Context, accountID string, purpose OtpPurpose) (int, error) {
	n, err := s.store.InvalidateGenerated(ctx, accountID, uint8(purpose))
	return n, mapRedisOtpError(err)
}

func mapRedisOtpError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrOtpRecordNotFound):
		return ErrOtpNotFound
	case errors.Is(err, stores.ErrOtpRecordConsumed):
		return ErrOtpAlreadyUsed
	default:
		return err
	}
}
