package pgstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/deskops/deskauth"
)

// OtpStore persists OTP codes in otp_codes. It shares the pool and the
// transaction scope of the [Store] it came from.
type OtpStore struct {
	store *Store
}

var (
	_ deskauth.OtpStore       = (*OtpStore)(nil)
	_ deskauth.OtpInvalidator = (*OtpStore)(nil)
)

// Otps returns the OTP store bound to s.
func (s *Store) Otps() *OtpStore {
	return &OtpStore{store: s}
}

func (o *OtpStore) Add(ctx context.Context, otp deskauth.OtpCode) error {
	_, err := o.store.conn(ctx).ExecContext(ctx,
		`INSERT INTO otp_codes (id, account_id, code, purpose, status, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		otp.ID, otp.AccountID, otp.Code, int16(otp.Purpose), int16(otp.Status), otp.CreatedAt, otp.ExpiresAt)
	if err != nil {
		return dbError(err)
	}
	return nil
}

// FindValid returns the newest Generated row for the code, else the newest
// Consumed one. Expiry is left to the caller.
func (o *OtpStore) FindValid(ctx context.Context, accountID, code string, purpose deskauth.OtpPurpose) (deskauth.OtpCode, error) {
	var (
		otp                deskauth.OtpCode
		status, purposeCol int16
	)
	err := o.store.conn(ctx).QueryRowContext(ctx,
		`SELECT id, account_id, code, purpose, status, created_at, expires_at
		 FROM otp_codes
		 WHERE account_id = $1 AND code = $2 AND purpose = $3
		 ORDER BY status ASC, created_at DESC
		 LIMIT 1`,
		accountID, code, int16(purpose)).
		Scan(&otp.ID, &otp.AccountID, &otp.Code, &purposeCol, &status, &otp.CreatedAt, &otp.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return deskauth.OtpCode{}, deskauth.ErrOtpNotFound
		}
		return deskauth.OtpCode{}, dbError(err)
	}
	otp.Purpose = deskauth.OtpPurpose(purposeCol)
	otp.Status = deskauth.OtpStatus(status)
	return otp, nil
}

// Update persists otp. Consumption only succeeds on a Generated row; the
// loser of a race gets deskauth.ErrOtpAlreadyUsed.
func (o *OtpStore) Update(ctx context.Context, otp deskauth.OtpCode) error {
	db := o.store.conn(ctx)
	if otp.Status != deskauth.OtpConsumed {
		res, err := db.ExecContext(ctx,
			`UPDATE otp_codes SET status = $2, expires_at = $3 WHERE id = $1`,
			otp.ID, int16(otp.Status), otp.ExpiresAt)
		if err != nil {
			return dbError(err)
		}
		return requireOneRow(res, deskauth.ErrOtpNotFound)
	}

	res, err := db.ExecContext(ctx,
		`UPDATE otp_codes SET status = 1 WHERE id = $1 AND status = 0`, otp.ID)
	if err != nil {
		return dbError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError(err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM otp_codes WHERE id = $1)`, otp.ID).Scan(&exists); err != nil {
		return dbError(err)
	}
	if exists {
		return deskauth.ErrOtpAlreadyUsed
	}
	return deskauth.ErrOtpNotFound
}

// InvalidateGenerated consumes every Generated code of accountID and purpose.
func (o *OtpStore) InvalidateGenerated(ctx context.Context, accountID string, purpose deskauth.OtpPurpose) (int, error) {
	res, err := o.store.conn(ctx).ExecContext(ctx,
		`UPDATE otp_codes SET status = 1 WHERE account_id = $1 AND purpose = $2 AND status = 0`,
		accountID, int16(purpose))
	if err != nil {
		return 0, dbError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dbError(err)
	}
	return int(n), nil
}
