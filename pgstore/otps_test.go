package pgstore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/deskops/deskauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var otpRowColumns = []string{"id", "account_id", "code", "purpose", "status", "created_at", "expires_at"}

func TestOtpAdd(t *testing.T) {
	s, mock := newStoreWithMock(t, nil)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	otp := deskauth.OtpCode{
		ID:        "o-1",
		AccountID: "a-1",
		Code:      "123456",
		Purpose:   deskauth.OtpResetPassword,
		CreatedAt: created,
		ExpiresAt: created.Add(10 * time.Minute),
	}
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+otp_codes\s*\(id,\s*account_id,\s*code,\s*purpose,\s*status,\s*created_at,\s*expires_at\)`).
		WithArgs("o-1", "a-1", "123456", int16(deskauth.OtpResetPassword), int16(deskauth.OtpGenerated), otp.CreatedAt, otp.ExpiresAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Otps().Add(context.Background(), otp))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOtpFindValidPrefersGenerated(t *testing.T) {
	s, mock := newStoreWithMock(t, nil)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q := `(?s)^SELECT\s+id,.*FROM\s+otp_codes\s+WHERE\s+account_id\s*=\s*\$1\s+AND\s+code\s*=\s*\$2\s+AND\s+purpose\s*=\s*\$3\s+ORDER\s+BY\s+status\s+ASC,\s*created_at\s+DESC\s+LIMIT\s+1\s*$`
	mock.ExpectQuery(q).
		WithArgs("a-1", "123456", int16(deskauth.OtpEmailConfirmation)).
		WillReturnRows(sqlmock.NewRows(otpRowColumns).
			AddRow("o-2", "a-1", "123456", int64(deskauth.OtpEmailConfirmation), int64(deskauth.OtpGenerated), created, created.Add(time.Minute)))

	got, err := s.Otps().FindValid(context.Background(), "a-1", "123456", deskauth.OtpEmailConfirmation)
	require.NoError(t, err)
	assert.Equal(t, "o-2", got.ID)
	assert.Equal(t, deskauth.OtpGenerated, got.Status)
	assert.Equal(t, deskauth.OtpEmailConfirmation, got.Purpose)
}

func TestOtpFindValidNotFound(t *testing.T) {
	s, mock := newStoreWithMock(t, nil)
	mock.ExpectQuery(`(?s)FROM\s+otp_codes`).WillReturnError(sql.ErrNoRows)

	_, err := s.Otps().FindValid(context.Background(), "a-1", "000000", deskauth.OtpTwoFactor)
	require.ErrorIs(t, err, deskauth.ErrOtpNotFound)
}

func TestOtpConsumeOnce(t *testing.T) {
	s, mock := newStoreWithMock(t, nil)
	consume := `(?s)^UPDATE\s+otp_codes\s+SET\s+status\s*=\s*1\s+WHERE\s+id\s*=\s*\$1\s+AND\s+status\s*=\s*0\s*$`
	exists := `(?s)^SELECT\s+EXISTS\(SELECT\s+1\s+FROM\s+otp_codes\s+WHERE\s+id\s*=\s*\$1\)\s*$`

	mock.ExpectExec(consume).WithArgs("o-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(consume).WithArgs("o-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(exists).WithArgs("o-1").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	otp := deskauth.OtpCode{ID: "o-1", Status: deskauth.OtpConsumed}
	require.NoError(t, s.Otps().Update(context.Background(), otp))
	require.ErrorIs(t, s.Otps().Update(context.Background(), otp), deskauth.ErrOtpAlreadyUsed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOtpConsumeMissingRow(t *testing.T) {
	s, mock := newStoreWithMock(t, nil)
	mock.ExpectExec(`(?s)^UPDATE\s+otp_codes`).WithArgs("ghost").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`(?s)^SELECT\s+EXISTS`).WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := s.Otps().Update(context.Background(), deskauth.OtpCode{ID: "ghost", Status: deskauth.OtpConsumed})
	require.ErrorIs(t, err, deskauth.ErrOtpNotFound)
}

func TestOtpInvalidateGenerated(t *testing.T) {
	s, mock := newStoreWithMock(t, nil)
	mock.ExpectExec(`(?s)^UPDATE\s+otp_codes\s+SET\s+status\s*=\s*1\s+WHERE\s+account_id\s*=\s*\$1\s+AND\s+purpose\s*=\s*\$2\s+AND\s+status\s*=\s*0\s*$`).
		WithArgs("a-1", int16(deskauth.OtpResetPassword)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := s.Otps().InvalidateGenerated(context.Background(), "a-1", deskauth.OtpResetPassword)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
