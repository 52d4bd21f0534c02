package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/deskops/deskauth"
)

const accountColumns = `id, username, email, first_name, last_name, age, role, email_confirmed,
	failed_access_count, lockout_end, lockout_permanent, created_at`

func scanAccount(row *sql.Row) (deskauth.Account, error) {
	var (
		a         deskauth.Account
		role      int16
		end       sql.NullTime
		permanent bool
	)
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.FirstName, &a.LastName, &a.Age, &role,
		&a.EmailConfirmed, &a.FailedAccessCount, &end, &permanent, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return deskauth.Account{}, deskauth.ErrAccountNotFound
		}
		return deskauth.Account{}, dbError(err)
	}
	a.Role = deskauth.Role(role)
	switch {
	case permanent:
		a.Lockout = deskauth.Disabled()
	case end.Valid:
		a.Lockout = deskauth.LockedUntil(end.Time)
	default:
		a.Lockout = deskauth.Unlocked()
	}
	return a, nil
}

func lockoutColumns(state deskauth.LockoutState) (sql.NullTime, bool) {
	switch state.Kind {
	case deskauth.LockoutPermanent:
		return sql.NullTime{}, true
	case deskauth.LockoutTemporary:
		return sql.NullTime{Time: state.Until, Valid: true}, false
	default:
		return sql.NullTime{}, false
	}
}

func (s *Store) FindByEmail(ctx context.Context, email string) (deskauth.Account, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE LOWER(email) = $1`,
		strings.ToLower(strings.TrimSpace(email)))
	return scanAccount(row)
}

func (s *Store) FindByID(ctx context.Context, id string) (deskauth.Account, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// Create hashes pw and inserts the account. A taken email or username
// returns deskauth.ErrAccountExists.
func (s *Store) Create(ctx context.Context, account deskauth.Account, pw string) (deskauth.Account, error) {
	hash, err := s.hasher.Hash(pw)
	if err != nil {
		return deskauth.Account{}, err
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = s.now().UTC()
	}
	account.Email = strings.ToLower(strings.TrimSpace(account.Email))
	end, permanent := lockoutColumns(account.Lockout)

	_, err = s.conn(ctx).ExecContext(ctx,
		`INSERT INTO accounts (id, username, email, first_name, last_name, age, role, email_confirmed,
			password_hash, failed_access_count, lockout_end, lockout_permanent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		account.ID, account.Username, account.Email, account.FirstName, account.LastName, account.Age,
		int16(account.Role), account.EmailConfirmed, hash, account.FailedAccessCount, end, permanent,
		account.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return deskauth.Account{}, deskauth.ErrAccountExists
		}
		return deskauth.Account{}, dbError(err)
	}
	return account, nil
}

// Update writes profile, role, email and confirmation. Counter and lockout
// have their own atomic methods and are not touched here.
func (s *Store) Update(ctx context.Context, account deskauth.Account) error {
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE accounts SET username = $2, email = $3, first_name = $4, last_name = $5, age = $6,
			role = $7, email_confirmed = $8
		 WHERE id = $1`,
		account.ID, account.Username, strings.ToLower(strings.TrimSpace(account.Email)),
		account.FirstName, account.LastName, account.Age, int16(account.Role), account.EmailConfirmed)
	if err != nil {
		if isUniqueViolation(err) {
			return deskauth.ErrAccountExists
		}
		return dbError(err)
	}
	return requireOneRow(res, deskauth.ErrAccountNotFound)
}

// CheckPassword verifies pw and re-hashes it when the stored hash uses
// weaker parameters. A failed re-hash does not fail the check.
func (s *Store) CheckPassword(ctx context.Context, account deskauth.Account, pw string) (bool, error) {
	var hash string
	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT password_hash FROM accounts WHERE id = $1`, account.ID).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, deskauth.ErrAccountNotFound
		}
		return false, dbError(err)
	}

	ok, err := s.hasher.Verify(pw, hash)
	if err != nil || !ok {
		return false, err
	}
	if upgrade, _ := s.hasher.NeedsUpgrade(hash); upgrade {
		_ = s.SetPassword(ctx, account, pw)
	}
	return true, nil
}

func (s *Store) SetPassword(ctx context.Context, account deskauth.Account, pw string) error {
	hash, err := s.hasher.Hash(pw)
	if err != nil {
		return err
	}
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE accounts SET password_hash = $2 WHERE id = $1`, account.ID, hash)
	if err != nil {
		return dbError(err)
	}
	return requireOneRow(res, deskauth.ErrAccountNotFound)
}

func (s *Store) IncrementFailedAccessCount(ctx context.Context, account deskauth.Account) (int, error) {
	var count int
	err := s.conn(ctx).QueryRowContext(ctx,
		`UPDATE accounts SET failed_access_count = failed_access_count + 1
		 WHERE id = $1
		 RETURNING failed_access_count`, account.ID).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, deskauth.ErrAccountNotFound
		}
		return 0, dbError(err)
	}
	return count, nil
}

func (s *Store) ResetFailedAccessCount(ctx context.Context, account deskauth.Account) error {
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE accounts SET failed_access_count = 0 WHERE id = $1`, account.ID)
	if err != nil {
		return dbError(err)
	}
	return requireOneRow(res, deskauth.ErrAccountNotFound)
}

func (s *Store) SetLockout(ctx context.Context, account deskauth.Account, state deskauth.LockoutState) error {
	end, permanent := lockoutColumns(state)
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE accounts SET lockout_end = $2, lockout_permanent = $3 WHERE id = $1`,
		account.ID, end, permanent)
	if err != nil {
		return dbError(err)
	}
	return requireOneRow(res, deskauth.ErrAccountNotFound)
}
