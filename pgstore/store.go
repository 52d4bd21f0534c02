package pgstore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/deskops/deskauth"
	"github.com/deskops/deskauth/password"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// Hasher hashes and verifies passwords. *password.Argon2 implements it.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// Store is the PostgreSQL account store. [Store.Otps] returns the OTP
// store over the same database.
type Store struct {
	db     *sql.DB
	hasher Hasher
	now    func() time.Time
}

var (
	_ deskauth.UserStore  = (*Store)(nil)
	_ deskauth.Transactor = (*Store)(nil)
)

// New returns a store over db. A nil hasher uses Argon2id with
// password.DefaultConfig.
func New(db *sql.DB, hasher Hasher) (*Store, error) {
	if db == nil {
		return nil, errors.New("pgstore: nil db")
	}
	if hasher == nil {
		a, err := password.NewArgon2(password.DefaultConfig())
		if err != nil {
			return nil, err
		}
		hasher = a
	}
	return &Store{db: db, hasher: hasher, now: time.Now}, nil
}

func dbError(err error) error {
	return fmt.Errorf("db error: %w", err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func requireOneRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return dbError(err)
	}
	if n == 0 {
		return missing
	}
	return nil
}
