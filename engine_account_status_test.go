package deskauth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDeactivateAccountBlocksLogin(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser("u1", "alice@example.com")
	ctx := context.Background()

	acct, err := env.engine.DeactivateAccount(ctx, "u1")
	if err != nil {
		t.Fatalf("DeactivateAccount failed: %v", err)
	}
	if acct.Lockout.Kind != LockoutPermanent || env.users.get("u1").Lockout.Kind != LockoutPermanent {
		t.Fatalf("expected permanent lock, got %+v", acct.Lockout)
	}

	_, err = env.engine.Login(ctx, "alice@example.com", testPassword)
	if !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
	if env.metric(MetricAccountStatusChange) != 1 {
		t.Fatalf("expected status change metric 1, got %d", env.metric(MetricAccountStatusChange))
	}
}

func TestDeactivateAccountTwiceIsUnchanged(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser("u1", "alice@example.com")
	ctx := context.Background()

	if _, err := env.engine.DeactivateAccount(ctx, "u1"); err != nil {
		t.Fatalf("DeactivateAccount failed: %v", err)
	}
	_, err := env.engine.DeactivateAccount(ctx, "u1")
	if !errors.Is(err, ErrAccountStateUnchanged) || CodeOf(err) != ResultStateUnchanged {
		t.Fatalf("expected ErrAccountStateUnchanged, got %v", err)
	}
}

func TestDeactivateTemporarilyLockedAccount(t *testing.T) {
	env := newTestEnv(t)
	acct := env.seedUser("u1", "alice@example.com")
	acct.Lockout = LockedUntil(testEpoch.Add(10 * time.Minute))
	env.users.seed(acct, testPassword)

	out, err := env.engine.DeactivateAccount(context.Background(), "u1")
	if err != nil {
		t.Fatalf("DeactivateAccount failed: %v", err)
	}
	if out.Lockout.Kind != LockoutPermanent {
		t.Fatalf("a temporary lock must be upgraded to permanent, got %+v", out.Lockout)
	}
}

func TestAccountStatusUnknownOrEmptyID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.engine.DeactivateAccount(ctx, "missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if _, err := env.engine.ActivateAccount(ctx, "missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if _, err := env.engine.DeactivateAccount(ctx, " "); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestActivateAccountRestoresLogin(t *testing.T) {
	env := newTestEnv(t)
	acct := env.seedUser("u1", "alice@example.com")
	acct.Lockout = Disabled()
	acct.FailedAccessCount = 2
	env.users.seed(acct, testPassword)
	ctx := context.Background()

	out, err := env.engine.ActivateAccount(ctx, "u1")
	if err != nil {
		t.Fatalf("ActivateAccount failed: %v", err)
	}
	if out.Lockout.Kind != LockoutActive || out.FailedAccessCount != 0 {
		t.Fatalf("expected an active account with a clean counter, got %+v", out)
	}
	stored := env.users.get("u1")
	if stored.Lockout.Kind != LockoutActive || stored.FailedAccessCount != 0 {
		t.Fatalf("store not updated: %+v", stored)
	}

	if _, err := env.engine.Login(ctx, "alice@example.com", testPassword); err != nil {
		t.Fatalf("login after activation failed: %v", err)
	}
}

func TestActivateAccountLiftsTemporaryLock(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser("u1", "alice@example.com")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = env.engine.Login(ctx, "alice@example.com", "wrong")
	}
	if _, err := env.engine.ActivateAccount(ctx, "u1"); err != nil {
		t.Fatalf("ActivateAccount failed: %v", err)
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", testPassword); err != nil {
		t.Fatalf("login after unlock failed: %v", err)
	}
}

func TestActivateActiveAccountIsUnchanged(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser("u1", "alice@example.com")

	_, err := env.engine.ActivateAccount(context.Background(), "u1")
	if !errors.Is(err, ErrAccountStateUnchanged) || KindOf(err) != KindConflict {
		t.Fatalf("expected ErrAccountStateUnchanged, got %v", err)
	}
	if env.users.setLockoutCalls != 0 {
		t.Fatal("a no-op activation must not write")
	}
}

func TestChangeEmailClearsConfirmation(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser("u1", "alice@example.com")
	ctx := context.Background()

	acct, err := env.engine.ChangeEmail(ctx, "u1", "  Alice.Martin@Example.org ")
	if err != nil {
		t.Fatalf("ChangeEmail failed: %v", err)
	}
	if acct.Email != "alice.martin@example.org" || acct.EmailConfirmed {
		t.Fatalf("unexpected account %+v", acct)
	}
	if stored := env.users.get("u1"); stored.Email != acct.Email || stored.EmailConfirmed {
		t.Fatalf("store not updated: %+v", stored)
	}

	if _, err := env.engine.Login(ctx, "alice.martin@example.org", testPassword); !errors.Is(err, ErrEmailUnconfirmed) {
		t.Fatalf("expected ErrEmailUnconfirmed after email change, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("the old email must no longer resolve, got %v", err)
	}
}

func TestChangeEmailSameAddressIsNoop(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser("u1", "alice@example.com")

	acct, err := env.engine.ChangeEmail(context.Background(), "u1", "ALICE@example.com")
	if err != nil {
		t.Fatalf("ChangeEmail failed: %v", err)
	}
	if !acct.EmailConfirmed || env.users.updateCalls != 0 {
		t.Fatalf("same address must not write or clear confirmation, got %+v updates=%d", acct, env.users.updateCalls)
	}
}

func TestChangeEmailRejectsTakenOrInvalidAddress(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser("u1", "alice@example.com")
	env.seedUser("u2", "bob@example.com")
	ctx := context.Background()

	if _, err := env.engine.ChangeEmail(ctx, "u1", "Bob@example.com"); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
	if _, err := env.engine.ChangeEmail(ctx, "u1", "not-an-email"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := env.engine.ChangeEmail(ctx, "ghost", "ghost@example.com"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if env.users.get("u1").Email != "alice@example.com" {
		t.Fatal("rejected changes must not write")
	}
}

func TestChangeEmailAdminStillLogsIn(t *testing.T) {
	env := newTestEnv(t)
	env.users.seed(Account{
		ID:             "a1",
		Username:       "root",
		Email:          "root@example.com",
		Role:           RoleAdmin,
		EmailConfirmed: true,
		Lockout:        Unlocked(),
	}, testPassword)
	ctx := context.Background()

	if _, err := env.engine.ChangeEmail(ctx, "a1", "ops@example.com"); err != nil {
		t.Fatalf("ChangeEmail failed: %v", err)
	}
	if _, err := env.engine.Login(ctx, "ops@example.com", testPassword); err != nil {
		t.Fatalf("admins are not gated on confirmation: %v", err)
	}
}
