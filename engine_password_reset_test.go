package deskauth

import (
	"context"
	"errors"
	"testing"
)

const newPassword = "n3w-passphrase"

func TestForgotPasswordIssuesResetCode(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser("u1", "alice@example.com")

	res, err := env.engine.ForgotPassword(context.Background(), " ALICE@example.com")
	if err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	if !res.Delivered || res.RawCode == "" {
		t.Fatalf("expected a delivered reset code, got %+v", res)
	}
	codes := env.otps.all()
	if len(codes) != 1 || codes[0].Purpose != OtpResetPassword {
		t.Fatalf("expected one reset code, got %+v", codes)
	}
	if got := env.mail.messages()[0].Subject; got != "Your password reset code" {
		t.Fatalf("unexpected subject %q", got)
	}
	if env.metric(MetricPasswordResetRequest) != 1 {
		t.Fatalf("expected reset request metric 1, got %d", env.metric(MetricPasswordResetRequest))
	}
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.ForgotPassword(context.Background(), "nobody@example.com")
	if !errors.Is(err, ErrAccountNotFound) || CodeOf(err) != ResultAccountNotFound {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if len(env.mail.messages()) != 0 {
		t.Fatal("nothing may be sent for an unknown email")
	}
}

func TestResetPasswordSetsPasswordAndClearsLockout(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser("u1", "alice@example.com")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = env.engine.Login(ctx, "alice@example.com", "wrong")
	}
	if env.users.get("u1").Lockout.Kind != LockoutTemporary {
		t.Fatal("expected the account to be locked")
	}

	res, err := env.engine.ForgotPassword(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	if err := env.engine.ResetPassword(ctx, "alice@example.com", res.RawCode, newPassword); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	stored := env.users.get("u1")
	if stored.Lockout.Kind != LockoutActive || stored.FailedAccessCount != 0 {
		t.Fatalf("expected lockout and counter cleared, got %+v count=%d", stored.Lockout, stored.FailedAccessCount)
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", newPassword); err != nil {
		t.Fatalf("login with the new password failed: %v", err)
	}
	_, err = env.engine.Login(ctx, "alice@example.com", testPassword)
	wantRemaining(t, err, 2)
	if env.metric(MetricPasswordResetSuccess) != 1 {
		t.Fatalf("expected reset success metric 1, got %d", env.metric(MetricPasswordResetSuccess))
	}
}

func TestResetPasswordWeakPasswordKeepsCode(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser("u1", "alice@example.com")
	ctx := context.Background()

	res, _ := env.engine.ForgotPassword(ctx, "alice@example.com")

	err := env.engine.ResetPassword(ctx, "alice@example.com", res.RawCode, "abc")
	var policyErr *PolicyError
	if !errors.As(err, &policyErr) {
		t.Fatalf("expected PolicyError, got %v", err)
	}
	if env.otps.all()[0].Status != OtpGenerated {
		t.Fatal("a policy failure must not consume the code")
	}

	if err := env.engine.ResetPassword(ctx, "alice@example.com", res.RawCode, newPassword); err != nil {
		t.Fatalf("retry with a valid password failed: %v", err)
	}
}

func TestResetPasswordWrongCode(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser("u1", "alice@example.com")
	ctx := context.Background()

	res, _ := env.engine.ForgotPassword(ctx, "alice@example.com")
	wrong := "100000"
	if res.RawCode == wrong {
		wrong = "100001"
	}

	err := env.engine.ResetPassword(ctx, "alice@example.com", wrong, newPassword)
	if !errors.Is(err, ErrOtpInvalid) {
		t.Fatalf("expected ErrOtpInvalid, got %v", err)
	}
	if env.users.password("u1") != testPassword {
		t.Fatal("password must not change on a wrong code")
	}
	if env.metric(MetricPasswordResetFailure) != 1 {
		t.Fatalf("expected reset failure metric 1, got %d", env.metric(MetricPasswordResetFailure))
	}
}

func TestResetPasswordCodeIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser("u1", "alice@example.com")
	ctx := context.Background()

	res, _ := env.engine.ForgotPassword(ctx, "alice@example.com")
	if err := env.engine.ResetPassword(ctx, "alice@example.com", res.RawCode, newPassword); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}
	err := env.engine.ResetPassword(ctx, "alice@example.com", res.RawCode, "an0ther-pass")
	if !errors.Is(err, ErrOtpAlreadyUsed) {
		t.Fatalf("expected ErrOtpAlreadyUsed, got %v", err)
	}
	if env.users.password("u1") != newPassword {
		t.Fatal("a replayed code must not change the password")
	}
}

func TestResetPasswordRejectsConfirmationCode(t *testing.T) {
	env := newTestEnv(t)
	acct := env.seedUser("u1", "alice@example.com")
	ctx := context.Background()

	res, _ := env.engine.IssueOtp(ctx, acct, OtpEmailConfirmation)
	err := env.engine.ResetPassword(ctx, "alice@example.com", res.RawCode, newPassword)
	if !errors.Is(err, ErrOtpInvalid) {
		t.Fatalf("expected ErrOtpInvalid for a code of another purpose, got %v", err)
	}
}

func TestResetPasswordKeepsAdministrativeLock(t *testing.T) {
	env := newTestEnv(t)
	acct := env.seedUser("u1", "alice@example.com")
	acct.Lockout = Disabled()
	env.users.seed(acct, testPassword)
	ctx := context.Background()

	res, _ := env.engine.ForgotPassword(ctx, "alice@example.com")
	if err := env.engine.ResetPassword(ctx, "alice@example.com", res.RawCode, newPassword); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}
	if env.users.get("u1").Lockout.Kind != LockoutPermanent {
		t.Fatal("a reset must not lift an administrative lock")
	}
	_, err := env.engine.Login(ctx, "alice@example.com", newPassword)
	if !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestResetPasswordEmptyInput(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser("u1", "alice@example.com")
	ctx := context.Background()

	for _, tc := range []struct{ email, code, pw string }{
		{"alice@example.com", "", newPassword},
		{"alice@example.com", "123456", ""},
		{"", "123456", newPassword},
	} {
		err := env.engine.ResetPassword(ctx, tc.email, tc.code, tc.pw)
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("%+v: expected ErrValidation, got %v", tc, err)
		}
	}
}

func TestResetPasswordStoreFailure(t *testing.T) {
	env := newTestEnv(t, withTransactions())
	env.seedUser("u1", "alice@example.com")
	ctx := context.Background()

	res, _ := env.engine.ForgotPassword(ctx, "alice@example.com")
	env.users.setPasswordErr = errors.New("disk full")

	err := env.engine.ResetPassword(ctx, "alice@example.com", res.RawCode, newPassword)
	if !errors.Is(err, ErrPasswordResetFailed) || CodeOf(err) != ResultPasswordResetFailed {
		t.Fatalf("expected ErrPasswordResetFailed, got %v", err)
	}
	if env.tx.txCalls != 1 {
		t.Fatalf("expected the reset to run in one transaction, got %d", env.tx.txCalls)
	}
}
