package flows

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// RegisterInput is the raw registration request. Role is resolved by
// RegisterDeps.ResolveRole.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	Role      string
	FirstName string
	LastName  string
	Age       int
	// Confirmed creates the account with a confirmed email and skips the
	// confirmation code.
	Confirmed bool
}

// RegisterOutcome is a created account plus the confirmation issuance result.
type RegisterOutcome struct {
	Account         AccountRecord
	ConfirmationErr error
}

type RegisterMetrics struct {
	RegisterSuccess int
	RegisterFailure int
}

type RegisterEvents struct {
	AccountCreated       string
	AccountCreateFailure string
}

type RegisterErrors struct {
	EngineNotReady error
	Validation     error
	PasswordPolicy func(reasons []string) error
	MapCreateError func(error) error
}

// RegisterDeps captures account creation dependencies.
type RegisterDeps struct {
	Now func() time.Time

	// ResolveRole returns the role to assign, or the error to report for it.
	ResolveRole       func(raw string) (role uint8, admin bool, err error)
	CheckPolicy       func(password string) []string
	Create            func(ctx context.Context, account AccountRecord, password string) (AccountRecord, error)
	IssueConfirmation func(context.Context, AccountRecord) error

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics RegisterMetrics
	Events  RegisterEvents
	Errors  RegisterErrors
}

func normalizeRegisterDeps(deps *RegisterDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.CheckPolicy == nil {
		deps.CheckPolicy = func(string) []string { return nil }
	}
	if deps.Errors.MapCreateError == nil {
		deps.Errors.MapCreateError = func(err error) error { return err }
	}
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail is a shape check only: exactly one '@', non-empty local part,
// no whitespace, and a domain that neither starts nor ends with a dot.
func ValidEmail(email string) bool {
	if email == "" || strings.ContainsAny(email, " \t\r\n") {
		return false
	}
	at := strings.IndexByte(email, '@')
	if at <= 0 || at != strings.LastIndexByte(email, '@') || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	return !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}

// RunRegister validates input, resolves the role, enforces the password
// policy, creates the account and issues the email-confirmation code.
// A confirmation failure does not undo the account.
func RunRegister(ctx context.Context, in RegisterInput, deps RegisterDeps) (RegisterOutcome, error) {
	normalizeRegisterDeps(&deps)
	if deps.ResolveRole == nil || deps.Create == nil || (!in.Confirmed && deps.IssueConfirmation == nil) {
		return RegisterOutcome{}, deps.Errors.EngineNotReady
	}

	fail := func(err error, reason string) (RegisterOutcome, error) {
		deps.MetricInc(deps.Metrics.RegisterFailure)
		deps.EmitAudit(ctx, deps.Events.AccountCreateFailure, false, "", err, func() map[string]string {
			return map[string]string{
				"reason": reason,
			}
		})
		return RegisterOutcome{}, err
	}

	username := strings.TrimSpace(in.Username)
	email := NormalizeEmail(in.Email)
	if username == "" || in.Password == "" || !ValidEmail(email) || in.Age < 0 {
		return fail(deps.Errors.Validation, "invalid_request")
	}

	role, admin, err := deps.ResolveRole(in.Role)
	if err != nil {
		return fail(err, "role")
	}

	if reasons := deps.CheckPolicy(in.Password); len(reasons) > 0 {
		return fail(deps.Errors.PasswordPolicy(reasons), "password_policy")
	}

	account := AccountRecord{
		Username:       username,
		Email:          email,
		FirstName:      strings.TrimSpace(in.FirstName),
		LastName:       strings.TrimSpace(in.LastName),
		Age:            in.Age,
		Role:           role,
		Admin:          admin,
		EmailConfirmed: in.Confirmed,
		Lockout:        Lockout{Kind: LockoutActive},
		CreatedAt:      deps.Now(),
	}

	created, err := deps.Create(ctx, account, in.Password)
	in.Password = ""
	if err != nil {
		return fail(deps.Errors.MapCreateError(err), "create")
	}

	deps.MetricInc(deps.Metrics.RegisterSuccess)
	deps.EmitAudit(ctx, deps.Events.AccountCreated, true, created.ID, nil, func() map[string]string {
		return map[string]string{
			"username":  created.Username,
			"confirmed": strconv.FormatBool(created.EmailConfirmed),
		}
	})

	out := RegisterOutcome{Account: created}
	if !in.Confirmed {
		out.ConfirmationErr = deps.IssueConfirmation(ctx, created)
	}
	return out, nil
}
