package deskauth

import (
	"context"
	"strings"

	internalflows "github.com/deskops/deskauth/internal/flows"
	"go.uber.org/zap"
)

// Register creates a self-service account with an unconfirmed email and
// sends it an email-confirmation code. It never returns tokens.
//
// If the account was created but no confirmation code could be issued, the
// result carries Code=[ResultConfirmationNotGenerated] and a nil error.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
	var confirmation IssueOtpResult

	deps := e.registerFlowDeps()
	deps.ResolveRole = e.resolveRegistrationRole
	deps.IssueConfirmation = func(ctx context.Context, acct internalflows.AccountRecord) error {
		res, err := e.IssueOtp(ctx, fromFlowAccount(acct), OtpEmailConfirmation)
		if err != nil {
			return err
		}
		confirmation = res
		return nil
	}

	out, err := internalflows.RunRegister(ctx, internalflows.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		Role:      req.Role,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Age:       req.Age,
	}, deps)
	if err != nil {
		return RegisterResult{}, err
	}

	result := RegisterResult{
		Account:      fromFlowAccount(out.Account),
		Code:         ResultOK,
		Confirmation: confirmation,
	}
	if out.ConfirmationErr != nil {
		result.Code = ResultConfirmationNotGenerated
		e.logger.Warn("confirmation code not generated",
			zap.String("account_id", out.Account.ID),
			zap.Error(out.ConfirmationErr),
		)
	}
	return result, nil
}

// CreateAccount is the administrative path: any valid role including Admin,
// email already confirmed, no confirmation code sent.
func (e *Engine) CreateAccount(ctx context.Context, req CreateAccountRequest) (Account, error) {
	deps := e.registerFlowDeps()
	deps.ResolveRole = func(string) (uint8, bool, error) {
		if !req.Role.Valid() {
			return 0, false, ErrInvalidRole
		}
		return uint8(req.Role), req.Role.IsAdmin(), nil
	}

	out, err := internalflows.RunRegister(ctx, internalflows.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		Role:      req.Role.String(),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Age:       req.Age,
		Confirmed: true,
	}, deps)
	if err != nil {
		return Account{}, err
	}
	return fromFlowAccount(out.Account), nil
}

func (e *Engine) resolveRegistrationRole(raw string) (uint8, bool, error) {
	if strings.TrimSpace(raw) == "" {
		return uint8(e.config.Registration.DefaultRole), false, nil
	}
	role, ok := ParseRole(raw)
	if !ok {
		return 0, false, ErrInvalidRole
	}
	if role.IsAdmin() {
		return 0, false, ErrAdminRegistration
	}
	return uint8(role), false, nil
}

func (e *Engine) registerFlowDeps() internalflows.RegisterDeps {
	return internalflows.RegisterDeps{
		Now:         e.now,
		CheckPolicy: e.checkPolicy,
		Create: func(ctx context.Context, acct internalflows.AccountRecord, pw string) (internalflows.AccountRecord, error) {
			account := fromFlowAccount(acct)
			if account.ID == "" {
				account.ID = newID()
			}
			created, err := e.users.Create(ctx, account, pw)
			if err != nil {
				return internalflows.AccountRecord{}, err
			}
			return toFlowAccount(created), nil
		},
		MetricInc: e.flowMetricInc,
		EmitAudit: e.emitAudit,
		Metrics: internalflows.RegisterMetrics{
			RegisterSuccess: int(MetricRegisterSuccess),
			RegisterFailure: int(MetricRegisterFailure),
		},
		Events: internalflows.RegisterEvents{
			AccountCreated:       auditEventAccountCreated,
			AccountCreateFailure: auditEventAccountCreateFailure,
		},
		Errors: internalflows.RegisterErrors{
			EngineNotReady: ErrEngineNotReady,
			Validation:     ErrValidation,
			PasswordPolicy: policyError,
			MapCreateError: mapAccountWriteError,
		},
	}
}
