package internaldefs

import (
	"github.com/deskops/deskauth"
)

// MetricDef names one counter or histogram for export.
type MetricDef struct {
	ID   deskauth.MetricID
	Name string
	Help string
}

var CounterDefs = []MetricDef{
	{ID: deskauth.MetricLoginSuccess, Name: "deskauth_login_success_total", Help: "Successful logins."},
	{ID: deskauth.MetricLoginFailure, Name: "deskauth_login_failure_total", Help: "Logins refused for unknown email or wrong password."},
	{ID: deskauth.MetricLoginLocked, Name: "deskauth_login_locked_total", Help: "Logins refused by a temporary lockout."},
	{ID: deskauth.MetricLoginDisabled, Name: "deskauth_login_disabled_total", Help: "Logins refused by an administrative lockout."},
	{ID: deskauth.MetricLoginUnconfirmed, Name: "deskauth_login_unconfirmed_total", Help: "Logins refused because the email is unconfirmed."},
	{ID: deskauth.MetricLockoutTriggered, Name: "deskauth_lockout_triggered_total", Help: "Accounts locked after reaching the failure threshold."},
	{ID: deskauth.MetricLockoutCleared, Name: "deskauth_lockout_cleared_total", Help: "Expired temporary lockouts cleared on login."},
	{ID: deskauth.MetricRegisterSuccess, Name: "deskauth_register_success_total", Help: "Accounts created."},
	{ID: deskauth.MetricRegisterFailure, Name: "deskauth_register_failure_total", Help: "Rejected account creations."},
	{ID: deskauth.MetricOtpIssued, Name: "deskauth_otp_issued_total", Help: "One-time codes issued."},
	{ID: deskauth.MetricOtpUndelivered, Name: "deskauth_otp_undelivered_total", Help: "One-time codes whose email delivery failed."},
	{ID: deskauth.MetricOtpValidated, Name: "deskauth_otp_validated_total", Help: "One-time codes consumed."},
	{ID: deskauth.MetricOtpRejected, Name: "deskauth_otp_rejected_total", Help: "Rejected one-time code validations."},
	{ID: deskauth.MetricPasswordResetRequest, Name: "deskauth_password_reset_request_total", Help: "Password reset codes requested."},
	{ID: deskauth.MetricPasswordResetSuccess, Name: "deskauth_password_reset_success_total", Help: "Completed password resets."},
	{ID: deskauth.MetricPasswordResetFailure, Name: "deskauth_password_reset_failure_total", Help: "Failed password resets."},
	{ID: deskauth.MetricAccountStatusChange, Name: "deskauth_account_status_change_total", Help: "Account activations, deactivations and email changes."},
	{ID: deskauth.MetricRefreshSuccess, Name: "deskauth_refresh_success_total", Help: "Successful refresh-token exchanges."},
	{ID: deskauth.MetricRefreshFailure, Name: "deskauth_refresh_failure_total", Help: "Rejected refresh-token exchanges."},
}

var HistogramDefs = []MetricDef{
	{ID: deskauth.MetricLoginLatency, Name: "deskauth_login_latency_seconds", Help: "Login latency."},
	{ID: deskauth.MetricRegisterLatency, Name: "deskauth_register_latency_seconds", Help: "Registration and account creation latency."},
	{ID: deskauth.MetricOtpIssueLatency, Name: "deskauth_otp_issue_latency_seconds", Help: "OTP issuance latency, including email delivery."},
	{ID: deskauth.MetricOtpValidateLatency, Name: "deskauth_otp_validate_latency_seconds", Help: "OTP validation latency."},
	{ID: deskauth.MetricPasswordResetLatency, Name: "deskauth_password_reset_latency_seconds", Help: "Password reset latency."},
	{ID: deskauth.MetricAccountOperationsLatency, Name: "deskauth_account_operations_latency_seconds", Help: "Account status, email change and refresh latency."},
}

// AuditDropped is exported next to the engine metrics.
var AuditDropped = MetricDef{
	Name: "deskauth_audit_dropped_total",
	Help: "Audit events dropped because the dispatcher buffer was full.",
}

// BucketCount matches the engine's fixed latency buckets.
const BucketCount = 8

// HistogramBounds are the upper bounds in seconds, as Prometheus le labels.
var HistogramBounds = [BucketCount]string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// HistogramBoundSuffix renders HistogramBounds for use in instrument names.
var HistogramBoundSuffix = [BucketCount]string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}

// Cumulative turns raw per-bucket counts into cumulative counts. Short or
// nil input is padded with zeros.
func Cumulative(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < BucketCount; i++ {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
