// Package deskauth is the account-authentication core of the deskops incident
// backend: credential checks, per-account lockout, one-time codes for email
// confirmation and password reset, and the transitions between them.
//
// Build an [Engine] with [New]:
//
//	engine, err := deskauth.New().
//		WithUserStore(users).
//		WithRedis(rdb).
//		WithTokenIssuer(issuer).
//		WithEmailSender(mailer).
//		Build()
//
// Engine methods are safe for concurrent use. Persistence, delivery and token
// minting are interfaces ([UserStore], [OtpStore], [EmailSender],
// [TokenIssuer]); the pgstore, notify and jwt packages provide the production
// implementations.
//
// # Lockout
//
// Every wrong password increments the account's failure counter. Reaching
// Config.Lockout.Threshold locks the account until now+Duration. Expiry is
// lazy: the next login after the deadline clears the lock and the counter
// before the password is checked. An administrator lock ([Engine.DeactivateAccount])
// never expires.
//
// # One-time codes
//
// Codes are issued per purpose and are single use. Several unexpired codes
// may coexist unless Config.Otp.InvalidatePrior is set. Validation
// distinguishes unknown, expired and already-used codes.
//
// # Errors
//
// Every failure is a sentinel from errors.go or a typed error unwrapping to
// one. [KindOf] classifies an error, [CodeOf] maps it to a stable numeric
// [ResultCode], and [Message] renders it for clients without leaking backend
// details.
package deskauth
