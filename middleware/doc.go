// Package middleware exposes HTTP guards over deskauth access tokens.
//
// # Guards
//
//   - [Guard] verifies the bearer access token and injects its claims.
//   - [RequireRole] rejects requests whose claims lack one of the given roles.
//
// Token verification is delegated to an [AccessParser], normally a
// *jwt.Manager. Refresh tokens are rejected because the manager checks the
// token type.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into parser calls. It does not look
// up accounts, so a token stays valid until expiry even if the account is
// locked afterwards.
package middleware
