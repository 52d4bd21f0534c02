// Package jwt signs and verifies deskauth access and refresh tokens with
// HS256 or Ed25519 keys. [Issuer] plugs a [Manager] into the engine as its
// token issuer and refresh-token parser.
package jwt
