// Package password implements Argon2id hashing and the password composition policy.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verify also accepts the base64 PasswordHash values of the ASP.NET Identity
// tables accounts are migrated from (format v2 and v3, PBKDF2).
// [Argon2.NeedsUpgrade] reports those, and Argon2id hashes produced with
// weaker parameters, so a store can re-hash on the next successful check.
//
// # Policy
//
// [Policy.Check] lists every broken rule instead of stopping at the first.
// The engine applies it on registration and password reset.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other deskauth package.
//   - Log plaintext passwords.
package password
