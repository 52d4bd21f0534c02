// Package pgstore implements deskauth.UserStore and deskauth.Transactor
// ([Store]) and deskauth.OtpStore ([OtpStore]) on PostgreSQL through
// database/sql and the pgx driver.
//
// Passwords are hashed with Argon2id from the password package. Lockout is
// stored as lockout_end (NULL when not temporarily locked) plus
// lockout_permanent. Failed-attempt increments and OTP consumption are single
// UPDATE statements, so concurrent callers never lose an increment and a
// code is consumed once.
//
// Every store call made with a ctx passed down by [Store.InTx] runs inside
// that transaction.
package pgstore
