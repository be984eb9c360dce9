// Package auth provides accounts, password hashing, access tokens and
// password reset codes.
//
// Three roles exist (user → operator → admin) with a static role to
// permission mapping. Passwords are hashed with Argon2id and access tokens
// are HS256 JWTs carrying the account ID, email and role. Reset codes are six
// digits, stored as SHA-256 hashes, and single-use.
package auth
