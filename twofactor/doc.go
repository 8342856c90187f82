// Package twofactor enrolls and verifies TOTP second factors and manages
// single-use backup codes.
//
// Secrets are generated and checked with github.com/pquerna/otp. A code is
// accepted for any time step within Skew steps of the verification time.
//
// Backup codes are stored only as [HashBackupCode] digests. The plaintext
// codes are handed to the user exactly once.
package twofactor
