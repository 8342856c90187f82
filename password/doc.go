// Package password scores candidate passwords and hashes accepted ones.
//
// # Scoring
//
// [Score] awards 20 points for each of five independent checks (length,
// uppercase, lowercase, digit, special character) and subtracts 10 once if the
// password contains a common weak pattern. The result is clamped to 0..100.
// A password is acceptable only with a score of at least 80 and no violations.
//
// # Hashing
//
// Two [Hasher] implementations are provided:
//
//   - [Bcrypt]: the default, cost 12.
//   - [Argon2]: PHC encoded argon2id, selectable by configuration.
//
// [Verify] dispatches on the stored hash prefix, so accounts hashed under a
// previous algorithm keep working after the configured algorithm changes.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Log plaintext passwords or hash parameters.
package password
