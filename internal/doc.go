// Package internal holds helpers private to secureauth: one-time token
// generation and digesting.
//
// # Sub-packages
//
//   - audit: buffered async delivery of security events
//   - httpapi: JSON HTTP handlers used by cmd/secureauth-server
//   - notify: log-backed Notifier for development deployments
//
// # What this package must NOT do
//
//   - Export types that appear in the public secureauth API.
//   - Be imported by any package outside the secureauth module.
package internal
