// Package identity provides account management primitives (registration,
// JWT issuance, email verification, password recovery) plus the HTTP surface
// to expose them.
//
// Tokens:
//   - Access and refresh tokens are minted with separate signing keys and
//     lifetimes, and every token carries a kind claim so one can never be
//     replayed as the other. Logout places the access token on a denylist
//     that VerifyAccess consults.
//   - Email verification and password reset use opaque single-use tokens
//     stored server-side. Issuing a new token supersedes any outstanding one
//     for the same user and purpose, and consumption is atomic.
//
// Repositories:
//   - RepositoryManager bundles the Bun-backed stores (users, ephemeral
//     tokens, revoked tokens) and exposes RunInTx so command handlers can
//     compose multi-step writes.
//
// Commands:
//   - Registration, verification, and password flows are modeled as message
//     plus handler pairs. Handlers perform their writes inside a transaction
//     and hand notifications to a Notifier after commit, so a slow or failing
//     email provider never rolls back account state.
package identity
