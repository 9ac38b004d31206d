// Package identity provides hybrid authentication primitives: local password
// accounts and federated (OpenID Connect) logins reconciled into a single
// durable Identity record.
//
// Identity reconciliation:
//   - Reconciler merges a verified federated Assertion into an existing local
//     account when the email matches, or creates a new federated identity. The
//     password hash of a merged account is retained so both login paths keep
//     working.
//
// Profile completeness:
//   - ProfileEngine derives the ProfileCompleted flag from names, level and
//     track. Every write path calls ProfileEngine.Apply right before the record
//     is persisted, so the stored flag never drifts from the record contents.
//
// Credits:
//   - Ledger applies add, subtract and set operations under a per-identity
//     lock and a conditional store update. Balances never go negative and every
//     mutation is recorded to the ActivitySink with the previous and new value.
//
// Request authentication:
//   - HybridAuthenticator resolves a principal from a server side session first
//     and a bearer token second. Strategies are plain values composed in
//     priority order.
//
// Storage, sessions, the federated provider and the HTTP surface live in the
// repository, session, federated and api packages.
package identity
