// Package core defines the shared domain model and contracts for the
// go-ingest event ingestion runtime: subscriptions, inbound events,
// dispatch envelopes, and the store/collaborator interfaces the other
// packages are wired through.
//
// Push webhooks (pipeline) and polled sources (poller) both converge on
// the same dispatch contract, so every event passes through one
// idempotent, admission-controlled path no matter how it was discovered.
package core
