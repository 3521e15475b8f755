// Package jobseal submits background jobs to a shared persistent queue and
// runs workers for them, sealing sensitive parts of a job's payload with
// public-key encryption before it leaves the submitting process.
//
// # Core Concepts
//
// The jobseal programming model is intentionally small:
//
//  1. Store
//  2. Submitter
//  3. Manager
//  4. Provider
//  5. Gateway
//
// # Store
//
// A Store holds job records and notifies subscribers when they change.
// Stores can be backed by different storage systems:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Postgres
//   - Redis
//   - MongoDB
//
// OpenStore selects one from configuration.
//
// # Submitter
//
// A Submitter creates job records in one queue (default, session or fast).
// AddJob is fire-and-forget; PerformJob blocks until a worker has consumed
// the job:
//
//	sub, _ := client.New(st, client.WithQueueType(jobseal.QueueFast))
//	err := sub.PerformJob(ctx, "charge", map[string]any{"amount": 100},
//	    map[string]any{"card": cardNumber})
//
// Payloads are sanitized first: nil values are removed at every nesting
// level. The sensitive fragment is encrypted to the public key published
// in the store; its plain form never reaches storage.
//
// # Manager
//
// A Manager wraps the job processing function and registers it with a
// Provider. For every job it decrypts the sensitive fragment into the job
// data, invokes the processor and, when the processor calls complete,
// emits a TrackingEvent before releasing the job to the provider.
//
// # Provider
//
// The Provider claims jobs from the store, dispatches them to the worker
// and deletes them once they complete. Failed jobs are retried up to a
// configured number of attempts.
//
// # Gateway
//
// A Gateway caches the public key and performs the encryption. Whether a
// crypto failure drops the sensitive fragment or fails the operation is
// decided by its FailurePolicy.
//
// # Bundle
//
// Bundle wires all of the above from a config.Config. NewLocalBundle does
// the same over an in-memory store with a fresh keypair, which is the most
// convenient way to try jobseal out.
//
// For examples, see the /examples directory.
package jobseal
