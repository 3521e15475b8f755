// Package api contains the core types shared by jobseal's submitter,
// worker and provider: the Job record, queue types, tracking events, the
// collaborator interfaces and the sentinel errors.
//
// Most users interact with the higher-level jobseal package, which
// re-exports selected types from this package. The api package is intended
// for custom providers, loggers and trackers.
//
// # Jobs
//
// A Job is persisted as a Document with the fields "type", "data" and,
// when a sensitive fragment was sealed, "encryptedData" and "encryptedKey".
// Both encrypted fields are present or both are absent.
//
// # Queue types
//
// QueueType is a closed set: QueueDefault, QueueSession and QueueFast, each
// mapping to its own storage path. The empty value means QueueDefault; any
// other value is rejected with ErrInvalidQueueType.
//
// # Collaborators
//
// Provider dispatches jobs to a registered Handler. Logger and Tracker
// receive log lines and completion events; NopLogger and NopTracker
// discard them.
package api
