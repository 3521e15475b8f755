package api

import "errors"

// Configuration errors. These are returned at construction or
// registration time and are never retried.
var (
	ErrMissingStore            = errors.New("jobseal: store is required")
	ErrMissingProvider         = errors.New("jobseal: provider is required")
	ErrMissingProcessor        = errors.New("jobseal: job processor is required")
	ErrMissingJobType          = errors.New("jobseal: job type is required")
	ErrInvalidQueueType        = errors.New("jobseal: invalid queue type")
	ErrWorkerNotRegistered     = errors.New("jobseal: no worker registered")
	ErrWorkerAlreadyRegistered = errors.New("jobseal: worker already registered")
)

// Runtime errors.
var (
	ErrEncryption     = errors.New("jobseal: encrypting sensitive data failed")
	ErrDecryption     = errors.New("jobseal: decrypting sensitive data failed")
	ErrPerformTimeout = errors.New("jobseal: timed out waiting for job completion")
	// ErrSubscriptionEnded is returned by Wait when the change stream stops
	// before the job record is deleted, e.g. because the store was closed.
	ErrSubscriptionEnded = errors.New("jobseal: subscription ended before the job completed")
)
