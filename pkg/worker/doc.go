// Package worker wraps a job processing function so that it can be
// registered with a provider.
//
// For every job the provider dispatches, the wrapper:
//
//   - Logs the job type and data through the configured api.Logger
//   - Decrypts the sensitive fragment, if the job carries one, and merges
//     it into the job data
//   - Invokes the processor with a completion callback
//   - On completion, hands a TrackingEvent to the configured api.Tracker
//     and then signals the provider
//
// # Failure policy
//
// Decryption failures follow the gateway's sealer.FailurePolicy. Under
// sealer.PolicyContinue (the default) the failure is logged and the
// processor runs without the sensitive fields. Under sealer.PolicyStrict
// the job is completed with the decryption error and the processor is not
// invoked.
//
// Errors returned by the processor are passed through to the provider
// unchanged; retrying them is the provider's concern.
//
// # Shutdown
//
// Manager.Shutdown forwards to the provider's Shutdown, which stops
// claiming new jobs and waits for in-flight ones. Calling it before a
// worker has been registered returns api.ErrWorkerNotRegistered.
package worker
