// Package telemetry provides the log and tracking collaborators used by
// submitters and workers: a slog adapter for api.Logger and api.Tracker
// implementations that persist events, export Prometheus metrics or fan
// out to several trackers.
package telemetry
