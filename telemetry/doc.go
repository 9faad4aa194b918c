// Package telemetry records one event per provider request phase.
//
// Providers emit a Started event before a request leaves the process and a
// Completed or Failed event once the response, or the final stream event, has
// been seen. Sinks fan these out to logs or a NATS subject. Emitting never
// fails a request; sinks log their own errors.
package telemetry
