// Package telemetry records security events to InfluxDB.
//
// Events (logins, lockouts, token reuse) are written as points in the
// security_events measurement using the non-blocking batched write API,
// so the auth flows never wait on the metrics backend. When telemetry is
// disabled in configuration the auth service simply runs without a sink.
package telemetry
