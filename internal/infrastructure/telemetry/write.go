package telemetry

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// RecordSecurityEvent writes a security event point.
//
// This is the primary sink for the auth service: one point per event in
// the security_events measurement, tagged by event name and account.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.RecordSecurityEvent("login_failure", "acc-1a2b3c4d", 1)
//	client.RecordSecurityEvent("family_revoked", "acc-1a2b3c4d", 3)
func (c *Client) RecordSecurityEvent(event, accountID string, count int64) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"event": event,
	}
	if accountID != "" {
		tags["account_id"] = accountID
	}

	point := write.NewPoint(
		"security_events",
		tags,
		map[string]interface{}{
			"count": count,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// The API server uses this for per-request latency points; use it for any
// measurement that doesn't fit RecordSecurityEvent.
//
// Example:
//
//	client.WritePoint("api_requests",
//	    map[string]string{"path": "/api/v1/auth/login", "status": "200"},
//	    map[string]interface{}{"latency_ms": 12.4})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
