package database

import (
	"context"
	"time"
)

// HealthCheck pings the database with a short deadline.
// Used by the /health endpoint's dependency probes.
func (c *Client) HealthCheck(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.db.PingContext(pingCtx)
}
