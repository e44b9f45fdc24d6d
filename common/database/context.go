package database

import (
	"context"
	"time"
)

// Deadlines applied to single database calls. A slow Postgres must not pin an
// intake request or a dispatcher worker past these.
const (
	DefaultQueryTimeout = 5 * time.Second  // lookups and admin listings
	DefaultWriteTimeout = 10 * time.Second // submission inserts and status transitions
	DefaultBulkTimeout  = 30 * time.Second // backfill scans
)

// QueryContext bounds a read.
func QueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultQueryTimeout)
}

// WriteContext bounds a write or a whole write transaction.
func WriteContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultWriteTimeout)
}

// BulkContext bounds scans over many submissions.
func BulkContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultBulkTimeout)
}
