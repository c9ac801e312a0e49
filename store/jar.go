// Package store persists the user's address collection between runs. A Jar is
// a small cookie store: named values with an expiry. Book applies the address
// retention policy on top of a Jar.
package store

import (
	"context"
	"time"
)

// Jar stores named values with an expiry time. Expired entries read as absent.
type Jar interface {
	Get(ctx context.Context, name string) (value []byte, found bool, err error)
	Set(ctx context.Context, name string, value []byte, expires time.Time) error
	Delete(ctx context.Context, name string) error
	// Sweep removes expired entries and reports how many were dropped.
	Sweep(ctx context.Context) (int, error)
	Close() error
}
