package api

import (
	"context"
	"time"
)

// StoreTimeout is the default timeout for session store queries
const StoreTimeout = 10 * time.Second

// WithStoreTimeout creates a context with the store timeout
func WithStoreTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, StoreTimeout)
}
