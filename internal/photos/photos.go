// Package photos stores uploaded photos and resolves photo handles back to bytes.
package photos

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a handle does not name a stored photo.
var ErrNotFound = errors.New("photo not found")

// Resolver turns an opaque photo handle into the photo's encoded bytes.
type Resolver interface {
	Resolve(ctx context.Context, handle string) ([]byte, error)
}

// Store persists photos and hands out handles a Resolver can later resolve.
type Store interface {
	Resolver
	Put(ctx context.Context, data []byte, contentType string) (string, error)
}
