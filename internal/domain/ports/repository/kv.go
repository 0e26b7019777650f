package repository

import "context"

// KeyValueStore is the port for durable, shared key-value persistence with
// change notifications. All client instances pointed at the same backing
// store observe each other's writes.
//
// Set may fail with domain.ErrStorageQuota, which callers are expected to
// recover from; any other write error is a plain failure.
type KeyValueStore interface {
	// Get returns the stored value, or domain.ErrNotFound when the key is
	// absent.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, key string) error

	// Watch delivers the new value of key after every write performed by
	// *another* instance. A store never observes its own writes, mirroring
	// same-document storage-event semantics. The channel closes when ctx is
	// done.
	Watch(ctx context.Context, key string) (<-chan string, error)
}
