// Package storage defines the pluggable persistent storage backend that
// modules reach through the storage_insert/storage_get/storage_delete
// host functions, namespaced per module.
package storage

import "context"

// Backend is implemented by every storage driver (in-memory, Postgres,
// Spanner). All operations are scoped to a namespace, which the caller
// sets to the module's name, or to "shared" for the *_shared host functions.
type Backend interface {
	Insert(ctx context.Context, namespace, key string, value []byte) (existingLen int, err error)
	Get(ctx context.Context, namespace, key string) (value []byte, ok bool, err error)
	Delete(ctx context.Context, namespace, key string) (deletedLen int, ok bool, err error)
	ListKeys(ctx context.Context, namespace string) ([]string, error)

	// GetNamespaceByteSize sums the bytes of every key and value currently
	// stored for namespace, used by the loader to seed storage_current at
	// startup.
	GetNamespaceByteSize(ctx context.Context, namespace string) (uint64, error)

	// IsPersistent reports whether data survives process restarts;
	// Memory returns false, every other backend returns true.
	IsPersistent() bool
}
