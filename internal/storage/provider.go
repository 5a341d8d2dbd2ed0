// Package storage defines the key-value blob store the note core persists to,
// with in-memory, file-system and SQLite backends.
package storage

// KeyValueStore is durable string-keyed blob storage. Values are UTF-8 JSON
// documents; a Set replaces the whole value in one operation.
type KeyValueStore interface {
	// Get returns the value stored under key, or def when the key is absent.
	Get(key, def string) (string, error)
	// Set stores value under key, replacing any previous value.
	Set(key, value string) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
	// ListKeys returns every stored key in ascending order.
	ListKeys() ([]string, error)
}

// Compile-time interface verification.
var (
	_ KeyValueStore = (*Memory)(nil)
	_ KeyValueStore = (*FS)(nil)
	_ KeyValueStore = (*SQLite)(nil)
)
