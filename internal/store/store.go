// Package store holds the key/value stores prewarm persists state in.
//
// Two lifetimes exist. The session store (navigation history) is scoped to a
// single page-load session and is cleared when the session ends; [FileStore]
// keeps it in a JSON file so that separate `prewarm` invocations against the
// same session directory observe one history. The local store (feature usage
// preferences) survives sessions; [SQLiteStore] keeps it in a SQLite table.
// [MemoryStore] backs tests and ephemeral runs.
//
// Values are JSON-encoded. A missing key is not an error: Get reports
// found=false and leaves v untouched.
package store

import "encoding/json"

// Store is a JSON key/value store.
type Store interface {
	// Get decodes the value stored under key into v.
	Get(key string, v any) (found bool, err error)
	// Set encodes v and stores it under key.
	Set(key string, v any) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
	// Clear removes every key.
	Clear() error
}

// Well-known keys.
const (
	KeyRecentPages     = "recent_pages"
	KeyUserPreferences = "user_preferences"
)

func decode(raw []byte, v any) error {
	return json.Unmarshal(raw, v)
}
