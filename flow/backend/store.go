// Package backend provides concrete Backend implementations for the
// suspension/persistence port: an in-memory map, SQLite, and MySQL.
package backend

import "github.com/flowkit/flowengine/flow"

// Backend re-exports flow.Backend so callers that only import this package
// can still reference the port type by name.
type Backend = flow.Backend
