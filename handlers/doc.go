// Package handlers builds the storage backends behind cache.Store.
//
// A Registry maps handler type names ("memory", "sql") to factories, and
// Build wires one handler per cache kind from configuration. SQLHandler
// persists entries, tags and paths in SQLite through gorm so that entries of
// kind remote can be shared by every process pointed at the same database.
package handlers
