// Package database handles relational database connections and schema inspection.
//
// It provides a wrapper around GORM to configure MySQL, Postgres or SQLite
// connections from the application's configuration. The SQL document store
// (core/docstore) is built on top of these connections.
//
// # Connect
//
// Connect opens the configured driver, applies pool settings and pings the
// server within the configured timeout. SQLite is pinned to a single
// connection so that ":memory:" databases survive for the life of the handle.
//
// # Schema Inspection
//
// GetTableColumns returns the column definitions of a table for each dialect.
// The document store uses it to verify its table before serving traffic.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    log.Fatal("Database connection failed", err)
//	}
//
//	columns, err := database.GetTableColumns(db, "documents")
package database
