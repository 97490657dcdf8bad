// Package bunstore provides a PostgreSQL-backed history.Store built on
// the Bun ORM. History entries are append-only rows; runs and timers are
// updated in place. Use Migrate to create the schema.
package bunstore
