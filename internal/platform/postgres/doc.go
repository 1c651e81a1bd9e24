// Package postgres provides PostgreSQL implementations of the storage
// interfaces defined in internal/store, using the pgx stdlib driver through
// database/sql. It also embeds the goose migrations for the schema the
// dispatch pipeline reads from.
package postgres
