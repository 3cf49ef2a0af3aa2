// Package postgres implements the checkpoint store on PostgreSQL using
// pgx/v5 with raw SQL. Each execution owns one row; saves upsert on the
// execution id. Position and state values are stored as JSONB. Schema
// changes ship as embedded SQL migrations.
package postgres
