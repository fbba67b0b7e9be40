package db

import "embed"

// MigrationFS holds the SQL migration files compiled into the binary so
// cmd/migrate needs no filesystem access at deploy time.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
