// Package db embeds the database schema applied on startup.
package db

import _ "embed"

// Schema holds the DDL for every table the cafe backend uses. It is
// idempotent: all statements are CREATE IF NOT EXISTS.
//
//go:embed migrations/001_schema.sql
var Schema string
