// Package db embeds the promotion and tax schema.
package db

import _ "embed"

// Schema creates the promotions and tax_definitions tables. It is
// idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string
