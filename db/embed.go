// Package db embeds the SQL schema for the catalog, coupon and order tables.
package db

import _ "embed"

// Schema holds idempotent DDL for every table the service uses.
//
//go:embed migrations/001_schema.sql
var Schema string
