package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates the normalized tables. Group references are not foreign keys;
// referential integrity is enforced by the rules engine.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		password TEXT NOT NULL,
		group_name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user'
	)`,
	`CREATE TABLE IF NOT EXISTS user_groups (
		name TEXT PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS menu_items (
		category TEXT NOT NULL,
		name TEXT NOT NULL,
		PRIMARY KEY (category, name)
	)`,
	`CREATE TABLE IF NOT EXISTS menu_options (
		category TEXT NOT NULL,
		item_name TEXT NOT NULL,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		PRIMARY KEY (category, item_name, position)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		order_date TEXT NOT NULL,
		username TEXT NOT NULL,
		group_name TEXT NOT NULL,
		drink_item TEXT,
		drink_variant TEXT,
		food_item TEXT,
		food_variant TEXT,
		legacy_text TEXT,
		PRIMARY KEY (order_date, username)
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		payment_date TEXT NOT NULL,
		group_name TEXT NOT NULL,
		payer_username TEXT NOT NULL,
		PRIMARY KEY (payment_date, group_name)
	)`,
}

// Schema returns the DDL statements applied on open.
func Schema() []string { return append([]string(nil), schema...) }

func applySchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}
