package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"colazione/pkg/domain"
)

const (
	upsertOrderSQL = `INSERT INTO orders (order_date, username, group_name, drink_item, drink_variant, food_item, food_variant, legacy_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (order_date, username) DO UPDATE SET
			group_name = excluded.group_name,
			drink_item = excluded.drink_item,
			drink_variant = excluded.drink_variant,
			food_item = excluded.food_item,
			food_variant = excluded.food_variant,
			legacy_text = excluded.legacy_text`
	upsertPaymentSQL = `INSERT INTO payments (payment_date, group_name, payer_username) VALUES (?, ?, ?)
		ON CONFLICT (payment_date, group_name) DO UPDATE SET payer_username = excluded.payer_username`
)

// replay writes the recorded changes as targeted statements, in order.
func (s *Store) replay(ctx context.Context, tx *sql.Tx, changes []domain.Change) error {
	for i, change := range changes {
		var err error
		switch change.Entity {
		case domain.EntityUser:
			err = s.replayUser(ctx, tx, change)
		case domain.EntityGroup:
			err = s.replayGroup(ctx, tx, change)
		case domain.EntityMenuItem:
			err = s.replayMenuItem(ctx, tx, change)
		case domain.EntityOrder:
			o, _ := change.After.(domain.Order)
			err = s.exec(ctx, tx, upsertOrderSQL, orderArgs(o)...)
		case domain.EntityPayment:
			p, _ := change.After.(domain.Payment)
			err = s.exec(ctx, tx, upsertPaymentSQL, p.Date, p.Group, p.Payer)
		default:
			err = fmt.Errorf("unsupported entity %q", change.Entity)
		}
		if err != nil {
			return fmt.Errorf("change %d (%s %s): %w", i, change.Action, change.Entity, err)
		}
	}
	return nil
}

func (s *Store) exec(ctx context.Context, q execQueryer, query string, args ...any) error {
	_, err := q.ExecContext(ctx, s.dialect.Rebind(query), args...)
	return err
}

func (s *Store) replayUser(ctx context.Context, tx *sql.Tx, change domain.Change) error {
	switch change.Action {
	case domain.ActionCreate, domain.ActionImport:
		u, _ := change.After.(domain.User)
		return s.exec(ctx, tx, `INSERT INTO users (username, password, group_name, role) VALUES (?, ?, ?, ?)`,
			u.Username, u.Password, u.Group, string(u.Role))
	case domain.ActionUpdate:
		u, _ := change.After.(domain.User)
		return s.exec(ctx, tx, `UPDATE users SET password = ?, group_name = ?, role = ? WHERE username = ?`,
			u.Password, u.Group, string(u.Role), u.Username)
	case domain.ActionDelete:
		u, _ := change.Before.(domain.User)
		return s.exec(ctx, tx, `DELETE FROM users WHERE username = ?`, u.Username)
	}
	return fmt.Errorf("unsupported action %q", change.Action)
}

func (s *Store) replayGroup(ctx context.Context, tx *sql.Tx, change domain.Change) error {
	switch change.Action {
	case domain.ActionCreate, domain.ActionImport:
		name, _ := change.After.(string)
		return s.exec(ctx, tx, `INSERT INTO user_groups (name) VALUES (?)`, name)
	case domain.ActionUpdate:
		from, _ := change.Before.(string)
		to, _ := change.After.(string)
		return s.exec(ctx, tx, `UPDATE user_groups SET name = ? WHERE name = ?`, to, from)
	case domain.ActionDelete:
		name, _ := change.Before.(string)
		return s.exec(ctx, tx, `DELETE FROM user_groups WHERE name = ?`, name)
	}
	return fmt.Errorf("unsupported action %q", change.Action)
}

func (s *Store) replayMenuItem(ctx context.Context, tx *sql.Tx, change domain.Change) error {
	switch change.Action {
	case domain.ActionCreate, domain.ActionImport:
		after, _ := change.After.(domain.MenuChange)
		if err := s.exec(ctx, tx, `INSERT INTO menu_items (category, name) VALUES (?, ?)`, string(after.Category), after.Item.Name); err != nil {
			return err
		}
		return s.insertOptions(ctx, tx, after)
	case domain.ActionUpdate:
		before, _ := change.Before.(domain.MenuChange)
		after, _ := change.After.(domain.MenuChange)
		if err := s.deleteOptions(ctx, tx, before); err != nil {
			return err
		}
		if err := s.exec(ctx, tx, `UPDATE menu_items SET name = ? WHERE category = ? AND name = ?`,
			after.Item.Name, string(before.Category), before.Item.Name); err != nil {
			return err
		}
		return s.insertOptions(ctx, tx, after)
	case domain.ActionDelete:
		before, _ := change.Before.(domain.MenuChange)
		if err := s.deleteOptions(ctx, tx, before); err != nil {
			return err
		}
		return s.exec(ctx, tx, `DELETE FROM menu_items WHERE category = ? AND name = ?`, string(before.Category), before.Item.Name)
	}
	return fmt.Errorf("unsupported action %q", change.Action)
}

func (s *Store) insertOptions(ctx context.Context, tx *sql.Tx, m domain.MenuChange) error {
	for pos, opt := range m.Item.Options {
		if err := s.exec(ctx, tx, `INSERT INTO menu_options (category, item_name, position, name) VALUES (?, ?, ?, ?)`,
			string(m.Category), m.Item.Name, pos, opt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) deleteOptions(ctx context.Context, tx *sql.Tx, m domain.MenuChange) error {
	return s.exec(ctx, tx, `DELETE FROM menu_options WHERE category = ? AND item_name = ?`, string(m.Category), m.Item.Name)
}

func orderArgs(o domain.Order) []any {
	var drinkItem, drinkVariant, foodItem, foodVariant, legacy sql.NullString
	if o.Payload.Drink != nil {
		drinkItem = sql.NullString{String: o.Payload.Drink.Item, Valid: true}
		drinkVariant = sql.NullString{String: o.Payload.Drink.Variant, Valid: true}
	}
	if o.Payload.Food != nil {
		foodItem = sql.NullString{String: o.Payload.Food.Item, Valid: true}
		foodVariant = sql.NullString{String: o.Payload.Food.Variant, Valid: true}
	}
	if o.Payload.LegacyText != "" {
		legacy = sql.NullString{String: o.Payload.LegacyText, Valid: true}
	}
	return []any{o.Date, o.Username, o.Group, drinkItem, drinkVariant, foodItem, foodVariant, legacy}
}
