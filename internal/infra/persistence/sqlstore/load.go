package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"colazione/internal/infra/persistence/state"
	"colazione/pkg/domain"
)

func (s *Store) load(ctx context.Context, q execQueryer, sets []domain.RecordSet) (domain.Snapshot, error) {
	var snap domain.Snapshot
	for _, set := range sets {
		var err error
		switch set {
		case domain.SetUsers:
			snap.Users, err = s.loadUsers(ctx, q)
		case domain.SetGroups:
			snap.Groups, err = s.loadGroups(ctx, q)
		case domain.SetMenu:
			snap.Menu, err = s.loadMenu(ctx, q)
		case domain.SetOrders:
			snap.Orders, err = s.loadOrders(ctx, q)
		case domain.SetPayments:
			snap.Payments, err = s.loadPayments(ctx, q)
		}
		if err != nil {
			return domain.Snapshot{}, fmt.Errorf("load %s: %w", set, err)
		}
	}
	return state.Fill(snap), nil
}

func (s *Store) query(ctx context.Context, q execQueryer, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) loadUsers(ctx context.Context, q execQueryer) ([]domain.User, error) {
	rows, err := s.query(ctx, q, `SELECT username, password, group_name, role FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	users := []domain.User{}
	for rows.Next() {
		var (
			u    domain.User
			role string
		)
		if err := rows.Scan(&u.Username, &u.Password, &u.Group, &role); err != nil {
			return nil, err
		}
		u.Role = domain.SanitizeRole(role)
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) loadGroups(ctx context.Context, q execQueryer) ([]string, error) {
	rows, err := s.query(ctx, q, `SELECT name FROM user_groups ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	groups := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		groups = append(groups, name)
	}
	return groups, rows.Err()
}

// loadMenu reads items and options in one statement so a concurrent rename
// or options update is never observed half applied.
func (s *Store) loadMenu(ctx context.Context, q execQueryer) (domain.Menu, error) {
	rows, err := s.query(ctx, q, `SELECT i.category, i.name, o.name
		FROM menu_items i
		LEFT JOIN menu_options o ON o.category = i.category AND o.item_name = i.name
		ORDER BY i.category, i.name, o.position`)
	if err != nil {
		return domain.Menu{}, err
	}
	defer func() { _ = rows.Close() }()
	type key struct{ category, name string }
	menu := domain.Menu{Drinks: []domain.MenuItem{}, Foods: []domain.MenuItem{}}
	index := map[key]int{}
	for rows.Next() {
		var (
			k   key
			opt sql.NullString
		)
		if err := rows.Scan(&k.category, &k.name, &opt); err != nil {
			return domain.Menu{}, err
		}
		category := domain.Category(k.category)
		items := menu.Items(category)
		i, seen := index[k]
		if !seen {
			i = len(items)
			index[k] = i
			items = append(items, domain.MenuItem{Name: k.name, Options: []string{}})
		}
		if opt.Valid {
			items[i].Options = append(items[i].Options, opt.String)
		}
		menu.SetItems(category, items)
	}
	return menu, rows.Err()
}

func (s *Store) loadOrders(ctx context.Context, q execQueryer) (domain.OrderBook, error) {
	rows, err := s.query(ctx, q, `SELECT order_date, username, group_name, drink_item, drink_variant, food_item, food_variant, legacy_text
		FROM orders ORDER BY order_date, group_name, username`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	book := domain.OrderBook{}
	for rows.Next() {
		var o domain.Order
		var drinkItem, drinkVariant, foodItem, foodVariant, legacy sql.NullString
		if err := rows.Scan(&o.Date, &o.Username, &o.Group, &drinkItem, &drinkVariant, &foodItem, &foodVariant, &legacy); err != nil {
			return nil, err
		}
		o.Payload = domain.StructuredPayload(
			domain.Choice{Item: drinkItem.String, Variant: drinkVariant.String},
			domain.Choice{Item: foodItem.String, Variant: foodVariant.String},
		)
		o.Payload.LegacyText = legacy.String
		if !o.Payload.HasChoice() && o.Payload.LegacyText != "" {
			o.Payload.Kind = domain.PayloadLegacy
		}
		book[o.Date] = append(book[o.Date], o)
	}
	return book, rows.Err()
}

func (s *Store) loadPayments(ctx context.Context, q execQueryer) (domain.PaymentLedger, error) {
	rows, err := s.query(ctx, q, `SELECT payment_date, group_name, payer_username FROM payments`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	ledger := domain.PaymentLedger{}
	for rows.Next() {
		var date, group, payer string
		if err := rows.Scan(&date, &group, &payer); err != nil {
			return nil, err
		}
		if ledger[date] == nil {
			ledger[date] = map[string]string{}
		}
		ledger[date][group] = payer
	}
	return ledger, rows.Err()
}
