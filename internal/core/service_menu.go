package core

import (
	"context"
	"strings"

	"colazione/pkg/domain"
)

// MenuItemInput describes a new menu item. Options is raw caller input and
// is normalized before storage.
type MenuItemInput struct {
	Category string
	Name     string
	Options  any
}

// MenuItemUpdate renames an item and/or replaces its options. A nil field is
// left untouched.
type MenuItemUpdate struct {
	NewName *string
	Options any
}

// GetMenu returns the menu with items ordered by name.
func (s *Service) GetMenu(ctx context.Context) (Menu, error) {
	var menu Menu
	err := s.run(ctx, "get_menu", func(ctx context.Context) error {
		snap, err := s.store.Read(ctx, domain.SetMenu)
		if err != nil {
			return err
		}
		menu = snap.Menu.Sorted()
		return nil
	})
	return menu, err
}

// AddMenuItem creates an item in its category.
func (s *Service) AddMenuItem(ctx context.Context, actor Actor, input MenuItemInput) (MenuItem, Result, error) {
	var (
		created MenuItem
		res     Result
	)
	err := s.run(ctx, "add_menu_item", func(ctx context.Context) error {
		if err := requireAdmin(actor); err != nil {
			return err
		}
		category, ok := domain.ResolveCategory(input.Category)
		if !ok {
			return domain.Validationf("invalid category %q", input.Category)
		}
		item, ok := domain.NormalizeMenuItem(input.Name, input.Options)
		if item.Name == "" {
			return domain.Validationf("item name is required")
		}
		if !ok {
			return domain.Validationf("at least one option is required")
		}
		var err error
		res, err = s.transact(ctx, "add_menu_item", []RecordSet{domain.SetMenu}, func(tx Transaction) error {
			var err error
			created, err = tx.CreateMenuItem(category, item)
			return err
		})
		return err
	})
	return created, res, err
}

// UpdateMenuItem renames name and/or replaces its options.
func (s *Service) UpdateMenuItem(ctx context.Context, actor Actor, rawCategory, name string, update MenuItemUpdate) (MenuItem, Result, error) {
	var (
		updated MenuItem
		res     Result
	)
	err := s.run(ctx, "update_menu_item", func(ctx context.Context) error {
		if err := requireAdmin(actor); err != nil {
			return err
		}
		category, ok := domain.ResolveCategory(rawCategory)
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return domain.Validationf("category and item name are required")
		}
		var options []string
		if update.Options != nil {
			switch update.Options.(type) {
			case []string, []any:
			default:
				return domain.Validationf("options must be a list")
			}
			options = domain.NormalizeOptions(update.Options)
			if len(options) == 0 {
				return domain.Validationf("at least one option is required")
			}
		}
		var err error
		res, err = s.transact(ctx, "update_menu_item", []RecordSet{domain.SetMenu}, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateMenuItem(category, name, func(item *MenuItem) error {
				if update.NewName != nil {
					newName := strings.TrimSpace(*update.NewName)
					if newName == "" {
						return domain.Validationf("the new item name cannot be empty")
					}
					item.Name = newName
				}
				if options != nil {
					item.Options = options
				}
				return nil
			})
			return err
		})
		return err
	})
	return updated, res, err
}

// DeleteMenuItem removes an item. Orders that reference it are kept.
func (s *Service) DeleteMenuItem(ctx context.Context, actor Actor, rawCategory, name string) (Result, error) {
	var res Result
	err := s.run(ctx, "delete_menu_item", func(ctx context.Context) error {
		if err := requireAdmin(actor); err != nil {
			return err
		}
		category, ok := domain.ResolveCategory(rawCategory)
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return domain.Validationf("category and item name are required")
		}
		var err error
		res, err = s.transact(ctx, "delete_menu_item", []RecordSet{domain.SetMenu}, func(tx Transaction) error {
			return tx.DeleteMenuItem(category, name)
		})
		return err
	})
	return res, err
}
