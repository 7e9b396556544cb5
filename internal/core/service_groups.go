package core

import (
	"context"
	"sort"
	"strings"

	"colazione/pkg/domain"
)

// ListGroups returns every group name in order.
func (s *Service) ListGroups(ctx context.Context, actor Actor) ([]string, error) {
	var groups []string
	err := s.run(ctx, "list_groups", func(ctx context.Context) error {
		if err := requireAdmin(actor); err != nil {
			return err
		}
		snap, err := s.store.Read(ctx, domain.SetGroups)
		if err != nil {
			return err
		}
		groups = snap.Groups
		sort.Strings(groups)
		return nil
	})
	return groups, err
}

// CreateGroup adds a group.
func (s *Service) CreateGroup(ctx context.Context, actor Actor, name string) (Result, error) {
	var res Result
	err := s.run(ctx, "create_group", func(ctx context.Context) error {
		if err := requireAdmin(actor); err != nil {
			return err
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return domain.Validationf("group name is required")
		}
		var err error
		res, err = s.transact(ctx, "create_group", []RecordSet{domain.SetGroups}, func(tx Transaction) error {
			return tx.CreateGroup(name)
		})
		return err
	})
	return res, err
}

// RenameGroup renames a group and moves its members in one transaction.
func (s *Service) RenameGroup(ctx context.Context, actor Actor, from, to string) (Result, error) {
	var res Result
	err := s.run(ctx, "rename_group", func(ctx context.Context) error {
		if err := requireAdmin(actor); err != nil {
			return err
		}
		from, to = strings.TrimSpace(from), strings.TrimSpace(to)
		if from == "" || to == "" {
			return domain.Validationf("current and new group names are required")
		}
		var err error
		res, err = s.transact(ctx, "rename_group", []RecordSet{domain.SetUsers, domain.SetGroups}, func(tx Transaction) error {
			return tx.RenameGroup(from, to)
		})
		return err
	})
	return res, err
}

// DeleteGroup removes a group that has no members.
func (s *Service) DeleteGroup(ctx context.Context, actor Actor, name string) (Result, error) {
	var res Result
	err := s.run(ctx, "delete_group", func(ctx context.Context) error {
		if err := requireAdmin(actor); err != nil {
			return err
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return domain.Validationf("group name is required")
		}
		var err error
		res, err = s.transact(ctx, "delete_group", []RecordSet{domain.SetUsers, domain.SetGroups}, func(tx Transaction) error {
			return tx.DeleteGroup(name)
		})
		return err
	})
	return res, err
}
