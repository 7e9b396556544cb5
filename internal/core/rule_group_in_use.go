package core

import (
	"context"
	"fmt"

	"colazione/pkg/domain"
)

// NewGroupInUseRule blocks deleting a group that still has members.
func NewGroupInUseRule() domain.Rule {
	return groupInUseRule{}
}

type groupInUseRule struct{}

func (groupInUseRule) Name() string { return "group_in_use" }

func (r groupInUseRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityGroup || change.Action != domain.ActionDelete {
			continue
		}
		name, _ := change.Before.(string)
		members := 0
		for _, u := range view.ListUsers() {
			if u.Group == name {
				members++
			}
		}
		if members == 0 {
			continue
		}
		res.Violations = append(res.Violations, blocking(r.Name(),
			fmt.Sprintf("group %q is assigned to %d user(s)", name, members),
			domain.EntityGroup, name))
	}
	return res, nil
}
