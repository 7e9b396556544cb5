package core

import (
	"context"
	"fmt"

	"colazione/pkg/domain"
)

// NewGroupAssignmentRule rejects users created in, or moved to, a group that
// does not exist.
func NewGroupAssignmentRule() domain.Rule {
	return groupAssignmentRule{}
}

type groupAssignmentRule struct{}

func (groupAssignmentRule) Name() string { return "group_assignment" }

func (r groupAssignmentRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityUser || imported(change) {
			continue
		}
		after, ok := change.After.(domain.User)
		if !ok {
			continue
		}
		if before, had := change.Before.(domain.User); had && before.Group == after.Group {
			continue
		}
		if view.HasGroup(after.Group) {
			continue
		}
		res.Violations = append(res.Violations, blocking(r.Name(),
			fmt.Sprintf("group %q does not exist", after.Group),
			domain.EntityUser, after.Username))
	}
	return res, nil
}
