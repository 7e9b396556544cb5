package core

import (
	"context"
	"fmt"

	"colazione/pkg/domain"
)

// NewAdminFloorRule blocks demoting or deleting an administrator when no
// other administrator would remain.
func NewAdminFloorRule() domain.Rule {
	return adminFloorRule{}
}

type adminFloorRule struct{}

func (adminFloorRule) Name() string { return "admin_floor" }

func (r adminFloorRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	var removed []string
	for _, change := range changes {
		if change.Entity != domain.EntityUser || imported(change) {
			continue
		}
		before, ok := change.Before.(domain.User)
		if !ok || !before.IsAdmin() {
			continue
		}
		switch change.Action {
		case domain.ActionDelete:
			removed = append(removed, before.Username)
		case domain.ActionUpdate:
			if after, ok := change.After.(domain.User); ok && !after.IsAdmin() {
				removed = append(removed, before.Username)
			}
		}
	}
	if len(removed) == 0 {
		return res, nil
	}
	// The view already reflects the removals, so the admins that existed
	// before the transaction are the survivors plus the removed ones.
	remaining := view.CountAdmins()
	if remaining >= 1 {
		return res, nil
	}
	for _, username := range removed {
		res.Violations = append(res.Violations, blocking(r.Name(),
			fmt.Sprintf("at least one administrator must remain (had %d)", remaining+len(removed)),
			domain.EntityUser, username))
	}
	return res, nil
}
