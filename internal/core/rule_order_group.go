package core

import (
	"context"
	"fmt"

	"colazione/pkg/domain"
)

// NewOrderGroupConsistencyRule warns when an order is filed under a group the
// submitting user no longer belongs to. It never blocks.
func NewOrderGroupConsistencyRule() domain.Rule {
	return orderGroupConsistencyRule{}
}

type orderGroupConsistencyRule struct{}

func (orderGroupConsistencyRule) Name() string { return "order_group_consistency" }

func (r orderGroupConsistencyRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityOrder || imported(change) {
			continue
		}
		order, ok := change.After.(domain.Order)
		if !ok {
			continue
		}
		u, found := view.FindUser(order.Username)
		if !found || u.Group == order.Group {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("order for %s filed under %q but user belongs to %q", order.Username, order.Group, u.Group),
			Entity:   domain.EntityOrder,
			EntityID: order.Date + "/" + order.Username,
		})
	}
	return res, nil
}
