package core

import (
	"context"
	"fmt"

	"colazione/pkg/domain"
)

// NewPayerMembershipRule requires the designated payer to belong to the group
// at the moment the payment is recorded.
func NewPayerMembershipRule() domain.Rule {
	return payerMembershipRule{}
}

type payerMembershipRule struct{}

func (payerMembershipRule) Name() string { return "payer_membership" }

func (r payerMembershipRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityPayment || imported(change) {
			continue
		}
		p, ok := change.After.(domain.Payment)
		if !ok {
			continue
		}
		if u, found := view.FindUser(p.Payer); found && u.Group == p.Group {
			continue
		}
		res.Violations = append(res.Violations, blocking(r.Name(),
			fmt.Sprintf("user %q does not belong to group %q", p.Payer, p.Group),
			domain.EntityPayment, p.Date+"/"+p.Group))
	}
	return res, nil
}
