package core

import (
	"context"
	"fmt"

	"colazione/pkg/domain"
)

// NewMenuChoiceRule rejects orders whose drink or food choice is not on the
// current menu. Orders already stored are never re-checked.
func NewMenuChoiceRule() domain.Rule {
	return menuChoiceRule{}
}

type menuChoiceRule struct{}

func (menuChoiceRule) Name() string { return "menu_choice" }

func (r menuChoiceRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	var menu *domain.Menu
	for _, change := range changes {
		if change.Entity != domain.EntityOrder || imported(change) {
			continue
		}
		order, ok := change.After.(domain.Order)
		if !ok {
			continue
		}
		if menu == nil {
			m := view.Menu()
			menu = &m
		}
		checks := []struct {
			category domain.Category
			choice   *domain.Choice
		}{
			{domain.CategoryDrinks, order.Payload.Drink},
			{domain.CategoryFoods, order.Payload.Food},
		}
		for _, c := range checks {
			if c.choice == nil || menu.HasChoice(c.category, *c.choice) {
				continue
			}
			res.Violations = append(res.Violations, blocking(r.Name(),
				fmt.Sprintf("%s %q (%s) is no longer available", c.category, c.choice.Item, c.choice.Variant),
				domain.EntityOrder, order.Date+"/"+order.Username))
		}
	}
	return res, nil
}
