package core

import (
	"context"
	"sort"
	"strings"

	"colazione/pkg/domain"
)

// OrderRequest is a daily order submission. Order is the raw payload holding
// optional "drink" and "food" choices.
type OrderRequest struct {
	Username string
	Group    string
	Order    any
}

// OrdersQuery selects the orders of one day, optionally for one group.
type OrdersQuery struct {
	Date  string
	Group string
}

// SubmitOrder stores today's order for the user, replacing any earlier one.
func (s *Service) SubmitOrder(ctx context.Context, req OrderRequest) (Order, Result, error) {
	var (
		saved Order
		res   Result
	)
	err := s.run(ctx, "submit_order", func(ctx context.Context) error {
		order := Order{
			Date:     s.Today(),
			Username: strings.TrimSpace(req.Username),
			Group:    strings.TrimSpace(req.Group),
			Payload: domain.StructuredPayload(
				domain.ExtractChoice(req.Order, "drink"),
				domain.ExtractChoice(req.Order, "food"),
			),
		}
		if order.Username == "" || order.Group == "" {
			return domain.Validationf("username and group are required")
		}
		if !order.Payload.HasChoice() {
			return domain.Validationf("select at least one drink or food")
		}
		var err error
		sets := []RecordSet{domain.SetUsers, domain.SetMenu, domain.SetOrders}
		res, err = s.transact(ctx, "submit_order", sets, func(tx Transaction) error {
			var err error
			saved, err = tx.UpsertOrder(order)
			return err
		})
		return err
	})
	return saved, res, err
}

// ListOrders returns the day's orders sorted by group then username. Callers
// other than administrators must name a group.
func (s *Service) ListOrders(ctx context.Context, actor Actor, query OrdersQuery) ([]Order, error) {
	var orders []Order
	err := s.run(ctx, "list_orders", func(ctx context.Context) error {
		date, err := s.resolveDate(query.Date)
		if err != nil {
			return err
		}
		group := strings.TrimSpace(query.Group)
		if group == "" && !actor.IsAdmin() {
			return domain.Validationf("group is required")
		}
		snap, err := s.store.Read(ctx, domain.SetOrders)
		if err != nil {
			return err
		}
		orders = []Order{}
		for _, o := range snap.Orders[date] {
			if group != "" && o.Group != group {
				continue
			}
			o.Date = date
			o.Payload = domain.NormalizeOrderForDisplay(o.Payload)
			orders = append(orders, o)
		}
		sort.Slice(orders, func(i, j int) bool {
			if orders[i].Group != orders[j].Group {
				return orders[i].Group < orders[j].Group
			}
			return orders[i].Username < orders[j].Username
		})
		return nil
	})
	return orders, err
}
