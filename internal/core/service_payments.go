package core

import (
	"context"
	"sort"
	"strings"

	"colazione/pkg/domain"
)

// PaymentsQuery selects a group's payment summary.
type PaymentsQuery struct {
	Group    string
	Date     string
	Username string
}

// PaymentRequest designates the payer of a group for a day.
type PaymentRequest struct {
	Group string
	Payer string
	Date  string
}

// PayerOnDate is the payer recorded for the requested day.
type PayerOnDate struct {
	Username string `json:"username"`
	Date     string `json:"date"`
}

// PayerTotal counts the payments made by one user.
type PayerTotal struct {
	Username string `json:"username"`
	Count    int    `json:"count"`
}

// PaymentLogEntry is one recorded payment.
type PaymentLogEntry struct {
	Date     string `json:"date"`
	Username string `json:"username"`
}

// PaymentSummary is a group's payment history.
type PaymentSummary struct {
	Group  string            `json:"group"`
	Date   string            `json:"date"`
	Payer  *PayerOnDate      `json:"payer"`
	Totals []PayerTotal      `json:"totals"`
	Log    []PaymentLogEntry `json:"log"`
}

// GetPayments summarizes who paid for group. Totals hold every current
// member (zero included) and every past payer, most payments first.
func (s *Service) GetPayments(ctx context.Context, actor Actor, query PaymentsQuery) (PaymentSummary, error) {
	var summary PaymentSummary
	err := s.run(ctx, "get_payments", func(ctx context.Context) error {
		group := strings.TrimSpace(query.Group)
		if group == "" {
			return domain.Validationf("group is required")
		}
		date, err := s.resolveDate(query.Date)
		if err != nil {
			return err
		}
		snap, err := s.store.Read(ctx, domain.SetUsers, domain.SetPayments)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() {
			username := strings.TrimSpace(query.Username)
			if username == "" {
				username = actor.Username
			}
			if username == "" {
				return domain.Validationf("username is required")
			}
			if err := ensureMember(snap.Users, group, username); err != nil {
				return err
			}
		}
		summary = summarizePayments(snap, group, date)
		return nil
	})
	return summary, err
}

func summarizePayments(snap Snapshot, group, date string) PaymentSummary {
	counts := map[string]int{}
	for _, u := range snap.Users {
		if u.Group == group {
			counts[u.Username] = 0
		}
	}
	log := []PaymentLogEntry{}
	for day, byGroup := range snap.Payments {
		payer := strings.TrimSpace(byGroup[group])
		if payer == "" {
			continue
		}
		counts[payer]++
		log = append(log, PaymentLogEntry{Date: day, Username: payer})
	}
	sort.Slice(log, func(i, j int) bool { return log[i].Date > log[j].Date })

	totals := make([]PayerTotal, 0, len(counts))
	for username, count := range counts {
		totals = append(totals, PayerTotal{Username: username, Count: count})
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Count != totals[j].Count {
			return totals[i].Count > totals[j].Count
		}
		return totals[i].Username < totals[j].Username
	})

	summary := PaymentSummary{Group: group, Date: date, Totals: totals, Log: log}
	if payer, ok := snap.Payments.Lookup(date, group); ok {
		summary.Payer = &PayerOnDate{Username: payer, Date: date}
	}
	return summary
}

// RegisterPayment records the payer of group for a day. Callers other than
// administrators may only register themselves within their own group.
func (s *Service) RegisterPayment(ctx context.Context, actor Actor, req PaymentRequest) (Payment, Result, error) {
	var (
		saved Payment
		res   Result
	)
	err := s.run(ctx, "register_payment", func(ctx context.Context) error {
		payment := Payment{Group: strings.TrimSpace(req.Group), Payer: strings.TrimSpace(req.Payer)}
		if payment.Group == "" || payment.Payer == "" {
			return domain.Validationf("group and payer are required")
		}
		date, err := s.resolveDate(req.Date)
		if err != nil {
			return err
		}
		payment.Date = date
		res, err = s.transact(ctx, "register_payment", []RecordSet{domain.SetUsers, domain.SetPayments}, func(tx Transaction) error {
			payer, ok := tx.FindUser(payment.Payer)
			if !ok {
				return domain.NotFoundf("user %q not found", payment.Payer)
			}
			if payer.Group != payment.Group {
				return domain.Validationf("user %q does not belong to group %q", payment.Payer, payment.Group)
			}
			if !actor.IsAdmin() {
				name := strings.TrimSpace(actor.Username)
				if name == "" {
					name = payment.Payer
				}
				if err := ensureMember(tx.ListUsers(), payment.Group, name); err != nil {
					return err
				}
				if name != payment.Payer {
					return domain.Forbiddenf("you can only register your own payment")
				}
			}
			var err error
			saved, err = tx.UpsertPayment(payment)
			return err
		})
		return err
	})
	return saved, res, err
}

func ensureMember(users []User, group, username string) error {
	for _, u := range users {
		if u.Username == username {
			if u.Group == group {
				return nil
			}
			break
		}
	}
	return domain.Forbiddenf("access to group %q is not allowed", group)
}
