// Package storetest holds the record store contract suite every backend runs
// from its own tests.
package storetest

import (
	"context"
	"errors"
	"sort"
	"testing"

	"colazione/pkg/domain"
)

// Factory opens a fresh, empty store for one subtest.
type Factory func(t *testing.T) domain.PersistentStore

var (
	usersAndGroups = []domain.RecordSet{domain.SetUsers, domain.SetGroups}
	menuSet        = []domain.RecordSet{domain.SetMenu}
)

// Run executes the contract suite against stores produced by open.
func Run(t *testing.T, open Factory) {
	t.Helper()
	cases := []struct {
		name string
		fn   func(*testing.T, domain.PersistentStore)
	}{
		{"missing sets read as empty", emptyRead},
		{"create conflicts never overwrite", uniqueness},
		{"failed transaction writes nothing", rollback},
		{"rename cascades in one transaction", renameCascade},
		{"menu items round trip", menuRoundTrip},
		{"order upsert keeps latest submission", orderUpsert},
		{"payment upsert keeps one payer", paymentUpsert},
		{"restore imports a snapshot", restore},
		{"restore rejects repeated keys", restoreDuplicates},
		{"unlocked set writes are rejected", unlockedWrite},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			store := open(t)
			t.Cleanup(func() { _ = store.Close() })
			tc.fn(t, store)
		})
	}
}

func mustRun(t *testing.T, store domain.PersistentStore, sets []domain.RecordSet, fn func(domain.Transaction) error) {
	t.Helper()
	if _, err := store.RunInTransaction(context.Background(), sets, fn); err != nil {
		t.Fatalf("transaction on %v: %v", sets, err)
	}
}

func mustRead(t *testing.T, store domain.PersistentStore, sets ...domain.RecordSet) domain.Snapshot {
	t.Helper()
	snap, err := store.Read(context.Background(), sets...)
	if err != nil {
		t.Fatalf("read %v: %v", sets, err)
	}
	return snap
}

func seedTeam(t *testing.T, store domain.PersistentStore) {
	t.Helper()
	mustRun(t, store, usersAndGroups, func(tx domain.Transaction) error {
		for _, g := range []string{"Team A", "Team C"} {
			if err := tx.CreateGroup(g); err != nil {
				return err
			}
		}
		for _, u := range []domain.User{
			{Username: "alice", Password: "secret", Group: "Team A", Role: domain.RoleAdmin},
			{Username: "bob", Password: "hunter2", Group: "Team A", Role: domain.RoleUser},
			{Username: "carol", Password: "pw", Group: "Team C", Role: domain.RoleUser},
		} {
			if _, err := tx.CreateUser(u); err != nil {
				return err
			}
		}
		return nil
	})
}

func emptyRead(t *testing.T, store domain.PersistentStore) {
	snap := mustRead(t, store, domain.AllRecordSets...)
	if !snap.Empty() {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
	if snap.Users == nil || snap.Groups == nil || snap.Menu.Drinks == nil || snap.Orders == nil || snap.Payments == nil {
		t.Fatalf("empty sets should be non-nil defaults: %+v", snap)
	}
}

func uniqueness(t *testing.T, store domain.PersistentStore) {
	seedTeam(t, store)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, usersAndGroups, func(tx domain.Transaction) error {
		return tx.CreateGroup("Team A")
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate group: expected conflict, got %v", err)
	}
	_, err = store.RunInTransaction(ctx, usersAndGroups, func(tx domain.Transaction) error {
		_, err := tx.CreateUser(domain.User{Username: "bob", Password: "other", Group: "Team C"})
		return err
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate user: expected conflict, got %v", err)
	}
	snap := mustRead(t, store, domain.SetUsers)
	for _, u := range snap.Users {
		if u.Username == "bob" && (u.Password != "hunter2" || u.Group != "Team A") {
			t.Fatalf("conflicting create overwrote bob: %+v", u)
		}
	}
	mustRun(t, store, menuSet, func(tx domain.Transaction) error {
		_, err := tx.CreateMenuItem(domain.CategoryDrinks, domain.MenuItem{Name: "Tea", Options: []string{"Green"}})
		return err
	})
	_, err = store.RunInTransaction(ctx, menuSet, func(tx domain.Transaction) error {
		_, err := tx.CreateMenuItem(domain.CategoryDrinks, domain.MenuItem{Name: "Tea", Options: []string{"Black"}})
		return err
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate menu item: expected conflict, got %v", err)
	}
	// the same name in the other category is a different item
	mustRun(t, store, menuSet, func(tx domain.Transaction) error {
		_, err := tx.CreateMenuItem(domain.CategoryFoods, domain.MenuItem{Name: "Tea", Options: []string{"Cake"}})
		return err
	})
}

func rollback(t *testing.T, store domain.PersistentStore) {
	seedTeam(t, store)
	boom := errors.New("boom")
	_, err := store.RunInTransaction(context.Background(), usersAndGroups, func(tx domain.Transaction) error {
		if err := tx.CreateGroup("Team B"); err != nil {
			return err
		}
		if err := tx.DeleteUser("carol"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	snap := mustRead(t, store, usersAndGroups...)
	if len(snap.Groups) != 2 || len(snap.Users) != 3 {
		t.Fatalf("failed transaction leaked writes: groups=%v users=%d", snap.Groups, len(snap.Users))
	}
}

func renameCascade(t *testing.T, store domain.PersistentStore) {
	seedTeam(t, store)
	mustRun(t, store, usersAndGroups, func(tx domain.Transaction) error {
		return tx.RenameGroup("Team A", "Team B")
	})
	snap := mustRead(t, store, usersAndGroups...)
	groups := append([]string(nil), snap.Groups...)
	sort.Strings(groups)
	if len(groups) != 2 || groups[0] != "Team B" || groups[1] != "Team C" {
		t.Fatalf("unexpected groups after rename: %v", groups)
	}
	moved := 0
	for _, u := range snap.Users {
		if u.Group == "Team A" {
			t.Fatalf("user %s still references Team A", u.Username)
		}
		if u.Group == "Team B" {
			moved++
		}
	}
	if moved != 2 {
		t.Fatalf("expected 2 members moved, got %d", moved)
	}
}

func menuRoundTrip(t *testing.T, store domain.PersistentStore) {
	mustRun(t, store, menuSet, func(tx domain.Transaction) error {
		if _, err := tx.CreateMenuItem(domain.CategoryDrinks, domain.MenuItem{Name: " Cappuccino ", Options: []string{"Small", "Large", "Small", " "}}); err != nil {
			return err
		}
		_, err := tx.CreateMenuItem(domain.CategoryFoods, domain.MenuItem{Name: "Croissant", Options: []string{"Plain"}})
		return err
	})
	mustRun(t, store, menuSet, func(tx domain.Transaction) error {
		_, err := tx.UpdateMenuItem(domain.CategoryFoods, "Croissant", func(item *domain.MenuItem) error {
			item.Name = "Brioche"
			item.Options = []string{"Plain", "Jam"}
			return nil
		})
		return err
	})
	snap := mustRead(t, store, domain.SetMenu)
	drink, ok := snap.Menu.Find(domain.CategoryDrinks, "Cappuccino")
	if !ok || len(drink.Options) != 2 || drink.Options[0] != "Small" || drink.Options[1] != "Large" {
		t.Fatalf("unexpected drink %+v (found=%v)", drink, ok)
	}
	food, ok := snap.Menu.Find(domain.CategoryFoods, "Brioche")
	if !ok || len(food.Options) != 2 || food.Options[1] != "Jam" {
		t.Fatalf("unexpected food %+v (found=%v)", food, ok)
	}
	if _, ok := snap.Menu.Find(domain.CategoryFoods, "Croissant"); ok {
		t.Fatalf("renamed item still present")
	}
	mustRun(t, store, menuSet, func(tx domain.Transaction) error {
		return tx.DeleteMenuItem(domain.CategoryDrinks, "Cappuccino")
	})
	_, err := store.RunInTransaction(context.Background(), menuSet, func(tx domain.Transaction) error {
		return tx.DeleteMenuItem(domain.CategoryDrinks, "Cappuccino")
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found deleting twice, got %v", err)
	}
}

func orderUpsert(t *testing.T, store domain.PersistentStore) {
	const date = "2024-05-01"
	submit := func(p domain.OrderPayload) {
		mustRun(t, store, []domain.RecordSet{domain.SetOrders}, func(tx domain.Transaction) error {
			_, err := tx.UpsertOrder(domain.Order{Date: date, Username: "bob", Group: "Team A", Payload: p})
			return err
		})
	}
	submit(domain.StructuredPayload(domain.Choice{Item: "Cappuccino", Variant: "Large"}, domain.Choice{Item: "Croissant", Variant: "Plain"}))
	submit(domain.StructuredPayload(domain.Choice{}, domain.Choice{Item: "Brioche", Variant: "Jam"}))
	snap := mustRead(t, store, domain.SetOrders)
	day := snap.Orders[date]
	if len(day) != 1 {
		t.Fatalf("expected one order for the day, got %d", len(day))
	}
	got := day[0]
	if got.Date != date || got.Username != "bob" || got.Group != "Team A" {
		t.Fatalf("unexpected order key %+v", got)
	}
	if got.Payload.Drink != nil || got.Payload.Food == nil || got.Payload.Food.Item != "Brioche" {
		t.Fatalf("second submission must replace the first in full: %+v", got.Payload)
	}
}

func paymentUpsert(t *testing.T, store domain.PersistentStore) {
	const date = "2024-05-02"
	for _, payer := range []string{"alice", "bob"} {
		payer := payer
		mustRun(t, store, []domain.RecordSet{domain.SetPayments}, func(tx domain.Transaction) error {
			_, err := tx.UpsertPayment(domain.Payment{Date: date, Group: "Team A", Payer: payer})
			return err
		})
	}
	snap := mustRead(t, store, domain.SetPayments)
	if payer, ok := snap.Payments.Lookup(date, "Team A"); !ok || payer != "bob" {
		t.Fatalf("expected bob as payer, got %q (%v)", payer, ok)
	}
	if len(snap.Payments[date]) != 1 {
		t.Fatalf("expected one payment entry, got %v", snap.Payments[date])
	}
}

func restore(t *testing.T, store domain.PersistentStore) {
	in := domain.Snapshot{
		Users:  []domain.User{{Username: "alice", Password: "pw", Group: "Team A", Role: domain.RoleAdmin}},
		Groups: []string{"Team A"},
		Menu:   domain.Menu{Drinks: []domain.MenuItem{{Name: "Tea", Options: []string{"Green"}}}},
		Orders: domain.OrderBook{"2024-05-01": {{Username: "alice", Group: "Team A", Payload: domain.LegacyPayload("caffè lungo")}}},
		Payments: domain.PaymentLedger{
			"2024-05-01": {"Team A": "alice"},
		},
	}
	mustRun(t, store, domain.AllRecordSets, func(tx domain.Transaction) error {
		return tx.Restore(in)
	})
	out := mustRead(t, store, domain.AllRecordSets...)
	if len(out.Users) != 1 || out.Users[0].Role != domain.RoleAdmin {
		t.Fatalf("users not restored: %+v", out.Users)
	}
	if len(out.Groups) != 1 || len(out.Menu.Drinks) != 1 {
		t.Fatalf("groups or menu not restored: %+v", out)
	}
	day := out.Orders["2024-05-01"]
	if len(day) != 1 || day[0].Payload.Kind != domain.PayloadLegacy || day[0].Payload.LegacyText != "caffè lungo" {
		t.Fatalf("legacy order not restored: %+v", day)
	}
	if payer, _ := out.Payments.Lookup("2024-05-01", "Team A"); payer != "alice" {
		t.Fatalf("payment not restored: %v", out.Payments)
	}
}

func restoreDuplicates(t *testing.T, store domain.PersistentStore) {
	seedTeam(t, store)
	before := mustRead(t, store, domain.AllRecordSets...)
	order := domain.Order{Username: "alice", Group: "Team A", Payload: domain.LegacyPayload("espresso")}
	cases := map[string]domain.Snapshot{
		"users":  {Users: []domain.User{{Username: "alice", Group: "Team A"}, {Username: "alice", Group: "Team B"}}, Groups: []string{"Team A", "Team B"}},
		"groups": {Groups: []string{"Team A", "Team A"}},
		"menu": {Menu: domain.Menu{Foods: []domain.MenuItem{
			{Name: "Cornetto", Options: []string{"Vuoto"}},
			{Name: " Cornetto ", Options: []string{"Crema"}},
		}}},
		"orders": {Orders: domain.OrderBook{"2024-05-01": {order, order}}},
	}
	for name, snap := range cases {
		_, err := store.RunInTransaction(context.Background(), domain.AllRecordSets, func(tx domain.Transaction) error {
			return tx.Restore(snap)
		})
		if !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("%s: expected conflict, got %v", name, err)
		}
	}
	after := mustRead(t, store, domain.AllRecordSets...)
	if len(after.Users) != len(before.Users) || len(after.Groups) != len(before.Groups) {
		t.Fatalf("rejected restore changed the store: %+v", after)
	}
}

func unlockedWrite(t *testing.T, store domain.PersistentStore) {
	_, err := store.RunInTransaction(context.Background(), []domain.RecordSet{domain.SetUsers}, func(tx domain.Transaction) error {
		return tx.CreateGroup("Team A")
	})
	if err == nil {
		t.Fatalf("expected error writing an unlocked set")
	}
	if snap := mustRead(t, store, domain.SetGroups); len(snap.Groups) != 0 {
		t.Fatalf("unlocked write persisted: %v", snap.Groups)
	}
}
