package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"colazione/internal/infra/persistence/storetest"
	"colazione/pkg/domain"
)

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	store, err := NewStore(path, domain.NewRulesEngine(), 0)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	return store
}

func TestSQLiteStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.PersistentStore {
		return openStore(t, filepath.Join(t.TempDir(), "state.db"))
	})
}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store := openStore(t, path)
	if _, err := store.RunInTransaction(context.Background(), []domain.RecordSet{domain.SetMenu, domain.SetOrders}, func(tx domain.Transaction) error {
		if _, err := tx.CreateMenuItem(domain.CategoryDrinks, domain.MenuItem{Name: "Cappuccino", Options: []string{"Small", "Large"}}); err != nil {
			return err
		}
		_, err := tx.UpsertOrder(domain.Order{Date: "2024-05-01", Username: "bob", Group: "Team A", Payload: domain.LegacyPayload("due cornetti")})
		return err
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	reloaded := openStore(t, path)
	t.Cleanup(func() { _ = reloaded.Close() })
	snap, err := reloaded.Read(context.Background(), domain.SetMenu, domain.SetOrders)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	item, ok := snap.Menu.Find(domain.CategoryDrinks, "Cappuccino")
	if !ok || strings.Join(item.Options, ",") != "Small,Large" {
		t.Fatalf("option order not preserved: %+v", item)
	}
	order := snap.Orders["2024-05-01"][0]
	if order.Payload.Kind != domain.PayloadLegacy || order.Payload.LegacyText != "due cornetti" {
		t.Fatalf("legacy order not reloaded: %+v", order.Payload)
	}
}

func TestSQLiteStoreAppliesSchema(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "state.db"))
	t.Cleanup(func() { _ = store.Close() })
	for _, table := range []string{"users", "user_groups", "menu_items", "menu_options", "orders", "payments"} {
		var name string
		if err := store.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", table).Scan(&name); err != nil {
			t.Fatalf("lookup %s table: %v", table, err)
		}
	}
}

func TestSQLiteRenameIsAtomic(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "state.db"))
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	sets := []domain.RecordSet{domain.SetUsers, domain.SetGroups}
	if _, err := store.RunInTransaction(ctx, sets, func(tx domain.Transaction) error {
		if err := tx.CreateGroup("Team A"); err != nil {
			return err
		}
		_, err := tx.CreateUser(domain.User{Username: "bob", Password: "pw", Group: "Team A"})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	boom := errors.New("boom")
	_, err := store.RunInTransaction(ctx, sets, func(tx domain.Transaction) error {
		if err := tx.RenameGroup("Team A", "Team B"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	snap, _ := store.Read(ctx, sets...)
	if snap.Groups[0] != "Team A" || snap.Users[0].Group != "Team A" {
		t.Fatalf("aborted rename leaked: %+v", snap)
	}
}

func TestSQLiteConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	a := openStore(t, path)
	b := openStore(t, path)
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })
	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store := a
			if i%2 == 1 {
				store = b
			}
			_, err := store.RunInTransaction(context.Background(), []domain.RecordSet{domain.SetOrders}, func(tx domain.Transaction) error {
				_, err := tx.UpsertOrder(domain.Order{
					Date: "2024-05-01", Username: fmt.Sprintf("user%d", i), Group: "Team A",
					Payload: domain.StructuredPayload(domain.Choice{Item: "Tea", Variant: "Green"}, domain.Choice{}),
				})
				return err
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent write: %v", err)
		}
	}
	snap, _ := a.Read(context.Background(), domain.SetOrders)
	if got := len(snap.Orders["2024-05-01"]); got != 10 {
		t.Fatalf("expected 10 orders, got %d", got)
	}
}

func TestSQLiteMenuReadsNeverSeeHalfRenamedItems(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "state.db"))
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	menuSet := []domain.RecordSet{domain.SetMenu}
	if _, err := store.RunInTransaction(ctx, menuSet, func(tx domain.Transaction) error {
		_, err := tx.CreateMenuItem(domain.CategoryDrinks, domain.MenuItem{Name: "A", Options: []string{"Small", "Large"}})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	done := make(chan struct{})
	renamerErr := make(chan error, 1)
	go func() {
		names := [2]string{"A", "B"}
		for i := 0; ; i++ {
			select {
			case <-done:
				renamerErr <- nil
				return
			default:
			}
			from, to := names[i%2], names[(i+1)%2]
			if _, err := store.RunInTransaction(ctx, menuSet, func(tx domain.Transaction) error {
				_, err := tx.UpdateMenuItem(domain.CategoryDrinks, from, func(item *domain.MenuItem) error {
					item.Name = to
					return nil
				})
				return err
			}); err != nil {
				renamerErr <- err
				return
			}
		}
	}()

	for i := 0; i < 500; i++ {
		snap, err := store.Read(ctx, domain.SetMenu)
		if err != nil {
			close(done)
			t.Fatalf("read %d: %v", i, err)
		}
		if len(snap.Menu.Drinks) != 1 || strings.Join(snap.Menu.Drinks[0].Options, ",") != "Small,Large" {
			close(done)
			t.Fatalf("read %d saw a torn menu: %+v", i, snap.Menu.Drinks)
		}
	}
	close(done)
	if err := <-renamerErr; err != nil {
		t.Fatalf("rename: %v", err)
	}
}
