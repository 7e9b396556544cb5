package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"colazione/internal/infra/persistence/storetest"
	"colazione/pkg/domain"
)

func TestFileStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.PersistentStore {
		store, err := NewStore(t.TempDir(), nil)
		if err != nil {
			t.Fatalf("new store: %v", err)
		}
		return store
	})
}

func TestMissingDocumentsAreDefaults(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	snap, err := store.Read(context.Background(), domain.AllRecordSets...)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !snap.Empty() {
		t.Fatalf("expected empty defaults, got %+v", snap)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("reading must not create documents, found %d entries", len(entries))
	}
}

func TestLegacyDocumentsDecode(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("users.json", `[{"username":"mario","password":"pw","group":"Team A"}]`)
	write("orders.json", `{"2023-11-02":[{"username":"mario","group":"Team A","order":"  cornetto e cappuccino "}]}`)
	write("menu.json", `{"drinks":[{"name":"Tea","options":["Green",7,"Green"]},{"name":"","options":["x"]}]}`)

	store, err := NewStore(dir, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	snap, err := store.Read(context.Background(), domain.SetUsers, domain.SetOrders, domain.SetMenu)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if snap.Users[0].Role != domain.RoleUser {
		t.Fatalf("role-less user should default to user, got %q", snap.Users[0].Role)
	}
	order := snap.Orders["2023-11-02"][0]
	if order.Payload.Kind != domain.PayloadLegacy || order.Payload.LegacyText != "cornetto e cappuccino" {
		t.Fatalf("legacy order not decoded: %+v", order.Payload)
	}
	if order.Date != "2023-11-02" {
		t.Fatalf("order date should come from the document key, got %q", order.Date)
	}
	if len(snap.Menu.Drinks) != 1 || len(snap.Menu.Drinks[0].Options) != 1 {
		t.Fatalf("menu not normalized: %+v", snap.Menu)
	}
}

func TestDocumentLayout(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), []domain.RecordSet{domain.SetOrders, domain.SetPayments}, func(tx domain.Transaction) error {
		if _, err := tx.UpsertOrder(domain.Order{
			Date: "2024-05-01", Username: "bob", Group: "Team A",
			Payload: domain.StructuredPayload(domain.Choice{Item: "Tè", Variant: "Verde"}, domain.Choice{}),
		}); err != nil {
			return err
		}
		_, err := tx.UpsertPayment(domain.Payment{Date: "2024-05-01", Group: "Team A", Payer: "bob"})
		return err
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	orders, err := os.ReadFile(store.DocumentPath(domain.SetOrders))
	if err != nil {
		t.Fatalf("read orders: %v", err)
	}
	want := "{\n  \"2024-05-01\": [\n    {\n      \"username\": \"bob\",\n      \"group\": \"Team A\",\n      \"order\": {\n        \"drink\": {\n          \"item\": \"Tè\",\n          \"variant\": \"Verde\"\n        }\n      }\n    }\n  ]\n}\n"
	if string(orders) != want {
		t.Fatalf("unexpected orders document:\n%s", orders)
	}
	payments, _ := os.ReadFile(store.DocumentPath(domain.SetPayments))
	if !strings.Contains(string(payments), `"Team A": "bob"`) {
		t.Fatalf("unexpected payments document:\n%s", payments)
	}
	if _, err := os.Stat(store.DocumentPath(domain.SetUsers)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("untouched sets must not be written")
	}
}

func TestCorruptDocumentIsStorageFailure(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "groups.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, err := NewStore(dir, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), []domain.RecordSet{domain.SetGroups}, func(tx domain.Transaction) error {
		return tx.CreateGroup("Team A")
	})
	if !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected storage failure, got %v", err)
	}
	body, _ := os.ReadFile(filepath.Join(dir, "groups.json"))
	if string(body) != "{not json" {
		t.Fatalf("corrupt document must be left untouched, got %q", body)
	}
}

func TestLockTimeoutIsStorageFailure(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, nil, WithLockTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	held := flock.New(store.DocumentPath(domain.SetGroups) + ".lock")
	if err := held.Lock(); err != nil {
		t.Fatalf("hold lock: %v", err)
	}
	defer func() { _ = held.Unlock() }()

	start := time.Now()
	_, err = store.RunInTransaction(context.Background(), []domain.RecordSet{domain.SetGroups}, func(tx domain.Transaction) error {
		return tx.CreateGroup("Team A")
	})
	if !errors.Is(err, domain.ErrStorage) || !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected lock timeout storage failure, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("lock wait was not bounded")
	}
}

func TestConcurrentOrdersAllSurvive(t *testing.T) {
	dir := t.TempDir()
	// two stores over one directory stand in for two processes
	stores := make([]*Store, 2)
	for i := range stores {
		s, err := NewStore(dir, nil)
		if err != nil {
			t.Fatalf("new store: %v", err)
		}
		stores[i] = s
	}
	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store := stores[i%len(stores)]
			_, err := store.RunInTransaction(context.Background(), []domain.RecordSet{domain.SetOrders}, func(tx domain.Transaction) error {
				_, err := tx.UpsertOrder(domain.Order{
					Date: "2024-05-01", Username: fmt.Sprintf("user%02d", i), Group: "Team A",
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
			t.Fatalf("concurrent submit: %v", err)
		}
	}
	snap, err := stores[0].Read(context.Background(), domain.SetOrders)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := len(snap.Orders["2024-05-01"]); got != writers {
		t.Fatalf("lost updates: expected %d orders, got %d", writers, got)
	}
}
