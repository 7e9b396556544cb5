package domain

import "context"

// TransactionView provides read-only access to the record sets a transaction
// locked. Reading a set outside that scope yields its empty value.
type TransactionView interface {
	ListUsers() []User
	FindUser(username string) (User, bool)
	CountAdmins() int
	ListGroups() []string
	HasGroup(name string) bool
	Menu() Menu
	OrdersOn(date string) []Order
	Orders() OrderBook
	Payments() PaymentLedger
}

// Transaction exposes the mutations a persistence implementation must support
// within an atomic scope. Every mutation re-reads the locked set, so checks
// made here see the transactionally fresh state.
type Transaction interface {
	TransactionView
	CreateUser(User) (User, error)
	UpdateUser(username string, mutator func(*User) error) (User, error)
	DeleteUser(username string) error
	CreateGroup(name string) error
	// RenameGroup renames the group and moves every member in the same transaction.
	RenameGroup(from, to string) error
	DeleteGroup(name string) error
	CreateMenuItem(category Category, item MenuItem) (MenuItem, error)
	UpdateMenuItem(category Category, name string, mutator func(*MenuItem) error) (MenuItem, error)
	DeleteMenuItem(category Category, name string) error
	UpsertOrder(Order) (Order, error)
	UpsertPayment(Payment) (Payment, error)
	// Restore writes every record of the snapshot as imported data.
	Restore(Snapshot) error
}

// PersistentStore is the record store contract shared by every backend.
type PersistentStore interface {
	// RunInTransaction locks the named sets in canonical order, applies fn to a
	// fresh read, evaluates the rules and persists the result atomically.
	RunInTransaction(ctx context.Context, sets []RecordSet, fn func(Transaction) error) (Result, error)
	// Read returns the named sets without taking locks.
	Read(ctx context.Context, sets ...RecordSet) (Snapshot, error)
	Driver() string
	Close() error
}
