// Package domain defines the persistent breakfast entities, value types, and
// rule evaluation primitives used by colazione.
package domain

import (
	"sort"
	"strings"
)

// Role is the two-tier authorization level carried by a User.
type Role string

const (
	// RoleUser is the default role.
	RoleUser Role = "user"
	// RoleAdmin may manage users, groups and the menu.
	RoleAdmin Role = "admin"
)

// SanitizeRole maps anything other than "admin" to RoleUser.
func SanitizeRole(raw string) Role {
	if Role(raw) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// User is a member of exactly one group. Username is the primary key.
type User struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Group    string `json:"group"`
	Role     Role   `json:"role"`
}

// IsAdmin reports whether the user carries the admin role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// Actor identifies the caller of an entity operation.
type Actor struct {
	Username string
	Role     Role
}

// IsAdmin reports whether the actor carries the admin role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Category names one of the two menu sections.
type Category string

const (
	CategoryDrinks Category = "drinks"
	CategoryFoods  Category = "foods"
)

// Categories lists the menu sections in document order.
var Categories = []Category{CategoryDrinks, CategoryFoods}

// MenuItem is a named entry with at least one variant option.
type MenuItem struct {
	Name    string   `json:"name"`
	Options []string `json:"options"`
}

// HasOption reports whether variant is one of the item's options.
func (m MenuItem) HasOption(variant string) bool {
	for _, opt := range m.Options {
		if opt == variant {
			return true
		}
	}
	return false
}

// Clone copies the item and its options.
func (m MenuItem) Clone() MenuItem {
	return MenuItem{Name: m.Name, Options: append([]string(nil), m.Options...)}
}

// Menu is the fixed two-section menu document.
type Menu struct {
	Drinks []MenuItem `json:"drinks"`
	Foods  []MenuItem `json:"foods"`
}

// Items returns the items of the given category.
func (m Menu) Items(category Category) []MenuItem {
	switch category {
	case CategoryDrinks:
		return m.Drinks
	case CategoryFoods:
		return m.Foods
	default:
		return nil
	}
}

// SetItems replaces the items of the given category.
func (m *Menu) SetItems(category Category, items []MenuItem) {
	switch category {
	case CategoryDrinks:
		m.Drinks = items
	case CategoryFoods:
		m.Foods = items
	}
}

// Find returns the item with the exact name within category.
func (m Menu) Find(category Category, name string) (MenuItem, bool) {
	for _, item := range m.Items(category) {
		if item.Name == name {
			return item, true
		}
	}
	return MenuItem{}, false
}

// HasChoice reports whether the category contains item with the variant option.
func (m Menu) HasChoice(category Category, c Choice) bool {
	item, ok := m.Find(category, c.Item)
	return ok && item.HasOption(c.Variant)
}

// Sorted returns a copy with both sections ordered by item name.
func (m Menu) Sorted() Menu {
	out := CloneMenu(m)
	for _, items := range [][]MenuItem{out.Drinks, out.Foods} {
		sort.SliceStable(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	}
	return out
}

// CloneMenu deep-copies a menu. Nil sections become empty slices.
func CloneMenu(m Menu) Menu {
	return Menu{Drinks: cloneItems(m.Drinks), Foods: cloneItems(m.Foods)}
}

func cloneItems(items []MenuItem) []MenuItem {
	out := make([]MenuItem, 0, len(items))
	for _, item := range items {
		out = append(out, item.Clone())
	}
	return out
}

// Choice is an (item, variant) pair picked from the menu.
type Choice struct {
	Item    string `json:"item"`
	Variant string `json:"variant"`
}

// Complete reports whether both halves of the pair are present.
func (c Choice) Complete() bool { return c.Item != "" && c.Variant != "" }

// Order is one user's breakfast order for one calendar day.
type Order struct {
	Date     string       `json:"date,omitempty"`
	Username string       `json:"username"`
	Group    string       `json:"group"`
	Payload  OrderPayload `json:"order"`
}

// OrderBook maps an ISO date to that day's orders.
type OrderBook map[string][]Order

// Payment designates the payer of one group on one calendar day.
type Payment struct {
	Date  string `json:"date"`
	Group string `json:"group"`
	Payer string `json:"username"`
}

// PaymentLedger maps an ISO date to group → payer username.
type PaymentLedger map[string]map[string]string

// Lookup returns the payer recorded for group on date.
func (l PaymentLedger) Lookup(date, group string) (string, bool) {
	payer, ok := l[date][group]
	payer = strings.TrimSpace(payer)
	return payer, ok && payer != ""
}

// Snapshot is the full materialization of the record sets at a point in time.
// Sets that were not requested are left at their zero value.
type Snapshot struct {
	Users    []User        `json:"users"`
	Groups   []string      `json:"groups"`
	Menu     Menu          `json:"menu"`
	Orders   OrderBook     `json:"orders"`
	Payments PaymentLedger `json:"payments"`
}

// Empty reports whether no set holds any record.
func (s Snapshot) Empty() bool {
	return len(s.Users) == 0 && len(s.Groups) == 0 && len(s.Menu.Drinks) == 0 &&
		len(s.Menu.Foods) == 0 && len(s.Orders) == 0 && len(s.Payments) == 0
}

// CloneUsers copies a user slice.
func CloneUsers(users []User) []User {
	return append(make([]User, 0, len(users)), users...)
}

// CloneOrders deep-copies an order book.
func CloneOrders(book OrderBook) OrderBook {
	out := make(OrderBook, len(book))
	for date, orders := range book {
		day := make([]Order, 0, len(orders))
		for _, o := range orders {
			o.Payload = o.Payload.clone()
			day = append(day, o)
		}
		out[date] = day
	}
	return out
}

// ClonePayments deep-copies a payment ledger.
func ClonePayments(ledger PaymentLedger) PaymentLedger {
	out := make(PaymentLedger, len(ledger))
	for date, groups := range ledger {
		cp := make(map[string]string, len(groups))
		for g, p := range groups {
			cp[g] = p
		}
		out[date] = cp
	}
	return out
}

// RecordSet names one of the five logical collections.
type RecordSet string

const (
	SetUsers    RecordSet = "users"
	SetGroups   RecordSet = "groups"
	SetMenu     RecordSet = "menu"
	SetOrders   RecordSet = "orders"
	SetPayments RecordSet = "payments"
)

// AllRecordSets lists every set in canonical lock order.
var AllRecordSets = []RecordSet{SetUsers, SetGroups, SetMenu, SetOrders, SetPayments}

// Valid reports whether s names a known record set.
func (s RecordSet) Valid() bool { return s.rank() >= 0 }

func (s RecordSet) rank() int {
	for i, known := range AllRecordSets {
		if known == s {
			return i
		}
	}
	return -1
}

// CanonicalSets deduplicates sets and orders them by lock rank. Unknown sets are dropped.
func CanonicalSets(sets []RecordSet) []RecordSet {
	seen := make(map[RecordSet]struct{}, len(sets))
	out := make([]RecordSet, 0, len(sets))
	for _, s := range sets {
		if !s.Valid() {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].rank() < out[j].rank() })
	return out
}

// EntityType identifies the type of record carried by a Change.
type EntityType string

const (
	EntityUser     EntityType = "user"
	EntityGroup    EntityType = "group"
	EntityMenuItem EntityType = "menu_item"
	EntityOrder    EntityType = "order"
	EntityPayment  EntityType = "payment"
)

// Set returns the record set holding entities of this type.
func (e EntityType) Set() RecordSet {
	switch e {
	case EntityUser:
		return SetUsers
	case EntityGroup:
		return SetGroups
	case EntityMenuItem:
		return SetMenu
	case EntityOrder:
		return SetOrders
	case EntityPayment:
		return SetPayments
	default:
		return ""
	}
}

// Action indicates the type of modification performed.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionUpsert Action = "upsert"
	// ActionImport marks records written by a snapshot restore; rules skip them.
	ActionImport Action = "import"
)

// Change describes a mutation captured inside a transaction. Before and After
// hold the entity value (User, string group name, MenuChange, Order, Payment).
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// MenuChange is the Before/After payload of a menu item change.
type MenuChange struct {
	Category Category
	Item     MenuItem
}

// Severity captures rule outcomes.
type Severity string

const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
)

// Violation reports a rule finding.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates rule violations.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Warnings returns the non-blocking violations.
func (r Result) Warnings() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity != SeverityBlock {
			out = append(out, v)
		}
	}
	return out
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return v.Message
		}
	}
	return "transaction blocked by rules"
}
