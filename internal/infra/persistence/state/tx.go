// Package state implements the backend-agnostic unit of work shared by every
// record store: it holds the freshly loaded record sets, applies mutations,
// records changes and evaluates the rules before a backend persists the result.
package state

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"colazione/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.Transaction = (*Tx)(nil)

// ErrSetNotLocked is returned when a mutation targets a set outside the
// transaction scope.
var ErrSetNotLocked = errors.New("record set not locked by transaction")

// Tx is a mutable unit of work over the locked record sets.
type Tx struct {
	locked  map[domain.RecordSet]bool
	dirty   map[domain.RecordSet]bool
	data    domain.Snapshot
	changes []domain.Change
}

// Begin starts a unit of work over data, which must hold fresh copies of the
// locked sets. Nil collections are replaced by empty ones.
func Begin(sets []domain.RecordSet, data domain.Snapshot) *Tx {
	tx := &Tx{
		locked: make(map[domain.RecordSet]bool, len(sets)),
		dirty:  make(map[domain.RecordSet]bool, len(sets)),
		data:   Fill(data),
	}
	for _, s := range domain.CanonicalSets(sets) {
		tx.locked[s] = true
	}
	return tx
}

// Fill replaces nil collections with empty ones.
func Fill(s domain.Snapshot) domain.Snapshot {
	if s.Users == nil {
		s.Users = []domain.User{}
	}
	if s.Groups == nil {
		s.Groups = []string{}
	}
	if s.Menu.Drinks == nil {
		s.Menu.Drinks = []domain.MenuItem{}
	}
	if s.Menu.Foods == nil {
		s.Menu.Foods = []domain.MenuItem{}
	}
	if s.Orders == nil {
		s.Orders = domain.OrderBook{}
	}
	if s.Payments == nil {
		s.Payments = domain.PaymentLedger{}
	}
	return s
}

// Clone deep-copies every collection of a snapshot.
func Clone(s domain.Snapshot) domain.Snapshot {
	return Fill(domain.Snapshot{
		Users:    domain.CloneUsers(s.Users),
		Groups:   append([]string(nil), s.Groups...),
		Menu:     domain.CloneMenu(s.Menu),
		Orders:   domain.CloneOrders(s.Orders),
		Payments: domain.ClonePayments(s.Payments),
	})
}

// Run applies fn to tx and evaluates engine against the resulting state.
// Blocking violations are returned as domain.RuleViolationError.
func Run(ctx context.Context, engine *domain.RulesEngine, tx *Tx, fn func(domain.Transaction) error) (domain.Result, error) {
	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}
	res, err := engine.Evaluate(ctx, tx, tx.changes)
	if err != nil {
		return domain.Result{}, fmt.Errorf("evaluate rules: %w", err)
	}
	if res.HasBlocking() {
		return res, domain.RuleViolationError{Result: res}
	}
	return res, nil
}

// Data returns the transaction state.
func (tx *Tx) Data() domain.Snapshot { return tx.data }

// Changes returns the recorded changes in application order.
func (tx *Tx) Changes() []domain.Change { return tx.changes }

// Dirty lists the modified sets in canonical order.
func (tx *Tx) Dirty() []domain.RecordSet {
	var out []domain.RecordSet
	for _, s := range domain.AllRecordSets {
		if tx.dirty[s] {
			out = append(out, s)
		}
	}
	return out
}

func (tx *Tx) require(set domain.RecordSet) error {
	if !tx.locked[set] {
		return fmt.Errorf("%w: %s", ErrSetNotLocked, set)
	}
	return nil
}

func (tx *Tx) record(set domain.RecordSet, change domain.Change) {
	tx.dirty[set] = true
	tx.changes = append(tx.changes, change)
}

// ListUsers returns the users ordered by username.
func (tx *Tx) ListUsers() []domain.User {
	users := domain.CloneUsers(tx.data.Users)
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users
}

// FindUser looks a user up by exact username.
func (tx *Tx) FindUser(username string) (domain.User, bool) {
	if i := tx.userIndex(username); i >= 0 {
		return tx.data.Users[i], true
	}
	return domain.User{}, false
}

// CountAdmins counts users holding the admin role.
func (tx *Tx) CountAdmins() int {
	n := 0
	for _, u := range tx.data.Users {
		if u.IsAdmin() {
			n++
		}
	}
	return n
}

// ListGroups returns the group names in sorted order.
func (tx *Tx) ListGroups() []string {
	groups := append([]string(nil), tx.data.Groups...)
	sort.Strings(groups)
	return groups
}

// HasGroup reports whether the named group exists.
func (tx *Tx) HasGroup(name string) bool { return tx.groupIndex(name) >= 0 }

// Menu returns a copy of the menu.
func (tx *Tx) Menu() domain.Menu { return domain.CloneMenu(tx.data.Menu) }

// OrdersOn returns the orders stored for date.
func (tx *Tx) OrdersOn(date string) []domain.Order {
	return domain.CloneOrders(domain.OrderBook{date: tx.data.Orders[date]})[date]
}

// Orders returns a copy of the order book.
func (tx *Tx) Orders() domain.OrderBook { return domain.CloneOrders(tx.data.Orders) }

// Payments returns a copy of the payment ledger.
func (tx *Tx) Payments() domain.PaymentLedger { return domain.ClonePayments(tx.data.Payments) }

func (tx *Tx) userIndex(username string) int {
	for i, u := range tx.data.Users {
		if u.Username == username {
			return i
		}
	}
	return -1
}

func (tx *Tx) groupIndex(name string) int {
	for i, g := range tx.data.Groups {
		if g == name {
			return i
		}
	}
	return -1
}

// CreateUser appends a user. An existing username is a conflict.
func (tx *Tx) CreateUser(u domain.User) (domain.User, error) {
	if err := tx.require(domain.SetUsers); err != nil {
		return domain.User{}, err
	}
	if u.Username == "" {
		return domain.User{}, domain.Validationf("username is required")
	}
	if tx.userIndex(u.Username) >= 0 {
		return domain.User{}, domain.Conflictf("user %q already exists", u.Username)
	}
	u.Role = domain.SanitizeRole(string(u.Role))
	tx.data.Users = append(tx.data.Users, u)
	tx.record(domain.SetUsers, domain.Change{Entity: domain.EntityUser, Action: domain.ActionCreate, After: u})
	return u, nil
}

// UpdateUser mutates a user in place. The username cannot change.
func (tx *Tx) UpdateUser(username string, mutator func(*domain.User) error) (domain.User, error) {
	if err := tx.require(domain.SetUsers); err != nil {
		return domain.User{}, err
	}
	i := tx.userIndex(username)
	if i < 0 {
		return domain.User{}, domain.NotFoundf("user %q not found", username)
	}
	before := tx.data.Users[i]
	current := before
	if err := mutator(&current); err != nil {
		return domain.User{}, err
	}
	current.Username = username
	current.Role = domain.SanitizeRole(string(current.Role))
	if current == before {
		return current, nil
	}
	tx.data.Users[i] = current
	tx.record(domain.SetUsers, domain.Change{Entity: domain.EntityUser, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteUser removes a user.
func (tx *Tx) DeleteUser(username string) error {
	if err := tx.require(domain.SetUsers); err != nil {
		return err
	}
	i := tx.userIndex(username)
	if i < 0 {
		return domain.NotFoundf("user %q not found", username)
	}
	before := tx.data.Users[i]
	tx.data.Users = append(tx.data.Users[:i:i], tx.data.Users[i+1:]...)
	tx.record(domain.SetUsers, domain.Change{Entity: domain.EntityUser, Action: domain.ActionDelete, Before: before})
	return nil
}

// CreateGroup appends a group name. An existing name is a conflict.
func (tx *Tx) CreateGroup(name string) error {
	if err := tx.require(domain.SetGroups); err != nil {
		return err
	}
	if name == "" {
		return domain.Validationf("group name is required")
	}
	if tx.HasGroup(name) {
		return domain.Conflictf("group %q already exists", name)
	}
	tx.data.Groups = append(tx.data.Groups, name)
	tx.record(domain.SetGroups, domain.Change{Entity: domain.EntityGroup, Action: domain.ActionCreate, After: name})
	return nil
}

// RenameGroup renames the group and moves its members.
func (tx *Tx) RenameGroup(from, to string) error {
	if err := tx.require(domain.SetGroups); err != nil {
		return err
	}
	if err := tx.require(domain.SetUsers); err != nil {
		return err
	}
	i := tx.groupIndex(from)
	if i < 0 {
		return domain.NotFoundf("group %q not found", from)
	}
	if to == "" {
		return domain.Validationf("group name is required")
	}
	if from == to {
		return nil
	}
	if tx.HasGroup(to) {
		return domain.Conflictf("group %q already exists", to)
	}
	tx.data.Groups[i] = to
	tx.record(domain.SetGroups, domain.Change{Entity: domain.EntityGroup, Action: domain.ActionUpdate, Before: from, After: to})
	for j, u := range tx.data.Users {
		if u.Group != from {
			continue
		}
		moved := u
		moved.Group = to
		tx.data.Users[j] = moved
		tx.record(domain.SetUsers, domain.Change{Entity: domain.EntityUser, Action: domain.ActionUpdate, Before: u, After: moved})
	}
	return nil
}

// DeleteGroup removes a group name. Membership is enforced by the rules.
func (tx *Tx) DeleteGroup(name string) error {
	if err := tx.require(domain.SetGroups); err != nil {
		return err
	}
	i := tx.groupIndex(name)
	if i < 0 {
		return domain.NotFoundf("group %q not found", name)
	}
	tx.data.Groups = append(tx.data.Groups[:i:i], tx.data.Groups[i+1:]...)
	tx.record(domain.SetGroups, domain.Change{Entity: domain.EntityGroup, Action: domain.ActionDelete, Before: name})
	return nil
}

// CreateMenuItem normalizes and appends an item to category.
func (tx *Tx) CreateMenuItem(category domain.Category, item domain.MenuItem) (domain.MenuItem, error) {
	if err := tx.require(domain.SetMenu); err != nil {
		return domain.MenuItem{}, err
	}
	normalized, err := validItem(item)
	if err != nil {
		return domain.MenuItem{}, err
	}
	if _, exists := tx.data.Menu.Find(category, normalized.Name); exists {
		return domain.MenuItem{}, domain.Conflictf("%s item %q already exists", category, normalized.Name)
	}
	tx.data.Menu.SetItems(category, append(tx.data.Menu.Items(category), normalized))
	tx.record(domain.SetMenu, domain.Change{
		Entity: domain.EntityMenuItem, Action: domain.ActionCreate,
		After: domain.MenuChange{Category: category, Item: normalized},
	})
	return normalized, nil
}

// UpdateMenuItem mutates an item in place, renaming it when the mutator
// changes its name.
func (tx *Tx) UpdateMenuItem(category domain.Category, name string, mutator func(*domain.MenuItem) error) (domain.MenuItem, error) {
	if err := tx.require(domain.SetMenu); err != nil {
		return domain.MenuItem{}, err
	}
	items := tx.data.Menu.Items(category)
	idx := -1
	for i, item := range items {
		if item.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.MenuItem{}, domain.NotFoundf("%s item %q not found", category, name)
	}
	before := items[idx].Clone()
	current := items[idx].Clone()
	if err := mutator(&current); err != nil {
		return domain.MenuItem{}, err
	}
	normalized, err := validItem(current)
	if err != nil {
		return domain.MenuItem{}, err
	}
	if normalized.Name != name {
		if _, exists := tx.data.Menu.Find(category, normalized.Name); exists {
			return domain.MenuItem{}, domain.Conflictf("%s item %q already exists", category, normalized.Name)
		}
	}
	items[idx] = normalized
	tx.record(domain.SetMenu, domain.Change{
		Entity: domain.EntityMenuItem, Action: domain.ActionUpdate,
		Before: domain.MenuChange{Category: category, Item: before},
		After:  domain.MenuChange{Category: category, Item: normalized},
	})
	return normalized, nil
}

// DeleteMenuItem removes an item from category. Stored orders are untouched.
func (tx *Tx) DeleteMenuItem(category domain.Category, name string) error {
	if err := tx.require(domain.SetMenu); err != nil {
		return err
	}
	items := tx.data.Menu.Items(category)
	for i, item := range items {
		if item.Name != name {
			continue
		}
		tx.data.Menu.SetItems(category, append(items[:i:i], items[i+1:]...))
		tx.record(domain.SetMenu, domain.Change{
			Entity: domain.EntityMenuItem, Action: domain.ActionDelete,
			Before: domain.MenuChange{Category: category, Item: item},
		})
		return nil
	}
	return domain.NotFoundf("%s item %q not found", category, name)
}

func validItem(item domain.MenuItem) (domain.MenuItem, error) {
	normalized, ok := domain.NormalizeMenuItem(item.Name, item.Options)
	if normalized.Name == "" {
		return domain.MenuItem{}, domain.Validationf("item name is required")
	}
	if !ok {
		return domain.MenuItem{}, domain.Validationf("item %q needs at least one option", normalized.Name)
	}
	return normalized, nil
}

// UpsertOrder stores the order for (date, username), replacing any previous one in full.
func (tx *Tx) UpsertOrder(o domain.Order) (domain.Order, error) {
	if err := tx.require(domain.SetOrders); err != nil {
		return domain.Order{}, err
	}
	if o.Date == "" || o.Username == "" {
		return domain.Order{}, domain.Validationf("order date and username are required")
	}
	day := tx.data.Orders[o.Date]
	change := domain.Change{Entity: domain.EntityOrder, Action: domain.ActionUpsert, After: o}
	replaced := false
	for i, existing := range day {
		if existing.Username == o.Username {
			change.Before = existing
			day[i] = o
			replaced = true
			break
		}
	}
	if !replaced {
		day = append(day, o)
	}
	tx.data.Orders[o.Date] = day
	tx.record(domain.SetOrders, change)
	return o, nil
}

// UpsertPayment designates the payer for (date, group).
func (tx *Tx) UpsertPayment(p domain.Payment) (domain.Payment, error) {
	if err := tx.require(domain.SetPayments); err != nil {
		return domain.Payment{}, err
	}
	if p.Date == "" || p.Group == "" || p.Payer == "" {
		return domain.Payment{}, domain.Validationf("payment date, group and payer are required")
	}
	change := domain.Change{Entity: domain.EntityPayment, Action: domain.ActionUpsert, After: p}
	if prev, ok := tx.data.Payments.Lookup(p.Date, p.Group); ok {
		change.Before = domain.Payment{Date: p.Date, Group: p.Group, Payer: prev}
	}
	if tx.data.Payments[p.Date] == nil {
		tx.data.Payments[p.Date] = map[string]string{}
	}
	tx.data.Payments[p.Date][p.Group] = p.Payer
	tx.record(domain.SetPayments, change)
	return p, nil
}

// Restore replaces every set with the snapshot content, recording one import
// change per record. All sets must be locked.
func (tx *Tx) Restore(s domain.Snapshot) error {
	for _, set := range domain.AllRecordSets {
		if err := tx.require(set); err != nil {
			return err
		}
	}
	s = Clone(s)
	s.Menu = domain.NormalizeMenu(s.Menu)
	if err := checkRestoreKeys(s); err != nil {
		return err
	}
	for i := range s.Users {
		s.Users[i].Role = domain.SanitizeRole(string(s.Users[i].Role))
		tx.record(domain.SetUsers, domain.Change{Entity: domain.EntityUser, Action: domain.ActionImport, After: s.Users[i]})
	}
	for _, g := range s.Groups {
		tx.record(domain.SetGroups, domain.Change{Entity: domain.EntityGroup, Action: domain.ActionImport, After: g})
	}
	for _, category := range domain.Categories {
		for _, item := range s.Menu.Items(category) {
			tx.record(domain.SetMenu, domain.Change{
				Entity: domain.EntityMenuItem, Action: domain.ActionImport,
				After: domain.MenuChange{Category: category, Item: item},
			})
		}
	}
	for _, date := range sortedKeys(s.Orders) {
		for i := range s.Orders[date] {
			s.Orders[date][i].Date = date
			tx.record(domain.SetOrders, domain.Change{Entity: domain.EntityOrder, Action: domain.ActionImport, After: s.Orders[date][i]})
		}
	}
	for _, date := range sortedKeys(s.Payments) {
		for _, group := range sortedKeys(s.Payments[date]) {
			p := domain.Payment{Date: date, Group: group, Payer: s.Payments[date][group]}
			tx.record(domain.SetPayments, domain.Change{Entity: domain.EntityPayment, Action: domain.ActionImport, After: p})
		}
	}
	tx.data = s
	for _, set := range domain.AllRecordSets {
		tx.dirty[set] = true
	}
	return nil
}

// checkRestoreKeys rejects a snapshot that repeats a record key, so every
// backend refuses it the same way before anything is assigned.
func checkRestoreKeys(s domain.Snapshot) error {
	users := make(map[string]bool, len(s.Users))
	for _, u := range s.Users {
		if users[u.Username] {
			return domain.Conflictf("snapshot repeats user %q", u.Username)
		}
		users[u.Username] = true
	}
	groups := make(map[string]bool, len(s.Groups))
	for _, g := range s.Groups {
		if groups[g] {
			return domain.Conflictf("snapshot repeats group %q", g)
		}
		groups[g] = true
	}
	for _, category := range domain.Categories {
		items := map[string]bool{}
		for _, item := range s.Menu.Items(category) {
			if items[item.Name] {
				return domain.Conflictf("snapshot repeats %s item %q", category, item.Name)
			}
			items[item.Name] = true
		}
	}
	for _, date := range sortedKeys(s.Orders) {
		ordered := map[string]bool{}
		for _, o := range s.Orders[date] {
			if ordered[o.Username] {
				return domain.Conflictf("snapshot repeats the %s order of %q", date, o.Username)
			}
			ordered[o.Username] = true
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
