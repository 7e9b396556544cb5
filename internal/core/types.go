package core

import "colazione/pkg/domain"

type (
	User               = domain.User
	Role               = domain.Role
	Actor              = domain.Actor
	Category           = domain.Category
	MenuItem           = domain.MenuItem
	Menu               = domain.Menu
	Choice             = domain.Choice
	OrderPayload       = domain.OrderPayload
	Order              = domain.Order
	Payment            = domain.Payment
	Snapshot           = domain.Snapshot
	RecordSet          = domain.RecordSet
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	RoleUser  = domain.RoleUser
	RoleAdmin = domain.RoleAdmin
)

const (
	CategoryDrinks = domain.CategoryDrinks
	CategoryFoods  = domain.CategoryFoods
)

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
