package core

import "colazione/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewGroupAssignmentRule())
	engine.Register(NewGroupInUseRule())
	engine.Register(NewAdminFloorRule())
	engine.Register(NewMenuChoiceRule())
	engine.Register(NewPayerMembershipRule())
	engine.Register(NewOrderGroupConsistencyRule())
	return engine
}

// imported reports whether a change came from a snapshot restore. Imported
// records are trusted as a whole and skip per-record policy.
func imported(change domain.Change) bool {
	return change.Action == domain.ActionImport
}

func blocking(rule, message string, entity domain.EntityType, id string) domain.Violation {
	return domain.Violation{
		Rule:     rule,
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   entity,
		EntityID: id,
	}
}
